package server

import (
	"errors"
	"net/http"

	"cadence/internal/database"

	"github.com/gin-gonic/gin"
)

// handleSearchTracks lists catalog tracks matching ?search= (all when empty)
func (s *Server) handleSearchTracks(c *gin.Context) {
	query := c.Query("search")
	if verr := validateSearchQuery("search", query); verr != nil {
		s.respondWithValidationError(c, []ValidationError{*verr})
		return
	}

	tracks, err := s.catalog.SearchTracks(c.Request.Context(), query)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	respondSuccess(c, "Tracks received", tracks)
}

func (s *Server) handleGetTrack(c *gin.Context) {
	id, verr := parseID("id", c.Param("id"))
	if verr != nil {
		respondFail(c, http.StatusNotFound, msgTrackNotFound, nil)
		return
	}

	track, err := s.catalog.GetTrackByID(c.Request.Context(), id)
	if errors.Is(err, database.ErrTrackNotFound) {
		respondFail(c, http.StatusNotFound, msgTrackNotFound, nil)
		return
	}
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	respondSuccess(c, "Track received", track)
}

func (s *Server) handleLikedTracks(c *gin.Context) {
	userID, _ := callerID(c)
	ids, err := s.catalog.LikedTrackIDs(c.Request.Context(), userID)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	respondSuccess(c, "Liked tracks received", ids)
}

func (s *Server) handleLikeTrack(c *gin.Context) {
	userID, _ := callerID(c)
	trackID, verr := parseID("id", c.Param("id"))
	if verr != nil {
		s.respondWithValidationError(c, []ValidationError{*verr})
		return
	}

	err := s.catalog.LikeTrack(c.Request.Context(), userID, trackID)
	if errors.Is(err, database.ErrTrackNotFound) {
		respondFail(c, http.StatusBadRequest, msgTrackNotFound, nil)
		return
	}
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	respondSuccess(c, "Track liked", nil)
}

func (s *Server) handleUnlikeTrack(c *gin.Context) {
	userID, _ := callerID(c)
	trackID, verr := parseID("id", c.Param("id"))
	if verr != nil {
		s.respondWithValidationError(c, []ValidationError{*verr})
		return
	}

	if err := s.catalog.UnlikeTrack(c.Request.Context(), userID, trackID); err != nil {
		s.respondWithError(c, err)
		return
	}
	respondSuccess(c, "Track unliked", nil)
}
