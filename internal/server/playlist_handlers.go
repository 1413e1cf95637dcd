package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cadence/internal/playlist"
	"cadence/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// handleListPlaylists returns one page of playlists with their catalog
func (s *Server) handleListPlaylists(c *gin.Context) {
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondFail(c, http.StatusNotFound, msgPlaylistsNotFound, nil)
			return
		}
		page = n
	}

	pageSize := s.config.Playlists.PageSize
	items, total, err := s.playlists.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if len(items) == 0 {
		respondFail(c, http.StatusNotFound, msgPlaylistsNotFound, nil)
		return
	}

	respondSuccess(c, msgPlaylistsReceived, models.PlaylistPage{
		Items:      items,
		TotalCount: total,
		LastPage:   playlist.LastPage(total, pageSize),
	})
}

func (s *Server) handleGetPlaylist(c *gin.Context) {
	id, verr := parseID("id", c.Param("id"))
	if verr != nil {
		respondFail(c, http.StatusNotFound, msgPlaylistNotFound, nil)
		return
	}

	p, err := s.playlists.GetByID(c.Request.Context(), id)
	if errors.Is(err, playlist.ErrNotFound) {
		respondFail(c, http.StatusNotFound, msgPlaylistNotFound, nil)
		return
	}
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	respondSuccess(c, msgPlaylistReceived, p)
}

func (s *Server) handleUserPlaylists(c *gin.Context) {
	userID, _ := callerID(c)
	items, err := s.playlists.ListByUser(c.Request.Context(), userID)
	s.respondWithList(c, items, err)
}

func (s *Server) handleRecommendedPlaylists(c *gin.Context) {
	userID, _ := callerID(c)
	items, err := s.playlists.RecommendedFor(c.Request.Context(), userID)
	s.respondWithList(c, items, err)
}

// handleSearchPlaylists finds playlists whose title starts with ?title=
func (s *Server) handleSearchPlaylists(c *gin.Context) {
	title := c.Query("title")
	var errs []ValidationError
	if title == "" {
		errs = append(errs, ValidationError{Field: "title", Message: "Title prefix is required", Code: "MISSING_TITLE"})
	} else if verr := validateSearchQuery("title", title); verr != nil {
		errs = append(errs, *verr)
	}
	limit, verr := parseSearchLimit(c.Query("limit"), s.config.Playlists.SearchLimit)
	if verr != nil {
		errs = append(errs, *verr)
	}
	if len(errs) > 0 {
		s.respondWithValidationError(c, errs)
		return
	}

	items, err := s.playlists.FindByTitlePrefix(c.Request.Context(), title, limit)
	s.respondWithList(c, items, err)
}

// respondWithList answers list reads: 500 on error, 404 when empty.
func (s *Server) respondWithList(c *gin.Context, items []models.Playlist, err error) {
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	if len(items) == 0 {
		respondFail(c, http.StatusNotFound, msgPlaylistsNotFound, nil)
		return
	}
	respondSuccess(c, msgPlaylistsReceived, items)
}

// handleAddTrack appends ?trackId= to the playlist. Adding the same track
// twice lists it twice.
func (s *Server) handleAddTrack(c *gin.Context) {
	id, verr := parseID("id", c.Param("id"))
	if verr != nil {
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	}
	trackID, verr := parseID("trackId", c.Query("trackId"))
	if verr != nil {
		s.respondWithValidationError(c, []ValidationError{*verr})
		return
	}

	p, err := s.playlists.AddTrack(c.Request.Context(), id, trackID)
	switch {
	case errors.Is(err, playlist.ErrNotFound):
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	case errors.Is(err, playlist.ErrTrackNotFound):
		respondFail(c, http.StatusBadRequest, msgPlaylistNotUpdated, nil)
		return
	case err != nil:
		s.respondWithError(c, err)
		return
	}

	respondSuccess(c, msgTrackAdded, p)
}

func (s *Server) handleCreatePlaylist(c *gin.Context) {
	userID, _ := callerID(c)

	in, err := playlistInput(c, userID)
	if err != nil {
		s.discardUpload(c)
		s.respondWithError(c, err)
		return
	}

	created, err := s.playlists.Create(c.Request.Context(), in)
	if errors.Is(err, playlist.ErrOwnerNotFound) {
		s.discardUpload(c)
		respondFail(c, http.StatusBadRequest, msgPlaylistNotCreated, nil)
		return
	}
	if err != nil {
		s.discardUpload(c)
		s.respondWithError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"playlist_id": created.ID,
		"user_id":     userID,
		"tracks":      len(created.Tracks),
	}).Info("Created playlist")
	respondSuccess(c, msgPlaylistCreated, created)
}

// handleUpdatePlaylist replaces a playlist. The previous cover is removed
// only once the new one is stored.
func (s *Server) handleUpdatePlaylist(c *gin.Context) {
	userID, _ := callerID(c)

	id, verr := parseID("id", c.Param("id"))
	if verr != nil {
		s.discardUpload(c)
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	}

	existing, err := s.playlists.GetByID(c.Request.Context(), id)
	if errors.Is(err, playlist.ErrNotFound) {
		s.discardUpload(c)
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	}
	if err != nil {
		s.discardUpload(c)
		s.respondWithError(c, err)
		return
	}

	in, err := playlistInput(c, userID)
	if err != nil {
		s.discardUpload(c)
		s.respondWithError(c, err)
		return
	}

	updated, err := s.playlists.Update(c.Request.Context(), id, in)
	switch {
	case errors.Is(err, playlist.ErrNotFound):
		s.discardUpload(c)
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	case errors.Is(err, playlist.ErrOwnerNotFound):
		s.discardUpload(c)
		respondFail(c, http.StatusBadRequest, msgPlaylistNotUpdated, nil)
		return
	case err != nil:
		s.discardUpload(c)
		s.respondWithError(c, err)
		return
	}

	if old := existing.CoverPath(); in.Cover != "" && old != "" && old != in.Cover {
		s.covers.RemoveAsync(old)
	}

	respondSuccess(c, msgPlaylistUpdated, updated)
}

func (s *Server) handleDeletePlaylist(c *gin.Context) {
	id, verr := parseID("id", c.Param("id"))
	if verr != nil {
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	}

	existing, err := s.playlists.GetByID(c.Request.Context(), id)
	if errors.Is(err, playlist.ErrNotFound) {
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	}
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	if cover := existing.CoverPath(); cover != "" {
		if err := s.covers.Remove(cover); err != nil {
			s.logger.WithError(err).WithField("cover", cover).Warn("Failed to remove playlist cover")
		}
	}

	deleted, err := s.playlists.Delete(c.Request.Context(), id)
	if errors.Is(err, playlist.ErrNotFound) {
		respondFail(c, http.StatusBadRequest, msgPlaylistNotFound, nil)
		return
	}
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	respondSuccess(c, msgPlaylistDeleted, deleted)
}

// playlistInput reads the create/update form. A missing tracksIds field
// means no tracks; a malformed one is an error.
func playlistInput(c *gin.Context, ownerID int) (models.PlaylistInput, error) {
	in := models.PlaylistInput{
		Cover:       uploadedCover(c),
		Title:       strings.TrimSpace(c.PostForm("title")),
		Description: strings.TrimSpace(c.PostForm("description")),
		TrackIDs:    []int{},
		OwnerID:     ownerID,
	}

	if raw := strings.TrimSpace(c.PostForm("tracksIds")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.TrackIDs); err != nil {
			return in, fmt.Errorf("malformed tracksIds: %w", err)
		}
	}
	return in, nil
}
