package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
)

const (
	msgPlaylistsReceived  = "Playlists received"
	msgPlaylistReceived   = "Playlist received"
	msgPlaylistsNotFound  = "Playlists not found"
	msgPlaylistNotFound   = "Playlist not found"
	msgPlaylistCreated    = "Playlist created"
	msgPlaylistNotCreated = "Playlist not created"
	msgPlaylistUpdated    = "Playlist updated"
	msgPlaylistNotUpdated = "Playlist not updated"
	msgPlaylistDeleted    = "Playlist deleted"
	msgTrackAdded         = "Track added to playlist"
	msgNoAccess           = "No access"
	msgValidationFailed   = "Validation failed"
	msgSomethingWrong     = "Something went wrong"
	msgRouteNotFound      = "Route not found"
	msgTooManyRequests    = "Too many requests, try again later"
	msgTrackNotFound      = "Track not found"
)

// Envelope wraps every API response
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respondSuccess(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Envelope{Status: statusSuccess, Message: message, Data: data})
}

func respondFail(c *gin.Context, code int, message string, data any) {
	c.AbortWithStatusJSON(code, Envelope{Status: statusFail, Message: message, Data: data})
}

// respondWithError logs an unexpected failure and answers with the generic 500 envelope.
func (s *Server) respondWithError(c *gin.Context, err error) {
	s.logger.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).WithError(err).Error("Server error")

	respondFail(c, http.StatusInternalServerError, msgSomethingWrong, nil)
}

// respondWithValidationError sends per-field validation errors
func (s *Server) respondWithValidationError(c *gin.Context, errs []ValidationError) {
	s.logger.WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"errors": errs,
	}).Warn("Validation failed")

	respondFail(c, http.StatusBadRequest, msgValidationFailed, errs)
}
