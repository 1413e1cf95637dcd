package server

import (
	"errors"
	"net/http"

	"cadence/internal/auth"
	"cadence/internal/database"

	"github.com/gin-gonic/gin"
)

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondWithValidationError(c, []ValidationError{{
			Field:   "body",
			Message: "username and password are required",
			Code:    "INVALID_CREDENTIALS_BODY",
		}})
		return
	}

	user, err := s.auth.Register(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrRegistrationDisabled):
		respondFail(c, http.StatusForbidden, "Registration is disabled", nil)
		return
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, database.ErrUsernameTaken):
		respondFail(c, http.StatusBadRequest, err.Error(), nil)
		return
	case err != nil:
		s.respondWithError(c, err)
		return
	}

	s.logger.WithField("username", user.Username).Info("Registered user")
	respondSuccess(c, "User registered", user)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondWithValidationError(c, []ValidationError{{
			Field:   "body",
			Message: "username and password are required",
			Code:    "INVALID_CREDENTIALS_BODY",
		}})
		return
	}

	token, user, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondFail(c, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	respondSuccess(c, "Logged in", gin.H{"token": token, "user": user})
}

// handleDeleteAccount removes the caller together with their playlists and
// likes. Their cover files are left to the orphan sweep.
func (s *Server) handleDeleteAccount(c *gin.Context) {
	userID, _ := callerID(c)

	err := s.catalog.DeleteUser(c.Request.Context(), userID)
	if errors.Is(err, database.ErrUserNotFound) {
		respondFail(c, http.StatusNotFound, "User not found", nil)
		return
	}
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	s.logger.WithField("user_id", userID).Info("Deleted account")
	respondSuccess(c, "Account deleted", nil)
}
