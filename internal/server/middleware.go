package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cadence/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	userIDKey    = "userID"
	coverPathKey = "coverPath"
	coverField   = "cover"
)

// requestLogger logs one line per request with latency & size.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if !shouldLogRequest(c.Request.URL.Path) {
			return
		}
		s.logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"client_ip": c.ClientIP(),
			"status":    c.Writer.Status(),
			"size":      formatBytes(c.Writer.Size()),
			"latency":   time.Since(start).Round(time.Millisecond),
		}).Info("Request handled")
	}
}

// shouldLogRequest filters noisy paths from request logging output.
func shouldLogRequest(path string) bool {
	skipPaths := []string{
		"/health",
		"/covers/",
		"/favicon.ico",
	}
	for _, skipPath := range skipPaths {
		if strings.HasPrefix(path, skipPath) {
			return false
		}
	}
	return true
}

// formatBytes provides a simple approximate human-readable size.
func formatBytes(bytes int) string {
	if bytes <= 0 {
		return "0B"
	}

	const unit = 1024
	if bytes < unit {
		return "< 1KB"
	}

	div, exp := int64(unit), 0
	for n := int64(bytes) / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	units := []string{"KB", "MB", "GB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}

	return fmt.Sprintf("%d%s", int64(bytes)/div, units[exp])
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// panicRecovery turns panics into the generic 500 envelope without crashing the process.
func (s *Server) panicRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.WithFields(logrus.Fields{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"panic":  err,
				}).Error("Recovered from panic")
				respondFail(c, http.StatusInternalServerError, msgSomethingWrong, nil)
			}
		}()
		c.Next()
	}
}

// identityMiddleware resolves the bearer token into a caller id. It never
// rejects; routes that need a caller use requireCaller.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if ok && token != "" {
			claims, err := s.auth.ParseToken(strings.TrimSpace(token))
			if err != nil {
				s.logger.WithError(err).WithField("path", c.Request.URL.Path).Debug("Ignoring bearer token")
			} else {
				c.Set(userIDKey, claims.UserID)
			}
		}
		c.Next()
	}
}

// requireCaller answers 401 before any upload, validation or store access
// happens for anonymous requests.
func (s *Server) requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := callerID(c); !ok {
			respondFail(c, http.StatusUnauthorized, msgNoAccess, nil)
			return
		}
		c.Next()
	}
}

func callerID(c *gin.Context) (int, bool) {
	id := c.GetInt(userIDKey)
	return id, id > 0
}

// coverUploadMiddleware stores the optional "cover" file and records its
// reference for the handler.
func (s *Server) coverUploadMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// multipart framing on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes()+1<<20)

		fh, err := c.FormFile(coverField)
		switch {
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			c.Next()
			return
		case err != nil:
			s.respondWithValidationError(c, []ValidationError{{
				Field:   coverField,
				Message: "Could not read upload",
				Code:    "INVALID_UPLOAD",
			}})
			return
		}

		ref, err := s.covers.Save(fh)
		if err != nil {
			if verr := coverValidationError(err); verr != nil {
				s.respondWithValidationError(c, []ValidationError{*verr})
				return
			}
			s.respondWithError(c, err)
			return
		}

		c.Set(coverPathKey, ref)
		c.Next()
	}
}

func coverValidationError(err error) *ValidationError {
	switch {
	case errors.Is(err, storage.ErrCoverTooLarge):
		return &ValidationError{Field: coverField, Message: "Cover file is too large", Code: "COVER_TOO_LARGE"}
	case errors.Is(err, storage.ErrUnsupportedType):
		return &ValidationError{Field: coverField, Message: "Cover must be a JPEG, PNG, GIF, BMP or TIFF image", Code: "UNSUPPORTED_COVER_TYPE"}
	case errors.Is(err, storage.ErrInvalidImage):
		return &ValidationError{Field: coverField, Message: "Cover is not a valid image", Code: "INVALID_COVER_IMAGE"}
	}
	return nil
}

// uploadedCover returns the reference stored by coverUploadMiddleware, or "".
func uploadedCover(c *gin.Context) string {
	return c.GetString(coverPathKey)
}

// discardUpload deletes a cover uploaded during a request that did not succeed.
func (s *Server) discardUpload(c *gin.Context) {
	if ref := uploadedCover(c); ref != "" {
		s.covers.RemoveAsync(ref)
	}
}

// playlistFormValidation checks title and description before the handler runs.
func (s *Server) playlistFormValidation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var errs []ValidationError
		if verr := validatePlaylistTitle(c.PostForm("title")); verr != nil {
			errs = append(errs, *verr)
		}
		if verr := validatePlaylistDescription(c.PostForm("description")); verr != nil {
			errs = append(errs, *verr)
		}
		if len(errs) > 0 {
			s.discardUpload(c)
			s.respondWithValidationError(c, errs)
			return
		}
		c.Next()
	}
}
