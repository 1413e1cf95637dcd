package server

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxTitleLength       = 64
	maxDescriptionLength = 255
	maxSearchLimit       = 50
)

// playlistTextClass is the set of characters allowed in playlist titles
// and descriptions. ".-»" is a range. Whitespace covers Unicode spaces and
// the line/paragraph separators, not only ASCII.
const playlistTextClass = "[a-zA-Z0-9'!#$%&*+=?^_`{|}\"~.-»№;:,()<>\\-\\s\\v\\p{Zs}\\x{2028}\\x{2029}\\x{FEFF}]"

var (
	titlePattern       = regexp.MustCompile("^" + playlistTextClass + "{1,64}$")
	descriptionPattern = regexp.MustCompile("^" + playlistTextClass + "{0,255}$")
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// validatePlaylistTitle checks the trimmed title
func validatePlaylistTitle(title string) *ValidationError {
	title = strings.TrimSpace(title)
	if title == "" {
		return &ValidationError{
			Field:   "title",
			Message: "Playlist title is required",
			Code:    "MISSING_PLAYLIST_TITLE",
		}
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return &ValidationError{
			Field:   "title",
			Message: "Playlist title too long (max 64 characters)",
			Code:    "PLAYLIST_TITLE_TOO_LONG",
		}
	}
	if !titlePattern.MatchString(title) {
		return &ValidationError{
			Field:   "title",
			Message: "Playlist title contains invalid characters",
			Code:    "INVALID_PLAYLIST_TITLE_CHARACTERS",
		}
	}
	return nil
}

// validatePlaylistDescription checks the optional description
func validatePlaylistDescription(description string) *ValidationError {
	description = strings.TrimSpace(description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return &ValidationError{
			Field:   "description",
			Message: "Playlist description too long (max 255 characters)",
			Code:    "PLAYLIST_DESCRIPTION_TOO_LONG",
		}
	}
	if !descriptionPattern.MatchString(description) {
		return &ValidationError{
			Field:   "description",
			Message: "Playlist description contains invalid characters",
			Code:    "INVALID_PLAYLIST_DESCRIPTION_CHARACTERS",
		}
	}
	return nil
}

// parseID parses a positive integer path or query value
func parseID(field, value string) (int, *ValidationError) {
	if value == "" {
		return 0, &ValidationError{
			Field:   field,
			Message: field + " is required",
			Code:    "MISSING_" + strings.ToUpper(field),
		}
	}
	id, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ValidationError{
			Field:   field,
			Message: field + " must be a valid integer",
			Code:    "INVALID_" + strings.ToUpper(field) + "_FORMAT",
		}
	}
	if id <= 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: field + " must be positive",
			Code:    "INVALID_" + strings.ToUpper(field) + "_VALUE",
		}
	}
	return id, nil
}

// validateSearchQuery validates search query parameters
func validateSearchQuery(field, query string) *ValidationError {
	if len(query) > 1000 {
		return &ValidationError{
			Field:   field,
			Message: "Search query too long (max 1000 characters)",
			Code:    "SEARCH_QUERY_TOO_LONG",
		}
	}
	if strings.Contains(query, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "Search query contains invalid characters",
			Code:    "INVALID_SEARCH_CHARACTERS",
		}
	}
	return nil
}

// parseSearchLimit reads the optional limit, falling back to def and capping at maxSearchLimit.
func parseSearchLimit(value string, def int) (int, *ValidationError) {
	if value == "" {
		return def, nil
	}
	limit, verr := parseID("limit", value)
	if verr != nil {
		return 0, verr
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return limit, nil
}
