package playlist

import "errors"

var (
	ErrNotFound      = errors.New("playlist not found")
	ErrOwnerNotFound = errors.New("playlist owner not found")
	ErrTrackNotFound = errors.New("track not found")
)
