package models

import "time"

// User is an account that owns playlists and likes
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Like records a user's like of a track or a playlist
type Like struct {
	ID         int       `json:"id"`
	UserID     int       `json:"userId"`
	TrackID    *int      `json:"trackId,omitempty"`
	PlaylistID *int      `json:"playlistId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
