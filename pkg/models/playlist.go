package models

// Playlist is a user-owned, ordered collection of tracks
type Playlist struct {
	ID          int     `json:"id"`
	Cover       *string `json:"cover"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	LikesCount  int     `json:"likesCount"`
	Tracks      []Track `json:"tracks"`
	User        *User   `json:"user,omitempty"`
}

// CoverPath returns the stored cover location or "" when the playlist has none.
func (p *Playlist) CoverPath() string {
	if p == nil || p.Cover == nil {
		return ""
	}
	return *p.Cover
}

// PlaylistInput carries the fields for creating or replacing a playlist.
// Cover is empty when no new file was uploaded.
type PlaylistInput struct {
	Cover       string
	Title       string
	Description string
	TrackIDs    []int
	OwnerID     int
}

// PlaylistPage is one page of the playlist listing.
type PlaylistPage struct {
	Items      []Playlist `json:"items"`
	TotalCount int        `json:"totalCount"`
	LastPage   int        `json:"lastPage"`
}
