package models

// Track represents a catalog track
type Track struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	TrackNumber int      `json:"trackNumber"`
	Duration    int      `json:"duration"` // in seconds
	FilePath    string   `json:"-"`        // don't expose file path to client
	FileSize    int64    `json:"-"`
	Album       *Album   `json:"album,omitempty"`
	Artists     []Artist `json:"artists,omitempty"`
	Genres      []Genre  `json:"genres,omitempty"`
}

// Album groups tracks released together
type Album struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Artist is a performer credited on one or more tracks
type Artist struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Genre is a tag shared between tracks
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ArtistNames returns the credited artist names in order.
func (t Track) ArtistNames() []string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return names
}
