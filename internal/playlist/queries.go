package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cadence/internal/database"
	"cadence/pkg/models"
)

// querier is satisfied by *sql.DB and *sql.Tx so loaders can run inside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const selectPlaylists = `
	SELECT p.id, p.cover, p.title, p.description, p.likes_count, u.id, u.username, u.created_at
	FROM playlists p
	JOIN users u ON u.id = p.user_id`

// loadPlaylists runs selectPlaylists with the given tail (WHERE/ORDER/LIMIT)
// and returns the rows with their owner attached and an empty track list.
func loadPlaylists(ctx context.Context, q querier, tail string, args ...any) ([]models.Playlist, error) {
	rows, err := q.QueryContext(ctx, selectPlaylists+" "+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playlists := []models.Playlist{}
	for rows.Next() {
		var p models.Playlist
		var cover, description sql.NullString
		var owner models.User
		if err := rows.Scan(&p.ID, &cover, &p.Title, &description, &p.LikesCount,
			&owner.ID, &owner.Username, &owner.CreatedAt); err != nil {
			return nil, err
		}
		if cover.Valid {
			p.Cover = &cover.String
		}
		if description.Valid {
			p.Description = &description.String
		}
		p.User = &owner
		p.Tracks = []models.Track{}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// loadTracks fills every playlist's ordered track list. With catalog set,
// each track also carries its album, artists and genres.
func loadTracks(ctx context.Context, q querier, playlists []models.Playlist, catalog bool) error {
	if len(playlists) == 0 {
		return nil
	}

	index := make(map[int]int, len(playlists))
	ids := make([]int, len(playlists))
	for i, p := range playlists {
		index[p.ID] = i
		ids[i] = p.ID
	}
	marks, args := database.Placeholders(ids)

	rows, err := q.QueryContext(ctx, `
		SELECT pt.playlist_id, t.id, t.title, t.track_number, t.duration, t.file_path, t.file_size
		FROM playlist_tracks pt
		JOIN tracks t ON t.id = pt.track_id
		WHERE pt.playlist_id IN (`+marks+`)
		ORDER BY pt.playlist_id, pt.position, pt.id`, args...)
	if err != nil {
		return fmt.Errorf("failed to load playlist tracks: %w", err)
	}
	defer rows.Close()

	var all []models.Track
	var owners []int
	for rows.Next() {
		var playlistID int
		var t models.Track
		if err := rows.Scan(&playlistID, &t.ID, &t.Title, &t.TrackNumber, &t.Duration, &t.FilePath, &t.FileSize); err != nil {
			return err
		}
		all = append(all, t)
		owners = append(owners, playlistID)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	if catalog {
		if err := database.AttachCatalog(ctx, q, all); err != nil {
			return err
		}
	}

	for i, t := range all {
		p := &playlists[index[owners[i]]]
		p.Tracks = append(p.Tracks, t)
	}
	return nil
}

// loadWithOwnerAndTracks returns one playlist with its owner and tracks, or ErrNotFound.
func loadWithOwnerAndTracks(ctx context.Context, q querier, id int) (*models.Playlist, error) {
	playlists, err := loadPlaylists(ctx, q, "WHERE p.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(playlists) == 0 {
		return nil, ErrNotFound
	}
	if err := loadTracks(ctx, q, playlists, false); err != nil {
		return nil, err
	}
	return &playlists[0], nil
}

// playlistCover returns the stored cover of playlist id, or ErrNotFound.
func playlistCover(ctx context.Context, q querier, id int) (sql.NullString, error) {
	var cover sql.NullString
	err := q.QueryRowContext(ctx, "SELECT cover FROM playlists WHERE id = ?", id).Scan(&cover)
	if errors.Is(err, sql.ErrNoRows) {
		return cover, ErrNotFound
	}
	return cover, err
}

// resolveOwner checks the owner account exists.
func resolveOwner(ctx context.Context, q querier, userID int) error {
	var exists bool
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) > 0 FROM users WHERE id = ?", userID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrOwnerNotFound
	}
	return nil
}

// resolveTracks keeps the requested ids that exist, in request order and
// without repeats. Unknown ids are dropped silently.
func resolveTracks(ctx context.Context, q querier, requested []int) ([]int, error) {
	wanted := make([]int, 0, len(requested))
	seen := make(map[int]bool, len(requested))
	for _, id := range requested {
		if !seen[id] {
			seen[id] = true
			wanted = append(wanted, id)
		}
	}
	if len(wanted) == 0 {
		return []int{}, nil
	}

	marks, args := database.Placeholders(wanted)
	rows, err := q.QueryContext(ctx, "SELECT id FROM tracks WHERE id IN ("+marks+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tracks: %w", err)
	}
	defer rows.Close()

	found := make(map[int]bool, len(wanted))
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(found))
	for _, id := range wanted {
		if found[id] {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// linkTracks appends trackIDs to the playlist starting at position from.
func linkTracks(ctx context.Context, q querier, playlistID int, trackIDs []int, from int) error {
	for i, trackID := range trackIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO playlist_tracks (playlist_id, track_id, position) VALUES (?, ?, ?)",
			playlistID, trackID, from+i); err != nil {
			return fmt.Errorf("failed to link track %d: %w", trackID, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
