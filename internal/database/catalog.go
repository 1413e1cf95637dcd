package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cadence/pkg/models"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// InsertTrack inserts a new track or updates an existing track (matched by
// file_path) returning the track's database ID. Album, artists and genres are
// created on first sight and relinked on every call.
func (db *Database) InsertTrack(track models.Track) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin track import: %w", err)
	}
	defer tx.Rollback()

	var albumID sql.NullInt64
	if track.Album != nil && track.Album.Title != "" {
		id, err := upsertNamed(tx, "albums", "title", track.Album.Title)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert album: %w", err)
		}
		albumID = sql.NullInt64{Int64: int64(id), Valid: true}
	}

	var trackID int
	err = tx.QueryRow("SELECT id FROM tracks WHERE file_path = ?", track.FilePath).Scan(&trackID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.Exec(`
			INSERT INTO tracks (title, album_id, track_number, duration, file_path, file_size)
			VALUES (?, ?, ?, ?, ?, ?)`,
			track.Title, albumID, track.TrackNumber, track.Duration, track.FilePath, track.FileSize)
		if err != nil {
			return 0, fmt.Errorf("failed to insert track: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		trackID = int(id)
	case err != nil:
		return 0, fmt.Errorf("failed to look up track: %w", err)
	default:
		if _, err := tx.Exec(`
			UPDATE tracks SET title = ?, album_id = ?, track_number = ?, duration = ?, file_size = ?
			WHERE id = ?`,
			track.Title, albumID, track.TrackNumber, track.Duration, track.FileSize, trackID); err != nil {
			return 0, fmt.Errorf("failed to update track: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM track_artists WHERE track_id = ?", trackID); err != nil {
			return 0, err
		}
		if _, err := tx.Exec("DELETE FROM track_genres WHERE track_id = ?", trackID); err != nil {
			return 0, err
		}
	}

	for i, artist := range track.Artists {
		if artist.Name == "" {
			continue
		}
		artistID, err := upsertNamed(tx, "artists", "name", artist.Name)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert artist: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO track_artists (track_id, artist_id, position) VALUES (?, ?, ?)",
			trackID, artistID, i); err != nil {
			return 0, fmt.Errorf("failed to link artist: %w", err)
		}
	}

	for _, genre := range track.Genres {
		if genre.Name == "" {
			continue
		}
		genreID, err := upsertNamed(tx, "genres", "name", genre.Name)
		if err != nil {
			return 0, fmt.Errorf("failed to upsert genre: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO track_genres (track_id, genre_id) VALUES (?, ?)",
			trackID, genreID); err != nil {
			return 0, fmt.Errorf("failed to link genre: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit track import: %w", err)
	}
	return trackID, nil
}

// upsertNamed returns the id of the row in table whose unique column equals
// value, inserting it first when missing. table and column are never user input.
func upsertNamed(tx *sql.Tx, table, column, value string) (int, error) {
	if _, err := tx.Exec(fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?)", table, column), value); err != nil {
		return 0, err
	}
	var id int
	err := tx.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, column), value).Scan(&id)
	return id, err
}

// GetTrackByID returns a track with its album, artists and genres.
func (db *Database) GetTrackByID(ctx context.Context, id int) (*models.Track, error) {
	var track models.Track
	err := db.getTrackByIDStmt.QueryRowContext(ctx, id).Scan(
		&track.ID, &track.Title, &track.TrackNumber, &track.Duration, &track.FilePath, &track.FileSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}

	tracks := []models.Track{track}
	if err := AttachCatalog(ctx, db.conn, tracks); err != nil {
		return nil, err
	}
	return &tracks[0], nil
}

// SearchTracks matches title, album title or artist name. An empty query
// returns the whole catalog.
func (db *Database) SearchTracks(ctx context.Context, query string) ([]models.Track, error) {
	pattern := "%" + query + "%"
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT t.id, t.title, t.track_number, t.duration, t.file_path, t.file_size
		FROM tracks t
		LEFT JOIN albums al ON al.id = t.album_id
		LEFT JOIN track_artists ta ON ta.track_id = t.id
		LEFT JOIN artists ar ON ar.id = ta.artist_id
		WHERE t.title LIKE ? OR al.title LIKE ? OR ar.name LIKE ?
		ORDER BY t.title, t.id`, pattern, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks, err := ScanTrackRows(rows)
	if err != nil {
		return nil, err
	}
	if err := AttachCatalog(ctx, db.conn, tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}

// CountTracks returns the number of tracks in the catalog.
func (db *Database) CountTracks() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM tracks").Scan(&count)
	return count, err
}

// TrackExists reports whether a track for filePath has been imported.
func (db *Database) TrackExists(filePath string) (bool, error) {
	var count int
	if err := db.trackExistsStmt.QueryRow(filePath).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// RemoveTrackByPath deletes the track imported from filePath. Playlist
// entries and likes referencing it cascade.
func (db *Database) RemoveTrackByPath(filePath string) error {
	_, err := db.removeTrackStmt.Exec(filePath)
	return err
}

// ScanTrackRows scans result sets of
// (id, title, track_number, duration, file_path, file_size) into tracks.
// Callers must have already deferred rows.Close().
func ScanTrackRows(rows *sql.Rows) ([]models.Track, error) {
	tracks := []models.Track{}
	for rows.Next() {
		var track models.Track
		if err := rows.Scan(&track.ID, &track.Title, &track.TrackNumber,
			&track.Duration, &track.FilePath, &track.FileSize); err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// AttachCatalog fills album, artists and genres for every track in place.
// The same track may appear more than once in tracks.
func AttachCatalog(ctx context.Context, q Queryer, tracks []models.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	ids := uniqueTrackIDs(tracks)
	marks, args := Placeholders(ids)

	albums := make(map[int]*models.Album)
	rows, err := q.QueryContext(ctx, `
		SELECT t.id, a.id, a.title
		FROM tracks t
		JOIN albums a ON a.id = t.album_id
		WHERE t.id IN (`+marks+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to load albums: %w", err)
	}
	for rows.Next() {
		var trackID int
		var album models.Album
		if err := rows.Scan(&trackID, &album.ID, &album.Title); err != nil {
			rows.Close()
			return err
		}
		albums[trackID] = &album
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	artists := make(map[int][]models.Artist)
	rows, err = q.QueryContext(ctx, `
		SELECT ta.track_id, ar.id, ar.name
		FROM track_artists ta
		JOIN artists ar ON ar.id = ta.artist_id
		WHERE ta.track_id IN (`+marks+`)
		ORDER BY ta.track_id, ta.position`, args...)
	if err != nil {
		return fmt.Errorf("failed to load artists: %w", err)
	}
	for rows.Next() {
		var trackID int
		var artist models.Artist
		if err := rows.Scan(&trackID, &artist.ID, &artist.Name); err != nil {
			rows.Close()
			return err
		}
		artists[trackID] = append(artists[trackID], artist)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	genres := make(map[int][]models.Genre)
	rows, err = q.QueryContext(ctx, `
		SELECT tg.track_id, g.id, g.name
		FROM track_genres tg
		JOIN genres g ON g.id = tg.genre_id
		WHERE tg.track_id IN (`+marks+`)
		ORDER BY tg.track_id, g.name`, args...)
	if err != nil {
		return fmt.Errorf("failed to load genres: %w", err)
	}
	for rows.Next() {
		var trackID int
		var genre models.Genre
		if err := rows.Scan(&trackID, &genre.ID, &genre.Name); err != nil {
			rows.Close()
			return err
		}
		genres[trackID] = append(genres[trackID], genre)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range tracks {
		id := tracks[i].ID
		tracks[i].Album = albums[id]
		tracks[i].Artists = artists[id]
		tracks[i].Genres = genres[id]
	}
	return nil
}

func uniqueTrackIDs(tracks []models.Track) []int {
	seen := make(map[int]bool, len(tracks))
	ids := make([]int, 0, len(tracks))
	for _, t := range tracks {
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// Placeholders returns "?, ?, ..." for ids along with the matching args.
func Placeholders(ids []int) (string, []any) {
	marks := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}
