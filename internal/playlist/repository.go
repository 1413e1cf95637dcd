package playlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cadence/pkg/models"

	"github.com/sirupsen/logrus"
)

// Repository reads and writes playlists. Every method fully materialises
// the relations it returns; nothing is fetched lazily afterwards.
type Repository struct {
	conn           *sql.DB
	logger         *logrus.Logger
	likedWindow    int
	recommendLimit int
}

// Option configures a Repository.
type Option func(*Repository)

// WithRecommendation sets how many liked tracks are considered and how many
// playlists RecommendedFor returns at most.
func WithRecommendation(likedWindow, limit int) Option {
	return func(r *Repository) {
		if likedWindow > 0 {
			r.likedWindow = likedWindow
		}
		if limit > 0 {
			r.recommendLimit = limit
		}
	}
}

// NewRepository builds a repository over an open connection pool.
func NewRepository(conn *sql.DB, logger *logrus.Logger, opts ...Option) *Repository {
	r := &Repository{
		conn:           conn,
		logger:         logger,
		likedWindow:    20,
		recommendLimit: 10,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LastPage is the number of the last page when count rows are split into pages of limit.
func LastPage(count, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (count + limit - 1) / limit
}

// ListPage returns page (1-based) of all playlists with owner, tracks and the
// tracks' album, artists and genres, plus the total number of playlists.
func (r *Repository) ListPage(ctx context.Context, page, limit int) ([]models.Playlist, int, error) {
	var count int
	if err := r.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM playlists").Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("failed to count playlists: %w", err)
	}
	// pages past the end never reach the query, so the offset cannot overflow
	if page < 1 || limit < 1 || page > LastPage(count, limit) {
		return []models.Playlist{}, count, nil
	}

	playlists, err := loadPlaylists(ctx, r.conn, "ORDER BY p.id LIMIT ? OFFSET ?", limit, limit*(page-1))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load playlist page: %w", err)
	}
	if err := loadTracks(ctx, r.conn, playlists, true); err != nil {
		return nil, 0, err
	}
	return playlists, count, nil
}

// GetByID returns the playlist with its owner and tracks, or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id int) (*models.Playlist, error) {
	return loadWithOwnerAndTracks(ctx, r.conn, id)
}

// ListByUser returns the user's playlists, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID int) ([]models.Playlist, error) {
	playlists, err := loadPlaylists(ctx, r.conn, "WHERE p.user_id = ? ORDER BY p.id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user playlists: %w", err)
	}
	if err := loadTracks(ctx, r.conn, playlists, false); err != nil {
		return nil, err
	}
	return playlists, nil
}

// RecommendedFor picks the highest-id track among the user's liked tracks
// and returns playlists whose entire track list is that one track. It does
// not match playlists that merely contain the track.
func (r *Repository) RecommendedFor(ctx context.Context, userID int) ([]models.Playlist, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT track_id FROM likes
		WHERE user_id = ? AND track_id IS NOT NULL
		ORDER BY track_id DESC
		LIMIT ?`, userID, r.likedWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to load liked tracks: %w", err)
	}
	var liked []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		liked = append(liked, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(liked) == 0 {
		return []models.Playlist{}, nil
	}

	seed := liked[0]
	playlists, err := loadPlaylists(ctx, r.conn, `
		WHERE p.id IN (
			SELECT playlist_id FROM playlist_tracks
			GROUP BY playlist_id
			HAVING MIN(track_id) = ? AND MAX(track_id) = ?
		)
		ORDER BY p.id
		LIMIT ?`, seed, seed, r.recommendLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recommended playlists: %w", err)
	}
	if err := loadTracks(ctx, r.conn, playlists, false); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"seed_track": seed,
		"matches":    len(playlists),
	}).Debug("Computed playlist recommendations")
	return playlists, nil
}

// FindByTitlePrefix returns at most limit playlists whose title starts with
// prefix. The comparison is case-sensitive.
func (r *Repository) FindByTitlePrefix(ctx context.Context, prefix string, limit int) ([]models.Playlist, error) {
	if limit < 1 {
		return []models.Playlist{}, nil
	}
	playlists, err := loadPlaylists(ctx, r.conn,
		"WHERE substr(p.title, 1, length(?)) = ? ORDER BY p.id LIMIT ?", prefix, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search playlists: %w", err)
	}
	if err := loadTracks(ctx, r.conn, playlists, false); err != nil {
		return nil, err
	}
	return playlists, nil
}

// Create stores a new playlist owned by in.OwnerID. Track ids that do not
// exist are dropped. Returns ErrOwnerNotFound when the owner is missing.
func (r *Repository) Create(ctx context.Context, in models.PlaylistInput) (*models.Playlist, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := resolveOwner(ctx, tx, in.OwnerID); err != nil {
		return nil, err
	}
	trackIDs, err := resolveTracks(ctx, tx, in.TrackIDs)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO playlists (cover, title, description, user_id, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		nullString(in.Cover), in.Title, nullString(in.Description), in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert playlist: %w", err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	id := int(id64)

	if err := linkTracks(ctx, tx, id, trackIDs, 0); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit playlist: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"playlist_id": id,
		"user_id":     in.OwnerID,
		"requested":   len(in.TrackIDs),
		"linked":      len(trackIDs),
	}).Debug("Created playlist")

	return loadWithOwnerAndTracks(ctx, r.conn, id)
}

// Update replaces title, description, owner and track list of playlist id.
// The cover is replaced only when in.Cover is set. Returns ErrOwnerNotFound
// or ErrNotFound when a reference is missing.
func (r *Repository) Update(ctx context.Context, id int, in models.PlaylistInput) (*models.Playlist, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	trackIDs, err := resolveTracks(ctx, tx, in.TrackIDs)
	if err != nil {
		return nil, err
	}
	current, err := playlistCover(ctx, tx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	notFound := errors.Is(err, ErrNotFound)
	if err := resolveOwner(ctx, tx, in.OwnerID); err != nil {
		return nil, err
	}
	if notFound {
		return nil, ErrNotFound
	}

	cover := current
	if in.Cover != "" {
		cover = nullString(in.Cover)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE playlists
		SET cover = ?, title = ?, description = ?, user_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		cover, in.Title, nullString(in.Description), in.OwnerID, id); err != nil {
		return nil, fmt.Errorf("failed to update playlist: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM playlist_tracks WHERE playlist_id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to clear playlist tracks: %w", err)
	}
	if err := linkTracks(ctx, tx, id, trackIDs, 0); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit playlist update: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"playlist_id": id,
		"linked":      len(trackIDs),
	}).Debug("Updated playlist")

	return loadWithOwnerAndTracks(ctx, r.conn, id)
}

// AddTrack appends trackID to the end of playlist id. The same track may be
// appended any number of times.
func (r *Repository) AddTrack(ctx context.Context, id, trackID int) (*models.Playlist, error) {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := playlistCover(ctx, tx, id); err != nil {
		return nil, err
	}
	found, err := resolveTracks(ctx, tx, []int{trackID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrTrackNotFound
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), -1) + 1 FROM playlist_tracks WHERE playlist_id = ?", id).Scan(&next); err != nil {
		return nil, err
	}
	if err := linkTracks(ctx, tx, id, found, next); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE playlists SET updated_at = CURRENT_TIMESTAMP WHERE id = ?", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit track append: %w", err)
	}

	return loadWithOwnerAndTracks(ctx, r.conn, id)
}

// Delete removes playlist id and returns it as it was, so the caller can
// clean up its cover file. Returns ErrNotFound when there is nothing to delete.
func (r *Repository) Delete(ctx context.Context, id int) (*models.Playlist, error) {
	playlist, err := loadWithOwnerAndTracks(ctx, r.conn, id)
	if err != nil {
		return nil, err
	}
	if _, err := r.conn.ExecContext(ctx, "DELETE FROM playlists WHERE id = ?", id); err != nil {
		return nil, fmt.Errorf("failed to delete playlist: %w", err)
	}

	r.logger.WithField("playlist_id", id).Debug("Deleted playlist")
	return playlist, nil
}

// CoverPaths returns every cover currently referenced by a playlist.
func (r *Repository) CoverPaths(ctx context.Context) (map[string]bool, error) {
	rows, err := r.conn.QueryContext(ctx, "SELECT cover FROM playlists WHERE cover IS NOT NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	covers := make(map[string]bool)
	for rows.Next() {
		var cover string
		if err := rows.Scan(&cover); err != nil {
			return nil, err
		}
		covers[cover] = true
	}
	return covers, rows.Err()
}
