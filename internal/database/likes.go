package database

import (
	"context"
	"fmt"
)

// LikeTrack records that userID likes trackID. Liking twice is a no-op.
func (db *Database) LikeTrack(ctx context.Context, userID, trackID int) error {
	var exists bool
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) > 0 FROM tracks WHERE id = ?", trackID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrTrackNotFound
	}

	if _, err := db.conn.ExecContext(ctx,
		"INSERT OR IGNORE INTO likes (user_id, track_id) VALUES (?, ?)", userID, trackID); err != nil {
		return fmt.Errorf("failed to like track: %w", err)
	}
	return nil
}

// UnlikeTrack removes a track like. Removing a like that does not exist is not an error.
func (db *Database) UnlikeTrack(ctx context.Context, userID, trackID int) error {
	if _, err := db.conn.ExecContext(ctx,
		"DELETE FROM likes WHERE user_id = ? AND track_id = ?", userID, trackID); err != nil {
		return fmt.Errorf("failed to unlike track: %w", err)
	}
	return nil
}

// LikedTrackIDs returns the ids of tracks userID has liked, highest id first.
func (db *Database) LikedTrackIDs(ctx context.Context, userID int) ([]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT track_id FROM likes WHERE user_id = ? AND track_id IS NOT NULL ORDER BY track_id DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
