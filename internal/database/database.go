package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database wraps a *sql.DB providing higher-level helper methods for
// interacting with the application's persistent store. It is safe for
// concurrent use because the underlying *sql.DB is concurrency-safe.
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for the library importer hot path
	trackExistsStmt  *sql.Stmt
	removeTrackStmt  *sql.Stmt
	getTrackByIDStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string, maxConns int, logger *logrus.Logger) (*Database, error) {
	// _foreign_keys makes every pooled connection enforce the cascades, not just the first one
	conn, err := sql.Open("sqlite3", dbPath+"?mode=rwc&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns < 1 {
		maxConns = 1
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA auto_vacuum=INCREMENTAL;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// Conn exposes the pooled handle for repositories that build their own queries.
func (db *Database) Conn() *sql.DB {
	return db.conn
}

// Ping checks connectivity with a trivial round trip.
func (db *Database) Ping(ctx context.Context) error {
	var one int
	return db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// createTables creates tables and indices if they do not already exist, then
// executes any migrations. This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	albumsTable := `
	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL UNIQUE
	);`

	artistsTable := `
	CREATE TABLE IF NOT EXISTS artists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`

	genresTable := `
	CREATE TABLE IF NOT EXISTS genres (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`

	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		album_id INTEGER,
		track_number INTEGER DEFAULT 0,
		duration INTEGER DEFAULT 0,
		file_path TEXT NOT NULL UNIQUE,
		file_size INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE SET NULL
	);`

	trackArtistsTable := `
	CREATE TABLE IF NOT EXISTS track_artists (
		track_id INTEGER NOT NULL,
		artist_id INTEGER NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		FOREIGN KEY (artist_id) REFERENCES artists(id) ON DELETE CASCADE,
		PRIMARY KEY (track_id, artist_id)
	);`

	trackGenresTable := `
	CREATE TABLE IF NOT EXISTS track_genres (
		track_id INTEGER NOT NULL,
		genre_id INTEGER NOT NULL,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		FOREIGN KEY (genre_id) REFERENCES genres(id) ON DELETE CASCADE,
		PRIMARY KEY (track_id, genre_id)
	);`

	playlistsTable := `
	CREATE TABLE IF NOT EXISTS playlists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cover TEXT,
		title TEXT NOT NULL,
		description TEXT,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);`

	// No uniqueness on (playlist_id, track_id): a track may be appended more than once.
	playlistTracksTable := `
	CREATE TABLE IF NOT EXISTS playlist_tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		playlist_id INTEGER NOT NULL,
		track_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);`

	likesTable := `
	CREATE TABLE IF NOT EXISTS likes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		track_id INTEGER,
		playlist_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE,
		FOREIGN KEY (playlist_id) REFERENCES playlists(id) ON DELETE CASCADE
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_title ON tracks(title);",
		"CREATE INDEX IF NOT EXISTS idx_playlists_user ON playlists(user_id);",
		"CREATE INDEX IF NOT EXISTS idx_playlists_title ON playlists(title);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_playlist ON playlist_tracks(playlist_id, position);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_track ON playlist_tracks(track_id);",
		"CREATE INDEX IF NOT EXISTS idx_likes_user ON likes(user_id);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_likes_user_track ON likes(user_id, track_id) WHERE track_id IS NOT NULL;",
	}

	tables := []string{
		usersTable, albumsTable, artistsTable, genresTable, tracksTable,
		trackArtistsTable, trackGenresTable, playlistsTable, playlistTracksTable, likesTable,
	}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return db.runMigrations()
}

// runMigrations performs incremental schema updates in-place. Each migration
// should be idempotent and safe to re-run; keep them lightweight.
func (db *Database) runMigrations() error {
	// Migration 1: likes_count on playlists
	exists, err := db.columnExists("playlists", "likes_count")
	if err != nil {
		return err
	}
	if !exists {
		if _, err := db.conn.Exec("ALTER TABLE playlists ADD COLUMN likes_count INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
		db.logger.Info("Added likes_count column to playlists table")
	}

	// Migration 2: updated_at on playlists
	exists, err = db.columnExists("playlists", "updated_at")
	if err != nil {
		return err
	}
	if !exists {
		// ALTER TABLE cannot add a column with a non-constant default
		if _, err := db.conn.Exec("ALTER TABLE playlists ADD COLUMN updated_at DATETIME"); err != nil {
			return err
		}
		db.logger.Info("Added updated_at column to playlists table")
	}

	return nil
}

func (db *Database) columnExists(table, column string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?`, table, column).Scan(&exists)
	return exists, err
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.trackExistsStmt, err = db.conn.Prepare(`SELECT COUNT(*) FROM tracks WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare track exists statement: %w", err)
	}

	db.removeTrackStmt, err = db.conn.Prepare(`DELETE FROM tracks WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare remove track statement: %w", err)
	}

	db.getTrackByIDStmt, err = db.conn.Prepare(`
		SELECT id, title, track_number, duration, file_path, file_size
		FROM tracks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get track by ID statement: %w", err)
	}

	return nil
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	stmts := []*sql.Stmt{db.trackExistsStmt, db.removeTrackStmt, db.getTrackByIDStmt}
	for _, stmt := range stmts {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Warn("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
