// Package storage provides SQLite-based persistence for recorded games and
// capture calibrations.
// Uses the pure-Go modernc.org/sqlite driver to avoid CGO dependencies.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/vovakirdan/nestris-ocr/internal/tetris"
	"github.com/vovakirdan/nestris-ocr/internal/vision"
)

// Store manages the SQLite database connection.
type Store struct {
	db *sql.DB
}

// Game sources.
const (
	SourceEmulator = "emulator"
	SourceSSH      = "ssh"
	SourceOCR      = "ocr"
)

// GameRecord is one finished game.
type GameRecord struct {
	ID         string
	Source     string
	Player     string
	StartLevel int
	Level      int
	Lines      int
	Score      int
	Placements int
	TetrisRate float64
	Duration   time.Duration
	EndReason  string
	// Stream is the assembled packet stream of the game. It is only loaded
	// by Game.
	Stream    []byte
	CreatedAt time.Time
}

// PlacementRecord is one placement of a recorded game, with the status
// right after it.
type PlacementRecord struct {
	Index int
	Piece tetris.TetrominoType
	Pose  tetris.Pose
	Level int
	Lines int
	Score int
}

// Notation returns the placement in "T-345" notation.
func (p PlacementRecord) Notation() string {
	return tetris.FromPose(p.Piece, p.Pose).TetrisNotation()
}

// Open creates or opens a SQLite database at the given path.
// It creates the parent directories if needed and runs migrations.
func Open(dbPath string) (*Store, error) {
	// Expand ~ to home directory
	if dbPath != "" && dbPath[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("storage: cannot expand home directory: %w", err)
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: cannot create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: cannot connect to database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migration failed: %w", err)
	}
	return store, nil
}

// migrate creates the database schema if it doesn't exist.
func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS games (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			player TEXT NOT NULL DEFAULT '',
			start_level INTEGER NOT NULL,
			level INTEGER NOT NULL,
			lines INTEGER NOT NULL,
			score INTEGER NOT NULL,
			placements INTEGER NOT NULL,
			tetris_rate REAL NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			end_reason TEXT NOT NULL DEFAULT '',
			stream BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_games_top ON games(score DESC);
		CREATE INDEX IF NOT EXISTS idx_games_source ON games(source);

		CREATE TABLE IF NOT EXISTS placements (
			game_id TEXT NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			idx INTEGER NOT NULL,
			piece INTEGER NOT NULL,
			pose INTEGER NOT NULL,
			level INTEGER NOT NULL,
			lines INTEGER NOT NULL,
			score INTEGER NOT NULL,
			PRIMARY KEY (game_id, idx)
		);

		CREATE TABLE IF NOT EXISTS calibrations (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveGame records a finished game and its placements in one transaction.
// A new id is generated when rec.ID is empty. Returns the game id.
func (s *Store) SaveGame(rec GameRecord, placements []PlacementRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("storage: cannot save game: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO games
		 (id, source, player, start_level, level, lines, score, placements, tetris_rate, duration_ms, end_reason, stream)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Source, rec.Player, rec.StartLevel, rec.Level, rec.Lines, rec.Score,
		rec.Placements, rec.TetrisRate, rec.Duration.Milliseconds(), rec.EndReason, rec.Stream,
	)
	if err != nil {
		return "", fmt.Errorf("storage: cannot save game: %w", err)
	}

	for _, p := range placements {
		pose, err := tetris.EncodePose(p.Pose)
		if err != nil {
			return "", fmt.Errorf("storage: cannot save placement %d: %w", p.Index, err)
		}
		_, err = tx.Exec(
			`INSERT INTO placements (game_id, idx, piece, pose, level, lines, score)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, p.Index, int(p.Piece), int(pose), p.Level, p.Lines, p.Score,
		)
		if err != nil {
			return "", fmt.Errorf("storage: cannot save placement %d: %w", p.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("storage: cannot save game: %w", err)
	}
	return rec.ID, nil
}

const gameColumns = `id, source, player, start_level, level, lines, score, placements,
	tetris_rate, duration_ms, end_reason, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(row scanner, extra ...any) (GameRecord, error) {
	var g GameRecord
	var durationMs int64
	var createdAt any
	dest := append([]any{
		&g.ID, &g.Source, &g.Player, &g.StartLevel, &g.Level, &g.Lines, &g.Score,
		&g.Placements, &g.TetrisRate, &durationMs, &g.EndReason, &createdAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return g, err
	}
	g.Duration = time.Duration(durationMs) * time.Millisecond
	g.CreatedAt = parseTimestamp(createdAt)
	return g, nil
}

// parseTimestamp handles both time.Time and string datetimes.
func parseTimestamp(v any) time.Time {
	switch v := v.(type) {
	case time.Time:
		return v
	case string:
		if parsed, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// Game retrieves a game with its packet stream. Returns nil if no game has
// that id.
func (s *Store) Game(id string) (*GameRecord, error) {
	var stream []byte
	g, err := scanGame(s.db.QueryRow(
		`SELECT `+gameColumns+`, stream FROM games WHERE id = ?`, id,
	), &stream)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query game: %w", err)
	}
	g.Stream = stream
	return &g, nil
}

func (s *Store) queryGames(query string, args ...any) ([]GameRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query games: %w", err)
	}
	defer rows.Close()

	var games []GameRecord
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return games, nil
}

// RecentGames retrieves the most recent games, newest first.
func (s *Store) RecentGames(limit int) ([]GameRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryGames(
		`SELECT `+gameColumns+` FROM games ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
}

// TopGames retrieves the highest scoring games.
func (s *Store) TopGames(limit int) ([]GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryGames(
		`SELECT `+gameColumns+` FROM games ORDER BY score DESC LIMIT ?`,
		limit,
	)
}

// HighScore returns the highest recorded score, or 0.
func (s *Store) HighScore() (int, error) {
	var score sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(score) FROM games").Scan(&score); err != nil {
		return 0, fmt.Errorf("storage: cannot query high score: %w", err)
	}
	if !score.Valid {
		return 0, nil
	}
	return int(score.Int64), nil
}

// Placements retrieves the placements of a game in order.
func (s *Store) Placements(gameID string) ([]PlacementRecord, error) {
	rows, err := s.db.Query(
		`SELECT idx, piece, pose, level, lines, score
		 FROM placements
		 WHERE game_id = ?
		 ORDER BY idx`,
		gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query placements: %w", err)
	}
	defer rows.Close()

	var out []PlacementRecord
	for rows.Next() {
		var p PlacementRecord
		var piece, pose int
		if err := rows.Scan(&p.Index, &piece, &pose, &p.Level, &p.Lines, &p.Score); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		p.Piece = tetris.TetrominoType(piece)
		p.Pose = tetris.DecodePose(uint16(pose))
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return out, nil
}

// DeleteGame removes a game and its placements.
func (s *Store) DeleteGame(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("storage: cannot delete game: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM placements WHERE game_id = ?", id); err != nil {
		return fmt.Errorf("storage: cannot delete game: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM games WHERE id = ?", id); err != nil {
		return fmt.Errorf("storage: cannot delete game: %w", err)
	}
	return tx.Commit()
}

// SourceStats contains aggregated statistics for one game source.
type SourceStats struct {
	Source     string
	GamesCount int
	HighScore  int
	AvgScore   float64
	TotalLines int64
	LastPlayed time.Time
}

// Stats retrieves statistics per source for every source with games.
func (s *Store) Stats() (map[string]*SourceStats, error) {
	rows, err := s.db.Query(
		`SELECT source, COUNT(*), MAX(score), AVG(score), SUM(lines), MAX(created_at)
		 FROM games
		 GROUP BY source`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: cannot get stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]*SourceStats)
	for rows.Next() {
		var st SourceStats
		var lastPlayed any
		if err := rows.Scan(&st.Source, &st.GamesCount, &st.HighScore, &st.AvgScore, &st.TotalLines, &lastPlayed); err != nil {
			return nil, fmt.Errorf("storage: cannot scan stats row: %w", err)
		}
		st.LastPlayed = parseTimestamp(lastPlayed)
		stats[st.Source] = &st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: row iteration error: %w", err)
	}
	return stats, nil
}

// SaveCalibration stores cal under name, replacing any previous one.
func (s *Store) SaveCalibration(name string, cal vision.Calibration) error {
	data, err := yaml.Marshal(cal)
	if err != nil {
		return fmt.Errorf("storage: cannot encode calibration: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO calibrations (name, data) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		name, string(data),
	)
	if err != nil {
		return fmt.Errorf("storage: cannot save calibration: %w", err)
	}
	return nil
}

// Calibration retrieves a calibration by name. Returns nil if none exists.
func (s *Store) Calibration(name string) (*vision.Calibration, error) {
	var data string
	err := s.db.QueryRow("SELECT data FROM calibrations WHERE name = ?", name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query calibration: %w", err)
	}
	var cal vision.Calibration
	if err := yaml.Unmarshal([]byte(data), &cal); err != nil {
		return nil, fmt.Errorf("storage: cannot parse calibration %s: %w", name, err)
	}
	return &cal, nil
}

// CalibrationNames lists the stored calibrations.
func (s *Store) CalibrationNames() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM calibrations ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("storage: cannot query calibrations: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("storage: cannot scan row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
