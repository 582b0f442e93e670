package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Snapshot kinds written by the collector and the API.
const (
	SnapshotLogin    = "login"
	SnapshotSquad    = "squad"
	SnapshotNeighbor = "neighbor"
	SnapshotWar      = "war"
)

// DefaultSnapshotLimit caps ListSnapshots when no limit is given.
const DefaultSnapshotLimit = 50

// Identity is a player identity bound to a game server.
type Identity struct {
	ServerURL string    `json:"server_url"`
	PlayerID  string    `json:"player_id"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is an archived server payload.
type Snapshot struct {
	ID         int64           `json:"id"`
	Kind       string          `json:"kind"`
	SubjectID  string          `json:"subject_id"`
	PlayerID   string          `json:"player_id"`
	Payload    json.RawMessage `json:"payload"`
	CapturedAt time.Time       `json:"captured_at"`
}

// Store persists identities and snapshots.
type Store struct {
	db *Database
}

// NewStore opens the database at dbPath and migrates its schema.
func NewStore(dbPath string) (*Store, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	s := &Store{db: database}
	if err := s.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS identities (
			server_url TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			secret TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			subject_id TEXT NOT NULL DEFAULT '',
			player_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			captured_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_kind ON snapshots(kind, captured_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIdentity stores the identity used against serverURL, replacing any
// previous one.
func (s *Store) SaveIdentity(serverURL, playerID, secret string) error {
	_, err := s.db.Exec(`
		INSERT INTO identities (server_url, player_id, secret, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(server_url) DO UPDATE SET
			player_id = excluded.player_id,
			secret = excluded.secret,
			created_at = excluded.created_at`,
		serverURL, playerID, secret, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	log.Info().Str("server", serverURL).Str("player_id", playerID).Msg("identity saved")
	return nil
}

// LoadIdentity returns the identity stored for serverURL, or nil when none
// was saved.
func (s *Store) LoadIdentity(serverURL string) (*Identity, error) {
	var (
		id      Identity
		created int64
	)
	err := s.db.QueryRow(
		"SELECT server_url, player_id, secret, created_at FROM identities WHERE server_url = ?",
		serverURL).Scan(&id.ServerURL, &id.PlayerID, &id.Secret, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}
	id.CreatedAt = time.Unix(created, 0).UTC()
	return &id, nil
}

// SaveSnapshot archives payload, encoded as JSON, and returns the row id.
func (s *Store) SaveSnapshot(kind, subjectID, playerID string, payload any) (int64, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s snapshot: %w", kind, err)
	}

	res, err := s.db.Exec(
		"INSERT INTO snapshots (kind, subject_id, player_id, payload, captured_at) VALUES (?, ?, ?, ?, ?)",
		kind, subjectID, playerID, string(data), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to save %s snapshot: %w", kind, err)
	}
	return res.LastInsertId()
}

// ListSnapshots returns the newest snapshots, optionally filtered by kind.
// A non-positive limit selects DefaultSnapshotLimit.
func (s *Store) ListSnapshots(kind string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = DefaultSnapshotLimit
	}

	query := "SELECT id, kind, subject_id, player_id, payload, captured_at FROM snapshots"
	args := []interface{}{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		var (
			snap     Snapshot
			payload  string
			captured int64
		)
		if err := rows.Scan(&snap.ID, &snap.Kind, &snap.SubjectID, &snap.PlayerID, &payload, &captured); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snap.Payload = json.RawMessage(payload)
		snap.CapturedAt = time.Unix(captured, 0).UTC()
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// PruneSnapshots deletes snapshots captured before cutoff.
func (s *Store) PruneSnapshots(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM snapshots WHERE captured_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("deleted", n).Msg("pruned old snapshots")
	}
	return n, nil
}
