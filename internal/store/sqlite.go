package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/quorum/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent phase workers.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NewULID generates a new ULID string, used as the session id.
func NewULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

// SaveSession upserts the session row and rewrites its submissions. Called
// once per phase transition and at termination, so replacing the submission
// rows wholesale keeps the write path idempotent.
func (s *SQLiteStore) SaveSession(ctx context.Context, session *models.Session) error {
	peersJSON, err := json.Marshal(session.Peers)
	if err != nil {
		return fmt.Errorf("marshal peers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, base_ref, target_ref, lead, peers, round, max_rounds, state, consensus_reached, final_text, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.BaseRef, session.TargetRef, session.Lead, string(peersJSON),
		session.Round, session.MaxRounds, string(session.State),
		boolToInt(session.ConsensusReached), session.FinalText,
		session.CreatedAt, session.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM submissions WHERE session_id = ?", session.ID); err != nil {
		return fmt.Errorf("clear submissions: %w", err)
	}

	rounds := make([]int, 0, len(session.Submissions))
	for round := range session.Submissions {
		rounds = append(rounds, round)
	}
	sort.Ints(rounds)

	for _, round := range rounds {
		for _, sub := range session.Submissions[round] {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO submissions (session_id, participant, round, phase, verdict, text, implicit, submitted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				session.ID, sub.Participant, sub.Round, string(sub.Phase),
				string(sub.Verdict), sub.Text, boolToInt(sub.Implicit), sub.SubmittedAt,
			)
			if err != nil {
				return fmt.Errorf("save submission: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	var peersJSON, state string
	var consensusReached int
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, base_ref, target_ref, lead, peers, round, max_rounds, state, consensus_reached, final_text, created_at, completed_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.BaseRef, &session.TargetRef, &session.Lead, &peersJSON,
		&session.Round, &session.MaxRounds, &state,
		&consensusReached, &session.FinalText, &session.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	session.State = models.State(state)
	session.ConsensusReached = consensusReached != 0
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(peersJSON), &session.Peers); err != nil {
		return nil, fmt.Errorf("unmarshal peers: %w", err)
	}

	subs, err := s.loadSubmissions(ctx, id)
	if err != nil {
		return nil, err
	}
	session.Submissions = subs

	return session, nil
}

// ListSessions returns sessions newest first, without their submissions.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	query := `SELECT id, base_ref, target_ref, lead, peers, round, max_rounds, state, consensus_reached, final_text, created_at, completed_at
		FROM sessions ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.Session
	for rows.Next() {
		session := &models.Session{}
		var peersJSON, state string
		var consensusReached int
		var completedAt sql.NullTime

		if err := rows.Scan(&session.ID, &session.BaseRef, &session.TargetRef, &session.Lead, &peersJSON,
			&session.Round, &session.MaxRounds, &state,
			&consensusReached, &session.FinalText, &session.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		session.State = models.State(state)
		session.ConsensusReached = consensusReached != 0
		if completedAt.Valid {
			session.CompletedAt = &completedAt.Time
		}
		if err := json.Unmarshal([]byte(peersJSON), &session.Peers); err != nil {
			return nil, fmt.Errorf("unmarshal peers: %w", err)
		}

		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) loadSubmissions(ctx context.Context, sessionID string) (map[int][]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT participant, round, phase, verdict, text, implicit, submitted_at
		FROM submissions WHERE session_id = ? ORDER BY round, submitted_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subs := make(map[int][]models.Submission)
	for rows.Next() {
		var sub models.Submission
		var phase, verdict string
		var implicit int

		if err := rows.Scan(&sub.Participant, &sub.Round, &phase, &verdict, &sub.Text, &implicit, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}

		sub.Phase = models.Phase(phase)
		sub.Verdict = models.Verdict(verdict)
		sub.Implicit = implicit != 0
		subs[sub.Round] = append(subs[sub.Round], sub)
	}
	return subs, rows.Err()
}
