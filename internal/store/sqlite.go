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
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/AbdrAbdr/swarm-mcp/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
// SQLite transactions make document publishes and task claims genuinely
// atomic, which is what turns the optimistic-publish contract into a real
// compare-and-swap.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
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
	// preventing "database is locked" errors when several local processes
	// share the store file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
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

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

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

// --- Documents ---

func (s *SQLiteStore) GetDoc(ctx context.Context, key string) (*models.Document, error) {
	doc := &models.Document{}
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT key, value, revision, updated_at FROM documents WHERE key = ?", key,
	).Scan(&doc.Key, &value, &doc.Revision, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", key, err)
	}
	doc.Value = []byte(value)
	return doc, nil
}

func (s *SQLiteStore) PublishDoc(ctx context.Context, key string, value []byte, expectedRev int64) (int64, error) {
	now := time.Now().UTC()

	if expectedRev == 0 {
		// Create. A unique-constraint failure means someone created the
		// document since the caller's read.
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO documents (key, value, revision, updated_at) VALUES (?, ?, 1, ?)",
			key, string(value), now)
		if err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("publish %s: %w", key, ErrStaleRevision)
			}
			return 0, fmt.Errorf("publish %s: %w", key, err)
		}
		return 1, nil
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE documents SET value = ?, revision = revision + 1, updated_at = ? WHERE key = ? AND revision = ?",
		string(value), now, key, expectedRev)
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", key, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return 0, fmt.Errorf("publish %s: %w", key, ErrStaleRevision)
	}
	return expectedRev + 1, nil
}

func (s *SQLiteStore) DeleteDoc(ctx context.Context, key string, expectedRev int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE key = ? AND revision = ?", key, expectedRev)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// Distinguish "gone" from "advanced" so a resigning leader can tell
		// the record was already superseded.
		var count int
		_ = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE key = ?", key).Scan(&count)
		if count == 0 {
			return fmt.Errorf("delete document %s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("delete document %s: %w", key, ErrStaleRevision)
	}
	return nil
}

func (s *SQLiteStore) ListDocs(ctx context.Context, prefix string) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, revision, updated_at FROM documents WHERE key LIKE ? ORDER BY key",
		prefix+"%")
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*models.Document
	for rows.Next() {
		doc := &models.Document{}
		var value string
		if err := rows.Scan(&doc.Key, &value, &doc.Revision, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		doc.Value = []byte(value)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// --- Events ---

func (s *SQLiteStore) AppendEvent(ctx context.Context, eventType string, payload map[string]any) (*models.SwarmEvent, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	ev := &models.SwarmEvent{
		EventID: newULID(),
		TS:      time.Now().UTC(),
		Type:    eventType,
		Payload: payload,
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO events (event_id, ts, type, payload) VALUES (?, ?, ?, ?)",
		ev.EventID, ev.TS, ev.Type, string(data))
	if err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	ev.Seq, _ = result.LastInsertId()
	return ev, nil
}

func (s *SQLiteStore) PollEvents(ctx context.Context, since time.Time, types []string) ([]*models.SwarmEvent, error) {
	query := "SELECT seq, event_id, ts, type, payload FROM events WHERE ts > ?"
	args := []any{since.UTC()}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += " AND type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY ts, seq"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("poll events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*models.SwarmEvent
	for rows.Next() {
		ev := &models.SwarmEvent{}
		var payload string
		if err := rows.Scan(&ev.Seq, &ev.EventID, &ev.TS, &ev.Type, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode event %s payload: %w", ev.EventID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Tasks ---

func (s *SQLiteStore) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = newULID()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusOpen
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	caps, err := json.Marshal(t.RequiredCapabilities)
	if err != nil {
		caps = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, required_capabilities, status, assignee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Description, string(caps), string(t.Status), t.Assignee, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	t := &models.Task{}
	var status, caps string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, required_capabilities, status, assignee, created_at, updated_at
		FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &t.Description, &caps, &status, &t.Assignee, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	t.Status = models.TaskStatus(status)
	_ = json.Unmarshal([]byte(caps), &t.RequiredCapabilities)
	return t, nil
}

func (s *SQLiteStore) ListTasks(ctx context.Context, status models.TaskStatus) ([]*models.Task, error) {
	query := `SELECT id, title, description, required_capabilities, status, assignee, created_at, updated_at FROM tasks`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		var st, caps string
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &caps, &st, &t.Assignee, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = models.TaskStatus(st)
		_ = json.Unmarshal([]byte(caps), &t.RequiredCapabilities)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) ClaimTask(ctx context.Context, id, agent string) (*ClaimResult, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, assignee = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(models.TaskStatusClaimed), agent, time.Now().UTC(), id, string(models.TaskStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 1 {
		return &ClaimResult{OK: true, ClaimedBy: agent}, nil
	}

	// Claim lost or task missing: report who holds it.
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ClaimResult{OK: false, ClaimedBy: t.Assignee}, nil
}

func (s *SQLiteStore) ReleaseTask(ctx context.Context, id, agent string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, assignee = '', updated_at = ? WHERE id = ? AND assignee = ? AND status = ?",
		string(models.TaskStatusOpen), time.Now().UTC(), id, agent, string(models.TaskStatusClaimed))
	if err != nil {
		return fmt.Errorf("release task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		if _, err := s.GetTask(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("release task %s by %s: %w", id, agent, ErrNotHolder)
	}
	return nil
}

func (s *SQLiteStore) ReassignTask(ctx context.Context, id, from, to string) error {
	status := models.TaskStatusClaimed
	if to == "" {
		status = models.TaskStatusOpen
	}
	result, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ?, assignee = ?, updated_at = ? WHERE id = ? AND assignee = ?",
		string(status), to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("reassign task: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		if _, err := s.GetTask(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("reassign task %s from %s: %w", id, from, ErrNotHolder)
	}
	return nil
}

// --- Identities ---

func (s *SQLiteStore) PutIdentity(ctx context.Context, info *models.AgentInfo) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (agent_id, display_name, hostname, platform_tag, created_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET last_seen = excluded.last_seen`,
		info.AgentID, info.DisplayName, info.Hostname, info.PlatformTag, info.CreatedAt, info.LastSeen)
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TouchIdentity(ctx context.Context, agentID string, seen time.Time) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE identities SET last_seen = ? WHERE agent_id = ?", seen.UTC(), agentID)
	if err != nil {
		return fmt.Errorf("touch identity: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("identity %s: %w", agentID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetIdentity(ctx context.Context, agentID string) (*models.AgentInfo, error) {
	info := &models.AgentInfo{}
	err := s.db.QueryRowContext(ctx,
		"SELECT agent_id, display_name, hostname, platform_tag, created_at, last_seen FROM identities WHERE agent_id = ?",
		agentID,
	).Scan(&info.AgentID, &info.DisplayName, &info.Hostname, &info.PlatformTag, &info.CreatedAt, &info.LastSeen)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("identity %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return info, nil
}

func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]*models.AgentInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT agent_id, display_name, hostname, platform_tag, created_at, last_seen FROM identities ORDER BY display_name")
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []*models.AgentInfo
	for rows.Next() {
		info := &models.AgentInfo{}
		if err := rows.Scan(&info.AgentID, &info.DisplayName, &info.Hostname, &info.PlatformTag, &info.CreatedAt, &info.LastSeen); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// isUniqueViolation reports whether err is a SQLite unique-constraint error.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
