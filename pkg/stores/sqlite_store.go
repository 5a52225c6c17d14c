package stores

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/nodeflow/pkg/graph"
	"github.com/openfroyo/nodeflow/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	cfg    Config
	tracer *telemetry.Tracer
	logger zerolog.Logger
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Tracer wraps store operations in spans. Nil disables tracing.
	Tracer *telemetry.Tracer

	// Logger defaults to a disabled logger.
	Logger *zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens its own database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	tracer := cfg.Tracer
	if tracer == nil {
		var err error
		tracer, err = telemetry.NewTracer(telemetry.TracingConfig{}, "nodeflow", "dev", "")
		if err != nil {
			return nil, fmt.Errorf("failed to create tracer: %w", err)
		}
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "store").Logger()
	}

	return &SQLiteStore{cfg: cfg, tracer: tracer, logger: logger}, nil
}

// Init opens the database connection. File databases run in WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path
	if dsn != MemoryPath {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Foreign keys are a connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	s.logger.Debug().Str("path", s.cfg.Path).Msg("Store opened")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

func (s *SQLiteStore) span(ctx context.Context, op, document string) (context.Context, trace.Span) {
	return s.tracer.StartStoreSpan(ctx, op, document)
}

func finish(span trace.Span, err error) {
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// SaveDocument stores doc as a new head revision. When the content matches the current head,
// nothing is written and the head is returned with created set to false.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc graph.Document, message string) (rev *Revision, created bool, err error) {
	ctx, span := s.span(ctx, "save", doc.Name)
	defer func() { finish(span, err) }()

	if err := doc.Validate(); err != nil {
		return nil, false, err
	}
	content, err := doc.Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode document: %w", err)
	}
	checksum := Checksum(content)

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	head, err := s.revision(ctx, tx, doc.Name, "")
	switch {
	case err == nil && head.Checksum == checksum:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		s.logger.Debug().Str("document", doc.Name).Int("revision", head.Number).Msg("Document unchanged")
		return head, false, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	now := time.Now().UTC()
	rev = &Revision{
		ID:          uuid.NewString(),
		Document:    doc.Name,
		Number:      1,
		Checksum:    checksum,
		Content:     content,
		Nodes:       len(doc.Nodes),
		Connections: len(doc.Connections),
		Message:     message,
		CreatedAt:   now,
	}
	if head != nil {
		rev.Number = head.Number + 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (name, created_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at
	`, doc.Name, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert document: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (id, document, number, checksum, content, nodes, connections, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rev.ID,
		rev.Document,
		rev.Number,
		rev.Checksum,
		rev.Content,
		rev.Nodes,
		rev.Connections,
		rev.Message,
		rev.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create revision: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	span.SetAttributes(telemetry.AttrRevision.Int(rev.Number))
	s.logger.Info().Str("document", doc.Name).Int("revision", rev.Number).Str("checksum", checksum[:12]).Msg("Document saved")
	return rev, true, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// revision looks up a revision by reference: "" is the head, a number selects by revision
// number and anything else is a revision id.
func (s *SQLiteStore) revision(ctx context.Context, q querier, name, ref string) (*Revision, error) {
	const columns = `SELECT id, document, number, checksum, content, nodes, connections, message, created_at FROM revisions`

	var row *sql.Row
	if ref == "" {
		row = q.QueryRowContext(ctx, columns+` WHERE document = ? ORDER BY number DESC LIMIT 1`, name)
	} else if n, err := strconv.Atoi(ref); err == nil {
		row = q.QueryRowContext(ctx, columns+` WHERE document = ? AND number = ?`, name, n)
	} else {
		row = q.QueryRowContext(ctx, columns+` WHERE document = ? AND id = ?`, name, ref)
	}

	rev := &Revision{}
	err := row.Scan(
		&rev.ID,
		&rev.Document,
		&rev.Number,
		&rev.Checksum,
		&rev.Content,
		&rev.Nodes,
		&rev.Connections,
		&rev.Message,
		&rev.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if ref == "" {
			return nil, fmt.Errorf("document %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("document %s revision %s: %w", name, ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	return rev, nil
}

// LoadDocument reads a stored revision of a document. ref is empty for the head, a revision
// number, or a revision id.
func (s *SQLiteStore) LoadDocument(ctx context.Context, name, ref string) (doc graph.Document, rev *Revision, err error) {
	ctx, span := s.span(ctx, "load", name)
	defer func() { finish(span, err) }()

	rev, err = s.revision(ctx, s.db, name, ref)
	if err != nil {
		return graph.Document{}, nil, err
	}
	if Checksum(rev.Content) != rev.Checksum {
		return graph.Document{}, nil, fmt.Errorf("document %s revision %d: checksum mismatch", name, rev.Number)
	}
	doc, err = graph.ParseDocument(rev.Content)
	if err != nil {
		return graph.Document{}, nil, err
	}
	span.SetAttributes(telemetry.AttrRevision.Int(rev.Number))
	return doc, rev, nil
}

// ListDocuments lists documents, most recently saved first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, limit, offset int) (docs []*DocumentInfo, err error) {
	ctx, span := s.span(ctx, "list", "")
	defer func() { finish(span, err) }()

	query := `
		SELECT d.name, d.created_at, d.updated_at,
			(SELECT COUNT(*) FROM revisions r WHERE r.document = d.name),
			(SELECT COALESCE(MAX(r.number), 0) FROM revisions r WHERE r.document = d.name)
		FROM documents d
		ORDER BY d.updated_at DESC, d.name ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs = []*DocumentInfo{}
	for rows.Next() {
		d := &DocumentInfo{}
		if err := rows.Scan(&d.Name, &d.CreatedAt, &d.UpdatedAt, &d.Revisions, &d.Head); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return docs, nil
}

// History lists the revisions of a document, newest first, without their content. A limit of
// zero or less lists all of them.
func (s *SQLiteStore) History(ctx context.Context, name string, limit int) (revs []*Revision, err error) {
	ctx, span := s.span(ctx, "history", name)
	defer func() { finish(span, err) }()

	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, document, number, checksum, nodes, connections, message, created_at
		FROM revisions
		WHERE document = ?
		ORDER BY number DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rev := &Revision{}
		err := rows.Scan(
			&rev.ID,
			&rev.Document,
			&rev.Number,
			&rev.Checksum,
			&rev.Nodes,
			&rev.Connections,
			&rev.Message,
			&rev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revs = append(revs, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("document %s: %w", name, ErrNotFound)
	}

	return revs, nil
}

// DeleteDocument deletes a document with all its revisions.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, name string) (err error) {
	ctx, span := s.span(ctx, "delete", name)
	defer func() { finish(span, err) }()

	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("document %s: %w", name, ErrNotFound)
	}

	return nil
}

// AppendEvent appends an event to the log and sets its ID.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	query := `
		INSERT INTO events (document, type, level, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, query,
		event.Document,
		event.Type,
		event.Level,
		event.Message,
		event.Data,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}
	event.ID = id

	return nil
}

// ListEvents lists logged events in the order they were appended, optionally for one
// document only.
func (s *SQLiteStore) ListEvents(ctx context.Context, document *string, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, document, type, level, message, data, timestamp
		FROM events
		WHERE (? IS NULL OR document = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, document, document, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.Document,
			&event.Type,
			&event.Level,
			&event.Message,
			&event.Data,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// EventSubscriber returns a telemetry subscriber that logs every delivered event to the
// store. Failed writes are logged and dropped.
func (s *SQLiteStore) EventSubscriber(ctx context.Context) telemetry.EventSubscriber {
	return func(ev telemetry.Event) {
		event := &Event{
			Type:      ev.Type,
			Level:     ev.Level,
			Message:   ev.Message,
			Timestamp: ev.Timestamp.UTC(),
		}
		if ev.Document != "" {
			doc := ev.Document
			event.Document = &doc
		}
		if len(ev.Data) > 0 {
			if data, err := json.Marshal(ev.Data); err == nil {
				blob := string(data)
				event.Data = &blob
			}
		}
		if err := s.AppendEvent(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("type", ev.Type).Msg("Failed to log event")
		}
	}
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
