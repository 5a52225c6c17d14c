package stores

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/openfroyo/nodeflow/pkg/graph"
)

// ErrNotFound is wrapped by every lookup that finds nothing.
var ErrNotFound = errors.New("not found")

// DocumentInfo summarizes a stored document.
type DocumentInfo struct {
	Name      string    `json:"name"`
	Revisions int       `json:"revisions"`
	Head      int       `json:"head"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Revision is one stored version of a document.
type Revision struct {
	ID       string `json:"id"`
	Document string `json:"document"`
	Number   int    `json:"number"`

	// Checksum is the hex SHA-256 of Content.
	Checksum string `json:"checksum"`

	// Content is the document JSON. History leaves it empty.
	Content []byte `json:"-"`

	Nodes       int       `json:"nodes"`
	Connections int       `json:"connections"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Event is an append-only log entry about a document.
type Event struct {
	ID        int64     `json:"id"`
	Document  *string   `json:"document,omitempty"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Data      *string   `json:"data,omitempty"` // JSON blob
	Timestamp time.Time `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Document operations
	SaveDocument(ctx context.Context, doc graph.Document, message string) (*Revision, bool, error)
	LoadDocument(ctx context.Context, name, ref string) (graph.Document, *Revision, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]*DocumentInfo, error)
	History(ctx context.Context, name string, limit int) ([]*Revision, error)
	DeleteDocument(ctx context.Context, name string) error

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, document *string, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}

var _ Store = (*SQLiteStore)(nil)
