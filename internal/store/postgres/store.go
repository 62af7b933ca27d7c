// Package postgres is a RemoteStore on PostgreSQL. Each user's document is
// one row; writes announce themselves with NOTIFY and subscribers LISTEN.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/logger"
)

const (
	tableName        = "hometab_documents"
	notifyChannel    = "hometab_changes"
	operationTimeout = 5 * time.Second
	minReconnect     = time.Second
	maxReconnect     = 30 * time.Second
	feedBuffer       = 16
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Store implements the remote document store on Postgres.
type Store struct {
	dsn    string
	logger logger.Logger
	openDB sqlOpenFunc

	initMu sync.Mutex
	db     *sql.DB
}

// changeEvent is the NOTIFY payload. It stays small because Postgres caps
// payloads at 8000 bytes; subscribers read the document itself.
type changeEvent struct {
	UserID string `json:"userId"`
	Origin string `json:"origin,omitempty"`
}

// NewStore validates the DSN. The connection and schema are set up lazily
// on first use.
func NewStore(dsn string, log logger.Logger) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres DSN is empty")
	}
	return &Store{dsn: dsn, logger: log, openDB: sql.Open}, nil
}

// ensureReady opens the pool and creates the table on first use. A failed
// attempt is retried by the next call.
func (s *Store) ensureReady() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.db != nil {
		return nil
	}

	db, err := s.openDB("postgres", s.dsn)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			document JSONB NOT NULL,
			origin TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, pq.QuoteIdentifier(tableName))
	if _, err := db.ExecContext(ctx, query); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.db = db
	return nil
}

// ReadRemote returns nil, nil when the user has no row yet.
func (s *Store) ReadRemote(ctx context.Context, userID string) (*domain.Document, error) {
	if err := s.ensureReady(); err != nil {
		return nil, &domain.TransportError{Op: "read", UserID: userID, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := fmt.Sprintf("SELECT document FROM %s WHERE user_id = $1", pq.QuoteIdentifier(tableName))
	var payload []byte
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.TransportError{Op: "read", UserID: userID, Err: err}
	}

	var doc domain.Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// WriteRemote upserts the user's row and notifies listeners in the same
// transaction, so the notification is only delivered on commit.
func (s *Store) WriteRemote(ctx context.Context, userID string, doc domain.Document) error {
	if err := s.ensureReady(); err != nil {
		return &domain.TransportError{Op: "write", UserID: userID, Err: err}
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	event, err := json.Marshal(changeEvent{UserID: userID, Origin: doc.Origin})
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.TransportError{Op: "write", UserID: userID, Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, document, origin, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id)
		DO UPDATE SET document = EXCLUDED.document, origin = EXCLUDED.origin, updated_at = NOW()`,
		pq.QuoteIdentifier(tableName))
	if _, err := tx.ExecContext(ctx, query, userID, string(payload), doc.Origin); err != nil {
		return &domain.TransportError{Op: "write", UserID: userID, Err: err}
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, string(event)); err != nil {
		return &domain.TransportError{Op: "write", UserID: userID, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &domain.TransportError{Op: "write", UserID: userID, Err: err}
	}
	return nil
}

// Subscribe opens a dedicated LISTEN connection and turns each
// notification for userID into a JSON encoded domain.ChangeNotification.
func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan []byte, error) {
	if err := s.ensureReady(); err != nil {
		return nil, &domain.TransportError{Op: "subscribe", UserID: userID, Err: err}
	}

	listener := pq.NewListener(s.dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			s.logger.Warn("postgres listener event",
				logger.Int("event", int(ev)),
				logger.Error(err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, &domain.TransportError{Op: "subscribe", UserID: userID, Err: err}
	}

	out := make(chan []byte, feedBuffer)
	go func() {
		defer close(out)
		defer func() { _ = listener.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Reconnected; notifications may have been missed.
					s.logger.Info("postgres listener reconnected", logger.String("user_id", userID))
					continue
				}
				raw, err := s.notificationFor(ctx, userID, n.Extra)
				if err != nil {
					s.logger.Warn("failed to build change notification",
						logger.String("user_id", userID),
						logger.Error(err))
					continue
				}
				if raw == nil {
					continue
				}
				select {
				case out <- raw:
				default:
				}
			}
		}
	}()
	return out, nil
}

// notificationFor reads the document announced by a NOTIFY payload.
// It returns nil for events about other users.
func (s *Store) notificationFor(ctx context.Context, userID, extra string) ([]byte, error) {
	var ev changeEvent
	if err := json.Unmarshal([]byte(extra), &ev); err != nil {
		return nil, fmt.Errorf("invalid notify payload: %w", err)
	}
	if ev.UserID != userID {
		return nil, nil
	}
	doc, err := s.ReadRemote(ctx, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	return json.Marshal(domain.NotificationFor(userID, *doc))
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
