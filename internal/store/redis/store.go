package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/hometab/internal/domain"
)

// notificationBuffer is how many change notifications a slow subscriber
// may lag behind before messages are dropped.
const notificationBuffer = 16

// Store keeps one JSON document per user and announces every write on the
// user's Pub/Sub channel.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// ReadRemote retrieves a user's document. A missing key is a new user.
func (s *Store) ReadRemote(ctx context.Context, userID string) (*domain.Document, error) {
	data, err := s.client.Get(ctx, DocumentKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, &domain.TransportError{Op: "read", UserID: userID, Err: err}
	}

	var doc domain.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// WriteRemote replaces a user's document and publishes the change in the
// same transaction.
func (s *Store) WriteRemote(ctx context.Context, userID string, doc domain.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	note, err := json.Marshal(domain.NotificationFor(userID, doc))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, DocumentKey(userID), data, 0)
		pipe.Publish(ctx, ChangesChannel(userID), note)
		return nil
	})
	if err != nil {
		return &domain.TransportError{Op: "write", UserID: userID, Err: err}
	}
	return nil
}

// Subscribe streams the raw notifications published for a user until ctx
// is cancelled.
func (s *Store) Subscribe(ctx context.Context, userID string) (<-chan []byte, error) {
	ps := s.client.Subscribe(ctx, ChangesChannel(userID))
	// Wait for the subscription confirmation so no write is missed after
	// Subscribe returns.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &domain.TransportError{Op: "subscribe", UserID: userID, Err: err}
	}

	out := make(chan []byte, notificationBuffer)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
				}
			}
		}
	}()
	return out, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
