package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type presenceRecord struct {
	Name  string    `json:"name"`
	Since time.Time `json:"since"`
}

// SavePresence records the active service.
func (s *Store) SavePresence(ctx context.Context, name string, since time.Time) error {
	data, err := json.Marshal(presenceRecord{Name: name, Since: since})
	if err != nil {
		return fmt.Errorf("failed to marshal presence: %w", err)
	}
	if err := s.client.Set(ctx, KeyPresence, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save presence: %w", err)
	}
	return nil
}

// ClearPresence removes the active service.
func (s *Store) ClearPresence(ctx context.Context) error {
	if err := s.client.Del(ctx, KeyPresence).Err(); err != nil {
		return fmt.Errorf("failed to clear presence: %w", err)
	}
	return nil
}

// LoadPresence returns the active service, or an empty name when none is set.
func (s *Store) LoadPresence(ctx context.Context) (string, time.Time, error) {
	data, err := s.client.Get(ctx, KeyPresence).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", time.Time{}, nil
		}
		return "", time.Time{}, fmt.Errorf("failed to get presence: %w", err)
	}

	var rec presenceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to unmarshal presence: %w", err)
	}
	return rec.Name, rec.Since, nil
}
