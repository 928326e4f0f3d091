package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

// PushResult prepends r to the history list and trims it to max entries.
func (s *Store) PushResult(ctx context.Context, r *domain.Result, max int) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, KeyHistory, data)
	if max > 0 {
		pipe.LTrim(ctx, KeyHistory, 0, int64(max-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// RecentResults returns up to n results, newest first. Entries that fail
// to decode are skipped.
func (s *Store) RecentResults(ctx context.Context, n int) ([]*domain.Result, error) {
	if n <= 0 {
		return []*domain.Result{}, nil
	}
	raw, err := s.client.LRange(ctx, KeyHistory, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	out := make([]*domain.Result, 0, len(raw))
	for _, item := range raw {
		var r domain.Result
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}
