package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

// PowerObservation is the last state seen by the power watcher.
type PowerObservation struct {
	State      string    `json:"state"`
	ObservedAt time.Time `json:"observed_at"`
	ChangedAt  time.Time `json:"changed_at"`
}

// SavePowerObservation stores the latest observation, keeping ChangedAt
// from the previous one when the state did not change.
func (s *Store) SavePowerObservation(ctx context.Context, state domain.PowerState, at time.Time) (PowerObservation, error) {
	obs := PowerObservation{State: state.String(), ObservedAt: at, ChangedAt: at}

	prev, found, err := s.LoadPowerObservation(ctx)
	if err != nil {
		return obs, err
	}
	if found && prev.State == obs.State {
		obs.ChangedAt = prev.ChangedAt
	}

	data, err := json.Marshal(obs)
	if err != nil {
		return obs, fmt.Errorf("failed to marshal power observation: %w", err)
	}
	if err := s.client.Set(ctx, KeyPowerState, data, 0).Err(); err != nil {
		return obs, fmt.Errorf("failed to save power observation: %w", err)
	}
	return obs, nil
}

// LoadPowerObservation returns the last observation, if any.
func (s *Store) LoadPowerObservation(ctx context.Context) (PowerObservation, bool, error) {
	data, err := s.client.Get(ctx, KeyPowerState).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return PowerObservation{}, false, nil
		}
		return PowerObservation{}, false, fmt.Errorf("failed to get power observation: %w", err)
	}

	var obs PowerObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		return PowerObservation{}, false, fmt.Errorf("failed to unmarshal power observation: %w", err)
	}
	return obs, true, nil
}
