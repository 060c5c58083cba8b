package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/microarb/internal/domain"
)

// RiskStateStore persists the singleton portfolio risk state as a JSONB
// row, overwritten on every checkpoint.
type RiskStateStore struct {
	pool *pgxpool.Pool
}

var _ domain.RiskStateStore = (*RiskStateStore)(nil)

// NewRiskStateStore creates a RiskStateStore backed by the given pool.
func NewRiskStateStore(pool *pgxpool.Pool) *RiskStateStore {
	return &RiskStateStore{pool: pool}
}

// Load returns the last checkpointed state, or domain.ErrNotFound when no
// checkpoint exists yet.
func (s *RiskStateStore) Load(ctx context.Context) (domain.RiskState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM risk_state WHERE id = 1`,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RiskState{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: load risk state: %w", err)
	}

	var state domain.RiskState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.RiskState{}, fmt.Errorf("postgres: decode risk state: %w", err)
	}
	return state, nil
}

// Save overwrites the checkpointed state.
func (s *RiskStateStore) Save(ctx context.Context, state domain.RiskState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("postgres: encode risk state: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO risk_state (id, state, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()`,
		data,
	)
	if err != nil {
		return fmt.Errorf("postgres: save risk state: %w", err)
	}
	return nil
}
