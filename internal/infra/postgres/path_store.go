package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quest-session-service/internal/domain"
)

// PathStore persists generated learning paths keyed by user with a
// monotonically increasing version.
type PathStore struct {
	pool *pgxpool.Pool
}

func NewPathStore(pool *pgxpool.Pool) *PathStore {
	return &PathStore{pool: pool}
}

func (s *PathStore) SavePath(ctx context.Context, userID string, nodes []domain.PathNode) (int, error) {
	raw, err := json.Marshal(nodes)
	if err != nil {
		return 0, fmt.Errorf("marshal path: %w", err)
	}

	var version int
	err = s.pool.QueryRow(ctx, `
		INSERT INTO learning_paths (user_id, path_data, version, updated_at)
		VALUES ($1, $2, 1, now())
		ON CONFLICT (user_id) DO UPDATE SET
			path_data = EXCLUDED.path_data,
			version = learning_paths.version + 1,
			updated_at = now()
		RETURNING version`, userID, raw).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("upsert learning path: %w", err)
	}
	return version, nil
}
