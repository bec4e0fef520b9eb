package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/solvemate/solvemate-api/internal/analyzer"
	"github.com/solvemate/solvemate-api/internal/logger"
)

// Store is the history persistence contract consumed by the session
// controller and the HTTP handlers.
type Store interface {
	// List returns the owner's items, most recent first.
	List(ctx context.Context, ownerID string) ([]Item, error)
	// Append stores a new item for the owner.
	Append(ctx context.Context, ownerID string, item Item) error
	// DeleteMany removes the given ids scoped to the owner. Unknown ids are
	// a harmless no-op; the returned count covers rows actually removed.
	DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error)
}

// PGStore is the Postgres-backed history store.
type PGStore struct {
	db     *sql.DB
	logger *logger.Logger
}

func NewPGStore(db *sql.DB, logger *logger.Logger) *PGStore {
	return &PGStore{
		db:     db,
		logger: logger,
	}
}

func (s *PGStore) List(ctx context.Context, ownerID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, image_url, user_description, result, created_at
		FROM history_items
		WHERE user_id = $1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		var item Item
		var resultJSON []byte
		if err := rows.Scan(&item.ID, &item.ImageURL, &item.UserDescription, &resultJSON, &item.Timestamp); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}

		var result analyzer.AnalysisResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decode stored result %s: %w", item.ID, err)
		}
		item.Result = result

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return items, nil
}

func (s *PGStore) Append(ctx context.Context, ownerID string, item Item) error {
	resultJSON, err := json.Marshal(item.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history_items (id, user_id, image_url, user_description, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, ownerID, item.ImageURL, item.UserDescription, resultJSON, item.Timestamp)
	if err != nil {
		return fmt.Errorf("insert history item: %w", err)
	}

	return nil
}

func (s *PGStore) DeleteMany(ctx context.Context, ownerID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM history_items
		WHERE user_id = $1 AND id = ANY($2)`,
		ownerID, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete history items: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted history items: %w", err)
	}

	return deleted, nil
}

// DeleteAllForUser purges every history row of an owner, used when the
// account itself is deleted.
func (s *PGStore) DeleteAllForUser(ctx context.Context, ownerID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM history_items
		WHERE user_id = $1`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("purge history: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count purged history items: %w", err)
	}

	return deleted, nil
}
