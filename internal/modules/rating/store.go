// README: Rating store; aggregates live on the users and drivers rows.
package rating

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"yatra/internal/infra"
	"yatra/internal/types"
)

var ErrNoAggregate = errors.New("rated party not found")

type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// Insert stores the rating unless one already exists for the same request
// and direction. It reports whether a row was written.
func (s *Store) Insert(ctx context.Context, tx pgx.Tx, r *Rating) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO ratings (id, request_id, direction, rater_id, ratee_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id, direction) DO NOTHING`,
		string(r.ID), string(r.RequestID), string(r.Direction), string(r.RaterID), string(r.RateeID),
		r.Score, r.Comment, r.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func aggregateTable(p Party) (table, key string) {
	if p == PartyDriver {
		return "drivers", "user_id"
	}
	return "users", "id"
}

func (s *Store) getAggregate(ctx context.Context, q infra.DBTX, p Party, id types.ID, lock bool) (Aggregate, error) {
	table, key := aggregateTable(p)
	sql := fmt.Sprintf(`SELECT avg_rating, total_ratings FROM %s WHERE %s = $1`, table, key)
	if lock {
		sql += ` FOR UPDATE`
	}
	agg := Aggregate{Party: p, ID: id}
	err := q.QueryRow(ctx, sql, string(id)).Scan(&agg.Average, &agg.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return Aggregate{}, ErrNoAggregate
	}
	return agg, err
}

// LockAggregate reads the ratee's aggregate and holds its row lock until tx ends.
func (s *Store) LockAggregate(ctx context.Context, tx pgx.Tx, p Party, id types.ID) (Aggregate, error) {
	return s.getAggregate(ctx, tx, p, id, true)
}

func (s *Store) GetAggregate(ctx context.Context, q infra.DBTX, p Party, id types.ID) (Aggregate, error) {
	return s.getAggregate(ctx, q, p, id, false)
}

func (s *Store) SaveAggregate(ctx context.Context, tx pgx.Tx, agg Aggregate) error {
	table, key := aggregateTable(agg.Party)
	_, err := tx.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET avg_rating = $1, total_ratings = $2 WHERE %s = $3`, table, key),
		agg.Average, agg.Count, string(agg.ID),
	)
	return err
}

func (s *Store) ListByRequest(ctx context.Context, q infra.DBTX, requestID types.ID) ([]*Rating, error) {
	rows, err := q.Query(ctx, `
		SELECT id, request_id, direction, rater_id, ratee_id, score, comment, created_at
		FROM ratings WHERE request_id = $1 ORDER BY created_at`, string(requestID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Rating
	for rows.Next() {
		var r Rating
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Direction, &r.RaterID, &r.RateeID, &r.Score, &r.Comment, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
