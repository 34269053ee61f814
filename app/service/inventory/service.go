package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const schema = `
CREATE TABLE IF NOT EXISTS cars (
	id BIGSERIAL PRIMARY KEY,
	brand TEXT NOT NULL,
	model TEXT NOT NULL,
	body_style TEXT NOT NULL,
	price BIGINT NOT NULL,
	year INT NOT NULL,
	seats INT NOT NULL,
	transmission TEXT NOT NULL,
	drive TEXT NOT NULL,
	fuel_type TEXT NOT NULL,
	power_hp INT NOT NULL,
	fuel_consumption DOUBLE PRECISION NOT NULL,
	url TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS cars_price_idx ON cars (price);
CREATE INDEX IF NOT EXISTS cars_body_style_idx ON cars (body_style);
`

type Service struct {
	db *sqlx.DB
}

func New(di *do.Injector) (*Service, error) {
	db := do.MustInvoke[*sqlx.DB](di)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure cars schema: %w", err)
	}

	return &Service{db: db}, nil
}

// Search executes the spec against the cars table. Items and total count
// run as two queries in parallel; the limit in the spec is honored exactly.
func (s *Service) Search(ctx context.Context, spec Spec) (*SearchResult, error) {
	where, args := buildWhere(spec)

	order := "ORDER BY " + spec.Sort.Column
	if spec.Sort.Desc {
		order += " DESC"
	}

	itemsQuery := fmt.Sprintf("SELECT * FROM cars %s %s LIMIT %d", where, order, spec.Limit)
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM cars %s", where)

	result := &SearchResult{Items: []Car{}}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.db.SelectContext(ctx, &result.Items, itemsQuery, args...); err != nil {
			return fmt.Errorf("failed to select cars: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := s.db.GetContext(ctx, &result.TotalCount, countQuery, args...); err != nil {
			return fmt.Errorf("failed to count cars: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("Inventory search completed",
		"predicates", len(spec.Predicates),
		"items", len(result.Items),
		"total", result.TotalCount)

	return result, nil
}

func buildWhere(spec Spec) (string, []any) {
	clauses := []string{"1=1"}
	args := make([]any, 0, len(spec.Predicates))

	for _, p := range spec.Predicates {
		argIndex := len(args) + 1

		value := p.Value
		if p.Op == OpILike {
			value = "%" + fmt.Sprint(p.Value) + "%"
		}

		clauses = append(clauses, fmt.Sprintf("%s %s $%d", p.Column, p.Op, argIndex))
		args = append(args, value)
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}
