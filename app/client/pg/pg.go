package pg

import (
	"fmt"
	"time"

	"carscout/app/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/samber/do"
)

const (
	maxOpenConns = 16
	maxIdleConns = 4
)

// NewDB opens the shared Postgres pool used by both the inventory and the
// chat stores.
func NewDB(di *do.Injector) (*sqlx.DB, error) {
	cfg := do.MustInvoke[*config.Config](di)

	dsn := fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		cfg.DB.User, cfg.DB.Pass, cfg.DB.Host, cfg.DB.Database)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
