package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"cctracker/internal/domain"
)

type PlaceStore struct {
	db *sqlx.DB
}

func NewPlaceStore(db *sqlx.DB) *PlaceStore {
	return &PlaceStore{db: db}
}

// FindOrCreatePlace returns the place with the given canonical name, creating it on first sight.
func (s *PlaceStore) FindOrCreatePlace(ctx context.Context, name string) (*domain.Place, error) {
	exec := GetExecutor(ctx, s.db)

	insert := exec.Rebind(`INSERT INTO places (name, kind) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`)
	if _, err := exec.ExecContext(ctx, insert, name, domain.PlaceKindUnknown); err != nil {
		return nil, fmt.Errorf("insert place: %w", err)
	}

	var place domain.Place
	query := exec.Rebind(`SELECT id, name, kind FROM places WHERE name = ?`)
	if err := sqlx.GetContext(ctx, exec, &place, query, name); err != nil {
		return nil, fmt.Errorf("get place: %w", err)
	}
	return &place, nil
}

// Gateway is the storage surface parsers write through.
type Gateway struct {
	*TransactionStore
	*PlaceStore
}

func NewGateway(db *sqlx.DB) *Gateway {
	return &Gateway{
		TransactionStore: NewTransactionStore(db),
		PlaceStore:       NewPlaceStore(db),
	}
}
