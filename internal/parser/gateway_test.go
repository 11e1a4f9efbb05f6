package parser

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"cctracker/internal/domain"
)

type fakeGateway struct {
	places       map[string]*domain.Place
	transactions []*domain.Transaction
	createErr    error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{places: make(map[string]*domain.Place)}
}

func (g *fakeGateway) ExistsByExternalID(_ context.Context, accountID int64, externalID string) (bool, error) {
	for _, tx := range g.transactions {
		if tx.AccountID == accountID && tx.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (g *fakeGateway) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if g.createErr != nil {
		return g.createErr
	}
	if ok, _ := g.ExistsByExternalID(ctx, tx.AccountID, tx.ExternalID); ok {
		return domain.ErrDuplicateTransaction
	}
	tx.ID = int64(len(g.transactions) + 1)
	g.transactions = append(g.transactions, tx)
	return nil
}

func (g *fakeGateway) DeleteByCorrelationTag(_ context.Context, accountID int64, tag, createdBy string) (bool, error) {
	for i, tx := range g.transactions {
		if tx.AccountID == accountID && tx.CreatedBy == createdBy && tx.CorrelationTag != nil && *tx.CorrelationTag == tag {
			g.transactions = append(g.transactions[:i], g.transactions[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (g *fakeGateway) FindOrCreatePlace(_ context.Context, name string) (*domain.Place, error) {
	if p, ok := g.places[name]; ok {
		return p, nil
	}
	p := &domain.Place{ID: int64(len(g.places) + 1), Name: name, Kind: domain.PlaceKindUnknown}
	g.places[name] = p
	return p, nil
}

type passthroughTx struct {
	calls int
}

func (t *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

var errStorage = errors.New("storage unavailable")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
