//go:build integration

package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"cctracker/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_init.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM transactions")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM places")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM accounts")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) account() domain.Account {
	account := domain.Account{Address: "user@example.com", Inbound: domain.ServerConfig{Host: "imap", Port: 993, TLS: true}}
	s.Require().NoError(NewAccountStore(s.db).Create(s.ctx, &account))
	return account
}

func (s *PostgresIntegrationSuite) TestCreateTransaction_RoundTrip() {
	account := s.account()
	gw := NewGateway(s.db)

	place, err := gw.FindOrCreatePlace(s.ctx, "AMAZON.COM")
	s.Require().NoError(err)

	tag := "210105-A7"
	tx := &domain.Transaction{
		AccountID:      account.ID,
		ExternalID:     "42",
		FromAddress:    "citialert.india@citicorp.com",
		CardNo:         "0042",
		Currency:       "Rs",
		Amount:         decimal.RequireFromString("1499.50"),
		OccurredAt:     time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC),
		Place:          *place,
		CorrelationTag: &tag,
		CreatedBy:      "CitiIndia",
	}
	s.Require().NoError(gw.CreateTransaction(s.ctx, tx))
	s.Greater(tx.ID, int64(0))

	list, err := gw.ListByAccount(s.ctx, account.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.True(tx.Amount.Equal(list[0].Amount))
	s.Equal("210105-A7", *list[0].CorrelationTag)
	s.True(tx.OccurredAt.Equal(list[0].OccurredAt))
}

func (s *PostgresIntegrationSuite) TestCreateTransaction_ConcurrentInsertsKeepOneRow() {
	account := s.account()
	gw := NewGateway(s.db)
	place, err := gw.FindOrCreatePlace(s.ctx, "SHELL")
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- gw.CreateTransaction(s.ctx, &domain.Transaction{
				AccountID:   account.ID,
				ExternalID:  "same-id",
				FromAddress: "lm-citibk",
				CardNo:      "1234",
				Currency:    "USD",
				Amount:      decimal.RequireFromString("1"),
				OccurredAt:  time.Now(),
				Place:       *place,
				CreatedBy:   "Citi Bank",
			})
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
			continue
		}
		s.ErrorIs(err, domain.ErrDuplicateTransaction)
	}
	s.Equal(1, created)

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM transactions WHERE external_id = $1", "same-id"))
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestListPollable_UsesBooleanFilters() {
	account := s.account()
	store := NewAccountStore(s.db)

	accounts, err := store.ListPollable(s.ctx)
	s.Require().NoError(err)
	s.Len(accounts, 1)

	s.Require().NoError(store.SetHealth(s.ctx, account.ID, true, "LOGIN failed"))
	accounts, err = store.ListPollable(s.ctx)
	s.Require().NoError(err)
	s.Empty(accounts)
}
