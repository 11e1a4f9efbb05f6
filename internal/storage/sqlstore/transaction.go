package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"cctracker/internal/domain"
)

type TransactionStore struct {
	db *sqlx.DB
}

func NewTransactionStore(db *sqlx.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) ExistsByExternalID(ctx context.Context, accountID int64, externalID string) (bool, error) {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`SELECT EXISTS (SELECT 1 FROM transactions WHERE account_id = ? AND external_id = ?)`)

	var exists bool
	if err := sqlx.GetContext(ctx, exec, &exists, query, accountID, externalID); err != nil {
		return false, fmt.Errorf("check transaction %s: %w", externalID, err)
	}
	return exists, nil
}

// CreateTransaction inserts tx and sets its ID and CreatedAt. A second insert
// for the same (account, external id) returns domain.ErrDuplicateTransaction.
func (s *TransactionStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		INSERT INTO transactions (
			account_id, external_id, from_address, card_no, currency, amount,
			occurred_at, place_id, correlation_tag, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, external_id) DO NOTHING
		RETURNING id`)

	createdAt := time.Now().UTC()
	err := exec.QueryRowxContext(ctx, query,
		tx.AccountID,
		tx.ExternalID,
		tx.FromAddress,
		tx.CardNo,
		tx.Currency,
		tx.Amount,
		tx.OccurredAt,
		tx.Place.ID,
		tx.CorrelationTag,
		tx.CreatedBy,
		createdAt,
	).Scan(&tx.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", tx.ExternalID, err)
	}

	tx.CreatedAt = createdAt
	return nil
}

// DeleteByCorrelationTag removes one transaction of the account created by
// createdBy with the given tag, the oldest when several match, and reports
// whether one existed.
func (s *TransactionStore) DeleteByCorrelationTag(ctx context.Context, accountID int64, tag, createdBy string) (bool, error) {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		DELETE FROM transactions
		WHERE id = (
			SELECT id FROM transactions
			WHERE account_id = ? AND correlation_tag = ? AND created_by = ?
			ORDER BY id
			LIMIT 1
		)`)

	res, err := exec.ExecContext(ctx, query, accountID, tag, createdBy)
	if err != nil {
		return false, fmt.Errorf("delete transaction tagged %s: %w", tag, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type transactionRow struct {
	ID             int64           `db:"id"`
	AccountID      int64           `db:"account_id"`
	ExternalID     string          `db:"external_id"`
	FromAddress    string          `db:"from_address"`
	CardNo         string          `db:"card_no"`
	Currency       string          `db:"currency"`
	Amount         decimal.Decimal `db:"amount"`
	OccurredAt     time.Time       `db:"occurred_at"`
	CorrelationTag sql.NullString  `db:"correlation_tag"`
	CreatedBy      string          `db:"created_by"`
	CreatedAt      time.Time       `db:"created_at"`
	PlaceID        int64           `db:"place_id"`
	PlaceName      string          `db:"place_name"`
	PlaceKind      string          `db:"place_kind"`
}

func (r transactionRow) toDomain() domain.Transaction {
	tx := domain.Transaction{
		ID:          r.ID,
		AccountID:   r.AccountID,
		ExternalID:  r.ExternalID,
		FromAddress: r.FromAddress,
		CardNo:      r.CardNo,
		Currency:    r.Currency,
		Amount:      r.Amount,
		OccurredAt:  r.OccurredAt,
		Place:       domain.Place{ID: r.PlaceID, Name: r.PlaceName, Kind: r.PlaceKind},
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
	if r.CorrelationTag.Valid {
		tag := r.CorrelationTag.String
		tx.CorrelationTag = &tag
	}
	return tx
}

// ListByAccount returns the account's transactions, oldest first.
func (s *TransactionStore) ListByAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		SELECT t.id, t.account_id, t.external_id, t.from_address, t.card_no, t.currency,
			t.amount, t.occurred_at, t.correlation_tag, t.created_by, t.created_at,
			p.id AS place_id, p.name AS place_name, p.kind AS place_kind
		FROM transactions t
		JOIN places p ON p.id = t.place_id
		WHERE t.account_id = ?
		ORDER BY t.occurred_at, t.id`)

	var rows []transactionRow
	if err := sqlx.SelectContext(ctx, exec, &rows, query, accountID); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]domain.Transaction, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
