package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"cctracker/internal/domain"
)

// maxErrorLen bounds accounts.last_error.
const maxErrorLen = 100

var ErrAccountNotFound = errors.New("account not found")

type AccountStore struct {
	db *sqlx.DB
}

func NewAccountStore(db *sqlx.DB) *AccountStore {
	return &AccountStore{db: db}
}

type accountRow struct {
	ID            int64  `db:"id"`
	Address       string `db:"address"`
	Password      string `db:"password"`
	IMAPHost      string `db:"imap_host"`
	IMAPPort      int    `db:"imap_port"`
	IMAPTLS       bool   `db:"imap_tls"`
	SMTPHost      string `db:"smtp_host"`
	SMTPPort      int    `db:"smtp_port"`
	SMTPTLS       bool   `db:"smtp_tls"`
	IsBad         bool   `db:"is_bad"`
	LastError     string `db:"last_error"`
	IsSMS         bool   `db:"is_sms"`
	IsPlaceholder bool   `db:"is_placeholder"`
}

func (r accountRow) toDomain() domain.Account {
	return domain.Account{
		ID:          r.ID,
		Address:     r.Address,
		Password:    r.Password,
		Inbound:     domain.ServerConfig{Host: r.IMAPHost, Port: r.IMAPPort, TLS: r.IMAPTLS},
		Outbound:    domain.ServerConfig{Host: r.SMTPHost, Port: r.SMTPPort, TLS: r.SMTPTLS},
		Bad:         r.IsBad,
		LastError:   r.LastError,
		SMSOnly:     r.IsSMS,
		Placeholder: r.IsPlaceholder,
	}
}

const accountColumns = `id, address, password, imap_host, imap_port, imap_tls,
	smtp_host, smtp_port, smtp_tls, is_bad, last_error, is_sms, is_placeholder`

// ListPollable returns mail accounts that are neither placeholders nor marked bad.
func (s *AccountStore) ListPollable(ctx context.Context) ([]domain.Account, error) {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE is_placeholder = ? AND is_bad = ? AND is_sms = ?
		ORDER BY id`)

	var rows []accountRow
	if err := sqlx.SelectContext(ctx, exec, &rows, query, false, false, false); err != nil {
		return nil, fmt.Errorf("list pollable accounts: %w", err)
	}

	accounts := make([]domain.Account, len(rows))
	for i, r := range rows {
		accounts[i] = r.toDomain()
	}
	return accounts, nil
}

func (s *AccountStore) GetByAddress(ctx context.Context, address string) (*domain.Account, error) {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`SELECT ` + accountColumns + ` FROM accounts WHERE address = ?`)

	var row accountRow
	err := sqlx.GetContext(ctx, exec, &row, query, strings.ToLower(strings.TrimSpace(address)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	account := row.toDomain()
	return &account, nil
}

func (s *AccountStore) Create(ctx context.Context, account *domain.Account) error {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`
		INSERT INTO accounts (
			address, password, imap_host, imap_port, imap_tls,
			smtp_host, smtp_port, smtp_tls, is_bad, last_error, is_sms, is_placeholder
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	return exec.QueryRowxContext(ctx, query,
		strings.ToLower(strings.TrimSpace(account.Address)),
		account.Password,
		account.Inbound.Host,
		account.Inbound.Port,
		account.Inbound.TLS,
		account.Outbound.Host,
		account.Outbound.Port,
		account.Outbound.TLS,
		account.Bad,
		truncate(account.LastError, maxErrorLen),
		account.SMSOnly,
		account.Placeholder,
	).Scan(&account.ID)
}

// SetHealth records whether the account is usable and the last error text.
func (s *AccountStore) SetHealth(ctx context.Context, accountID int64, bad bool, lastErr string) error {
	exec := GetExecutor(ctx, s.db)
	query := exec.Rebind(`UPDATE accounts SET is_bad = ?, last_error = ? WHERE id = ?`)

	res, err := exec.ExecContext(ctx, query, bad, truncate(lastErr, maxErrorLen), accountID)
	if err != nil {
		return fmt.Errorf("set account health: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
