package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const (
	pgUniqueViolation   = "23505"
	pgInvalidTextRepr   = "22P02"
	walletUniqueIndex   = "wallet_links_wallet_chain_unique"
	usernameUniqueIndex = "accounts_username_unique"
)

// PostgresRepository implements ports.Repository on PostgreSQL
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new postgres-backed repository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (*core.Account, error) {
	query :=
		`SELECT id, username, email, created_at FROM accounts
		 WHERE id = $1`

	var username, email sql.NullString
	account := &core.Account{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&account.ID, &username, &email, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isCode(err, pgInvalidTextRepr) {
			return nil, core.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	account.Username = username.String
	account.Email = email.String
	return account, nil
}

func (r *PostgresRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateUsername(ctx context.Context, accountID, username string) error {
	query :=
		`UPDATE accounts SET username = $2, updated_at = now()
		 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, accountID, username)
	if err != nil {
		return mapWriteError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresRepository) CreateAccountWithWallet(ctx context.Context, account *core.Account, link *core.WalletLink) error {
	return WithTx(ctx, r.db, nil, func(ctx context.Context, tx DBTX) error {
		query :=
			`INSERT INTO accounts (id, username, email, created_at)
			 VALUES ($1, $2, $3, $4)`

		_, err := tx.ExecContext(ctx, query,
			account.ID, nullable(account.Username), nullable(account.Email), account.CreatedAt)
		if err != nil {
			return mapWriteError(err)
		}

		return insertWallet(ctx, tx, link)
	})
}

func (r *PostgresRepository) FindWallet(ctx context.Context, address string, chainID int64) (*core.WalletLink, error) {
	query :=
		`SELECT id, account_id, wallet_address, chain_id, created_at FROM wallet_links
		 WHERE wallet_address = $1 AND chain_id = $2`

	link := &core.WalletLink{}
	err := r.db.QueryRowContext(ctx, query, address, chainID).
		Scan(&link.ID, &link.AccountID, &link.Address, &link.ChainID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrWalletNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return link, nil
}

func (r *PostgresRepository) CreateWallet(ctx context.Context, link *core.WalletLink) error {
	return insertWallet(ctx, r.db, link)
}

func (r *PostgresRepository) ListWallets(ctx context.Context, accountID string) ([]core.WalletLink, error) {
	query :=
		`SELECT id, account_id, wallet_address, chain_id, created_at FROM wallet_links
		 WHERE account_id = $1
		 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	links := []core.WalletLink{}
	for rows.Next() {
		var link core.WalletLink
		if err := rows.Scan(&link.ID, &link.AccountID, &link.Address, &link.ChainID, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return links, nil
}

func (r *PostgresRepository) DeleteWallet(ctx context.Context, accountID, walletID string) error {
	query := `DELETE FROM wallet_links WHERE id = $1 AND account_id = $2`

	res, err := r.db.ExecContext(ctx, query, walletID, accountID)
	if err != nil {
		if isCode(err, pgInvalidTextRepr) {
			return core.ErrWalletNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return core.ErrWalletNotFound
	}
	return nil
}

func (r *PostgresRepository) AppendActivity(ctx context.Context, entry *core.ActivityLogEntry) error {
	query :=
		`INSERT INTO activity_logs (id, account_id, action, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if entry.Metadata == nil {
		metadata = []byte("{}")
	}

	if _, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.AccountID, string(entry.Action), metadata, entry.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListActivity(ctx context.Context, accountID string, limit, offset int) ([]core.ActivityLogEntry, error) {
	query :=
		`SELECT id, account_id, action, metadata, created_at FROM activity_logs
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	entries := []core.ActivityLogEntry{}
	for rows.Next() {
		var (
			entry    core.ActivityLogEntry
			action   string
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &entry.AccountID, &action, &metadata, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		entry.Action = core.ActivityAction(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}

func insertWallet(ctx context.Context, db DBTX, link *core.WalletLink) error {
	query :=
		`INSERT INTO wallet_links (id, account_id, wallet_address, chain_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`

	if _, err := db.ExecContext(ctx, query,
		link.ID, link.AccountID, link.Address, link.ChainID, link.CreatedAt); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// mapWriteError translates unique violations into domain conflicts
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case walletUniqueIndex:
			return core.ErrWalletAlreadyLinked
		case usernameUniqueIndex:
			return core.ErrUsernameTaken
		}
	}
	return fmt.Errorf("db error: %w", err)
}

func isCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
