package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytup/internal/models"
	"github.com/desertthunder/ytup/internal/shared"
)

const accountColumns = `id, user_name, token_path, scopes, authenticated_at, created_at, updated_at`

// AccountRepository stores one row per authenticated user.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert inserts account or refreshes the existing row for the same user.
func (r *AccountRepository) Upsert(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}
	if account.ID() == "" {
		account.SetID(shared.GenerateID())
	}

	_, err := r.db.Exec(`
		INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_name) DO UPDATE SET
			token_path = excluded.token_path,
			scopes = excluded.scopes,
			authenticated_at = excluded.authenticated_at,
			updated_at = excluded.updated_at`,
		account.ID(),
		account.User(),
		account.TokenPath(),
		account.ScopeString(),
		account.AuthenticatedAt(),
		account.CreatedAt(),
		account.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// RecordAccount upserts the account for user after a successful login.
func (r *AccountRepository) RecordAccount(_ context.Context, user, tokenPath string, scopes []string) error {
	return r.Upsert(models.NewAccount(user, tokenPath, scopes))
}

// GetByUser returns the account for user.
func (r *AccountRepository) GetByUser(user string) (*models.Account, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE user_name = ?`, user)
	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, user)
	}
	return account, err
}

// List returns all accounts ordered by user name.
func (r *AccountRepository) List() ([]*models.Account, error) {
	rows, err := r.db.Query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY user_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return accounts, nil
}

// DeleteByUser removes the account row for user.
func (r *AccountRepository) DeleteByUser(user string) error {
	result, err := r.db.Exec(`DELETE FROM accounts WHERE user_name = ?`, user)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return expectOne(result, shared.ErrAccountNotFound, user)
}

func scanAccount(s scanner) (*models.Account, error) {
	var (
		id, user, tokenPath, scopes           string
		authenticatedAt, createdAt, updatedAt time.Time
	)
	err := s.Scan(&id, &user, &tokenPath, &scopes, &authenticatedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	return models.RestoreAccount(id, user, tokenPath, scopes, authenticatedAt, createdAt, updatedAt), nil
}
