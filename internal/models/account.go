package models

import (
	"fmt"
	"strings"
	"time"
)

// Account is a user that completed the authorization flow.
type Account struct {
	id              string
	user            string
	tokenPath       string
	scopes          []string
	authenticatedAt time.Time
	createdAt       time.Time
	updatedAt       time.Time
}

// NewAccount returns an account authenticated now.
func NewAccount(user, tokenPath string, scopes []string) *Account {
	now := time.Now()
	return &Account{
		user:            user,
		tokenPath:       tokenPath,
		scopes:          append([]string(nil), scopes...),
		authenticatedAt: now,
		createdAt:       now,
		updatedAt:       now,
	}
}

// RestoreAccount rebuilds an account from stored columns; scopes are space separated.
func RestoreAccount(id, user, tokenPath, scopes string, authenticatedAt, createdAt, updatedAt time.Time) *Account {
	return &Account{
		id:              id,
		user:            user,
		tokenPath:       tokenPath,
		scopes:          strings.Fields(scopes),
		authenticatedAt: authenticatedAt,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (a *Account) ID() string                 { return a.id }
func (a *Account) User() string               { return a.user }
func (a *Account) TokenPath() string          { return a.tokenPath }
func (a *Account) Scopes() []string           { return a.scopes }
func (a *Account) ScopeString() string        { return strings.Join(a.scopes, " ") }
func (a *Account) AuthenticatedAt() time.Time { return a.authenticatedAt }
func (a *Account) CreatedAt() time.Time       { return a.createdAt }
func (a *Account) UpdatedAt() time.Time       { return a.updatedAt }

func (a *Account) SetID(id string)          { a.id = id }
func (a *Account) SetUpdatedAt(t time.Time) { a.updatedAt = t }

func (a *Account) Validate() error {
	if a.user == "" {
		return fmt.Errorf("user is required")
	}
	if a.tokenPath == "" {
		return fmt.Errorf("token path is required")
	}
	return nil
}
