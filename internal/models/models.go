// package models defines the persisted records of accounts and uploads
package models

import (
	"time"
)

// Model is implemented by every persisted record.
type Model interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error
}

// Repository defines the data access operations shared by all record types.
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Update(model T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error)
}
