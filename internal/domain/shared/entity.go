package shared

import (
	"time"

	"github.com/google/uuid"
)

// BaseEntity carries the key and the managed timestamps of an aggregate root
type BaseEntity struct {
	ID        uuid.UUID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBaseEntity creates a base entity with a fresh UUID key
func NewBaseEntity() BaseEntity {
	now := time.Now()
	return BaseEntity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch records a modification of the entity
func (e *BaseEntity) Touch() {
	e.UpdatedAt = time.Now()
}
