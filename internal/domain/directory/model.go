// Package directory holds the branches and doctors the roster refers to.
package directory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a branch or doctor does not exist.
var ErrNotFound = errors.New("not found")

// Branch is a clinic location.
type Branch struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" validate:"required,max=255"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Doctor is a staff member who can be rostered.
type Doctor struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name" validate:"required,max=255"`
	Specialty *string   `json:"specialty,omitempty" validate:"omitempty,max=255"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// SpecialtyOrEmpty returns the specialty or "" when unset.
func (d *Doctor) SpecialtyOrEmpty() string {
	if d.Specialty == nil {
		return ""
	}
	return *d.Specialty
}
