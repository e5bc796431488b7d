package directory

import (
	"context"

	"github.com/google/uuid"
)

type BranchRepository interface {
	Create(ctx context.Context, b *Branch) error
	GetByID(ctx context.Context, id uuid.UUID) (*Branch, error)
	List(ctx context.Context, limit, offset int) ([]*Branch, int, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}
