package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Service struct {
	branches BranchRepository
	doctors  DoctorRepository
	validate *validator.Validate
}

func NewService(branches BranchRepository, doctors DoctorRepository) *Service {
	return &Service{
		branches: branches,
		doctors:  doctors,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// -- Branch --

func (s *Service) CreateBranch(ctx context.Context, b *Branch) error {
	b.Name = strings.TrimSpace(b.Name)
	if err := s.validate.Struct(b); err != nil {
		return fmt.Errorf("invalid branch: %w", err)
	}
	b.Active = true
	return s.branches.Create(ctx, b)
}

func (s *Service) GetBranch(ctx context.Context, id uuid.UUID) (*Branch, error) {
	return s.branches.GetByID(ctx, id)
}

func (s *Service) ListBranches(ctx context.Context, limit, offset int) ([]*Branch, int, error) {
	return s.branches.List(ctx, limit, offset)
}

// -- Doctor --

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Specialty != nil {
		specialty := strings.TrimSpace(*d.Specialty)
		d.Specialty = &specialty
		if specialty == "" {
			d.Specialty = nil
		}
	}
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("invalid doctor: %w", err)
	}
	d.Active = true
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}
