package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// -- Branch Repository --

type branchRepoPG struct {
	pool *pgxpool.Pool
}

func NewBranchRepoPG(pool *pgxpool.Pool) BranchRepository {
	return &branchRepoPG{pool: pool}
}

func (r *branchRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const branchColumns = `id, name, active, created_at`

func (r *branchRepoPG) Create(ctx context.Context, b *Branch) error {
	b.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO branch (id, name, active) VALUES ($1, $2, $3)
		RETURNING created_at`,
		b.ID, b.Name, b.Active,
	).Scan(&b.CreatedAt)
}

func (r *branchRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Branch, error) {
	return scanBranch(r.conn(ctx).QueryRow(ctx, `SELECT `+branchColumns+` FROM branch WHERE id = $1`, id))
}

func (r *branchRepoPG) List(ctx context.Context, limit, offset int) ([]*Branch, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM branch`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+branchColumns+` FROM branch ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var branches []*Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, 0, err
		}
		branches = append(branches, b)
	}
	return branches, total, rows.Err()
}

func scanBranch(row pgx.Row) (*Branch, error) {
	var b Branch
	if err := row.Scan(&b.ID, &b.Name, &b.Active, &b.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

// -- Doctor Repository --

type doctorRepoPG struct {
	pool *pgxpool.Pool
}

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const doctorColumns = `id, name, specialty, active, created_at`

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, name, specialty, active) VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		d.ID, d.Name, d.Specialty, d.Active,
	).Scan(&d.CreatedAt)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctor WHERE id = $1`, id))
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorColumns+` FROM doctor ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var doctors []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		doctors = append(doctors, d)
	}
	return doctors, total, rows.Err()
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Active, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}
