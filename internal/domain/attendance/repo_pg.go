package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

// Constraint names declared by the roster migration.
const (
	constraintNoOverlap = "schedule_entry_no_overlap"
	constraintBranchKey = "weekly_schedule_branch_key"
)

// mapPgError translates constraint violations into package errors.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	switch db.PgErrorCode(err) {
	case db.CodeExclusionViolation:
		if db.PgConstraint(err) == constraintNoOverlap {
			return ErrOverlap
		}
	case db.CodeUniqueViolation:
		if db.PgConstraint(err) == constraintBranchKey {
			return ErrDuplicate
		}
	case db.CodeForeignKeyViolation:
		return ErrNotFound
	}
	return err
}

// =========== Weekly Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const scheduleCols = `id, branch_id, updated_by, created_at, updated_at`

func scanSchedule(row pgx.Row) (*WeeklySchedule, error) {
	var s WeeklySchedule
	if err := row.Scan(&s.ID, &s.BranchID, &s.UpdatedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, mapPgError(err)
	}
	return &s, nil
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*WeeklySchedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+scheduleCols+` FROM weekly_schedule WHERE id = $1`, id))
}

func (r *scheduleRepoPG) GetByBranch(ctx context.Context, branchID uuid.UUID) (*WeeklySchedule, error) {
	return scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+scheduleCols+` FROM weekly_schedule WHERE branch_id = $1`, branchID))
}

func (r *scheduleRepoPG) Create(ctx context.Context, s *WeeklySchedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO weekly_schedule (id, branch_id, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.BranchID, s.UpdatedBy, s.CreatedAt, s.UpdatedAt)
	return mapPgError(err)
}

func (r *scheduleRepoPG) Touch(ctx context.Context, id uuid.UUID, actor string, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE weekly_schedule SET updated_by = $2, updated_at = $3 WHERE id = $1`,
		id, actor, at)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scheduleRepoPG) List(ctx context.Context, limit, offset int) ([]*WeeklySchedule, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM weekly_schedule`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+scheduleCols+` FROM weekly_schedule
		ORDER BY updated_at DESC, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*WeeklySchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Schedule Entry Repository ===========

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewEntryRepoPG(pool *pgxpool.Pool) EntryRepository { return &entryRepoPG{pool: pool} }

func (r *entryRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const entrySelect = `
	SELECT e.id, e.schedule_id, s.branch_id, e.doctor_id, e.weekday,
		e.start_minute, e.end_minute, e.note, e.created_at, e.updated_at
	FROM schedule_entry e
	JOIN weekly_schedule s ON s.id = e.schedule_id`

func scanEntry(row pgx.Row) (*Entry, error) {
	var (
		e          Entry
		day        int16
		start, end int16
	)
	err := row.Scan(&e.ID, &e.ScheduleID, &e.BranchID, &e.DoctorID, &day,
		&start, &end, &e.Note, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}
	e.Weekday = Weekday(day)
	e.Start = TimeOfDay(start)
	e.End = TimeOfDay(end)
	return &e, nil
}

func (r *entryRepoPG) queryEntries(ctx context.Context, sql string, args ...interface{}) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *entryRepoPG) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule_entry (id, schedule_id, doctor_id, weekday,
			start_minute, end_minute, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING (SELECT branch_id FROM weekly_schedule WHERE id = $2)`,
		e.ID, e.ScheduleID, e.DoctorID, int16(e.Weekday),
		int16(e.Start), int16(e.End), e.Note, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.BranchID)
	return mapPgError(err)
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(r.conn(ctx).QueryRow(ctx, entrySelect+` WHERE e.id = $1`, id))
}

func (r *entryRepoPG) Update(ctx context.Context, e *Entry) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE schedule_entry SET doctor_id = $2, weekday = $3,
			start_minute = $4, end_minute = $5, note = $6, updated_at = $7
		WHERE id = $1`,
		e.ID, e.DoctorID, int16(e.Weekday), int16(e.Start), int16(e.End), e.Note, e.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *entryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedule_entry WHERE id = $1`, id)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *entryRepoPG) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*Entry, error) {
	return r.queryEntries(ctx, entrySelect+`
		WHERE e.schedule_id = $1
		ORDER BY e.weekday, e.start_minute, e.id`, scheduleID)
}

func (r *entryRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	return r.queryEntries(ctx, entrySelect+`
		WHERE e.doctor_id = $1
		ORDER BY e.weekday, e.start_minute, e.id`, doctorID)
}

func (r *entryRepoPG) ListByDoctorAndWeekday(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]*Entry, error) {
	return r.queryEntries(ctx, entrySelect+`
		WHERE e.doctor_id = $1 AND e.weekday = $2
		ORDER BY e.start_minute, e.id`, doctorID, int16(day))
}
