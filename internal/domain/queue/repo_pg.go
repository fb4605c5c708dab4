package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/queue/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, name, age, priority, status, created_at, served_at`

// queuedOrder must stay in step with Compare.
const queuedOrder = `ORDER BY priority ASC, age DESC, id ASC`

func (r *patientRepoPG) scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var prio int16
	err := row.Scan(&rec.ID, &rec.Name, &rec.Age, &prio, &rec.Status, &rec.CreatedAt, &rec.ServedAt)
	rec.Priority = Priority(prio)
	return &rec, err
}

func (r *patientRepoPG) Insert(ctx context.Context, p *Patient) error {
	var id int
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name, age, priority, status)
		VALUES ($1, $2, $3, $4, 'queued')
		RETURNING id`,
		p.ID, p.Name, p.Age, int16(p.Priority)).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert patient %d: %w", p.ID, err)
	}
	p.ID = id
	return nil
}

func (r *patientRepoPG) MarkServed(ctx context.Context, id int, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET status = 'served', served_at = $2
		WHERE id = $1 AND status = 'queued'`, id, at)
	if err != nil {
		return fmt.Errorf("mark patient %d served: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark patient %d served: %w", id, ErrNotFound)
	}
	return nil
}

func (r *patientRepoPG) ListQueued(ctx context.Context) ([]Patient, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patients WHERE status = 'queued' `+queuedOrder)
	if err != nil {
		return nil, fmt.Errorf("list queued patients: %w", err)
	}
	defer rows.Close()
	var items []Patient
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec.Patient)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) ListServed(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patients WHERE status = 'served'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count served patients: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE status = 'served' ORDER BY served_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list served patients: %w", err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) ClearQueued(ctx context.Context) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE status = 'queued'`)
	if err != nil {
		return 0, fmt.Errorf("clear queued patients: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *patientRepoPG) DeleteServed(ctx context.Context, id int) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1 AND status = 'served'`, id)
	if err != nil {
		return false, fmt.Errorf("delete served patient %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id int) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *patientRepoPG) ListAll(ctx context.Context) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *patientRepoPG) MaxID(ctx context.Context) (int, error) {
	var id int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM patients`).Scan(&id); err != nil {
		return 0, fmt.Errorf("max patient id: %w", err)
	}
	return id, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *patientRepoPG) FindByName(ctx context.Context, name string, limit int) ([]*Record, error) {
	pattern := "%" + likeEscaper.Replace(name) + "%"
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM patients
		WHERE name ILIKE $1 ESCAPE '\' ORDER BY id ASC LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("find patients by name: %w", err)
	}
	defer rows.Close()
	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}
