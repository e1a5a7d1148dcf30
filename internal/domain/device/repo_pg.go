package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rehab/clinic/internal/platform/db"
	"github.com/rehab/clinic/internal/platform/fieldmap"
	"github.com/rehab/clinic/internal/platform/query"
)

type deviceRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &deviceRepoPG{pool: pool}
}

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(&d.ID, &d.Serial, &d.Model, &d.HardwareRevision, &d.FirmwareVersion,
		&d.Status, &d.ClientID, &d.AssignedAt, &d.TelemetryEndpoint, &d.Notes,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deviceRepoPG) Create(ctx context.Context, d *Device) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO devices (`+columns.SelectList("")+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		d.ID, d.Serial, d.Model, d.HardwareRevision, d.FirmwareVersion, d.Status,
		d.ClientID, d.AssignedAt, d.TelemetryEndpoint, d.Notes, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r *deviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Device, error) {
	return scanDevice(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+columns.SelectList("")+` FROM devices WHERE id = $1`, id))
}

func (r *deviceRepoPG) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	return scanDevice(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+columns.SelectList("")+` FROM devices WHERE serial = $1`, serial))
}

func (r *deviceRepoPG) Update(ctx context.Context, id uuid.UUID, expectStatus string, changes map[string]any) (*Device, error) {
	if len(changes) == 0 {
		return r.GetByID(ctx, id)
	}

	byColumn := columns.KeysToSnake(changes)
	args := []interface{}{id}
	set := make([]string, 0, len(byColumn))
	for _, col := range fieldmap.SortedKeys(byColumn) {
		if _, ok := columns.Resolve(col); !ok || col == "id" {
			return nil, fmt.Errorf("update device column %q: %w", col, query.ErrUnknownField)
		}
		args = append(args, byColumn[col])
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	where := "id = $1"
	if expectStatus != "" {
		args = append(args, expectStatus)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	return scanDevice(db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE devices SET `+strings.Join(set, ", ")+` WHERE `+where+
			` RETURNING `+columns.SelectList(""), args...))
}

func (r *deviceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNoRows
	}
	return nil
}

func (r *deviceRepoPG) List(ctx context.Context, f Filter) ([]*Device, int, error) {
	order, err := query.OrderClause(f.Sort, sortable, "created_at DESC, id ASC")
	if err != nil {
		return nil, 0, err
	}

	w := &query.Where{}
	w.Eq("status", f.Status).
		Eq("model", f.Model).
		Search(f.Search, "serial", "model")
	if f.ClientID != nil {
		w.Eq("client_id", *f.ClientID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM devices`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := w.Page(f.Limit, f.Offset)
	rows, err := conn.Query(ctx, `SELECT `+columns.SelectList("")+` FROM devices`+w.SQL()+order+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
