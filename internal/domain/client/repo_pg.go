package client

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

type clientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &clientRepoPG{pool: pool}
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.MiddleName, &c.BirthDate,
		&c.Gender, &c.Contacts, &c.Diagnosis, &c.Notes, &c.Status, &c.ClinicID,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepoPG) Create(ctx context.Context, c *Client) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO clients (`+columns.SelectList("")+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		c.ID, c.FirstName, c.LastName, c.MiddleName, c.BirthDate, c.Gender,
		c.Contacts, c.Diagnosis, c.Notes, c.Status, c.ClinicID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *clientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	return scanClient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+columns.SelectList("")+` FROM clients WHERE id = $1`, id))
}

func (r *clientRepoPG) Update(ctx context.Context, id uuid.UUID, expectStatus string, changes map[string]any) (*Client, error) {
	if len(changes) == 0 {
		return r.GetByID(ctx, id)
	}

	byColumn := columns.KeysToSnake(changes)
	args := []interface{}{id}
	set := make([]string, 0, len(byColumn))
	for _, col := range fieldmap.SortedKeys(byColumn) {
		if _, ok := columns.Resolve(col); !ok || col == "id" {
			return nil, fmt.Errorf("update client column %q: %w", col, query.ErrUnknownField)
		}
		args = append(args, byColumn[col])
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	where := "id = $1"
	if expectStatus != "" {
		args = append(args, expectStatus)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	return scanClient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE clients SET `+strings.Join(set, ", ")+` WHERE `+where+
			` RETURNING `+columns.SelectList(""), args...))
}

func (r *clientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNoRows
	}
	return nil
}

func (r *clientRepoPG) List(ctx context.Context, f Filter) ([]*Client, int, error) {
	order, err := query.OrderClause(f.Sort, sortable, "created_at DESC, id ASC")
	if err != nil {
		return nil, 0, err
	}

	w := &query.Where{}
	w.Eq("status", f.Status).
		Eq("clinic_id", f.ClinicID).
		Search(f.Search, "last_name", "first_name", "middle_name", "diagnosis")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM clients`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := w.Page(f.Limit, f.Offset)
	rows, err := conn.Query(ctx, `SELECT `+columns.SelectList("")+` FROM clients`+w.SQL()+order+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
