package form

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

type formRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &formRepoPG{pool: pool}
}

func scanForm(row pgx.Row) (*Form, error) {
	var f Form
	err := row.Scan(&f.ID, &f.Title, &f.Type, &f.Status, &f.Version, &f.Description,
		&f.Schema, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *formRepoPG) Create(ctx context.Context, f *Form) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO form_templates (`+columns.SelectList("")+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		f.ID, f.Title, f.Type, f.Status, f.Version, f.Description, f.Schema, f.CreatedAt, f.UpdatedAt)
	return err
}

func (r *formRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Form, error) {
	return scanForm(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+columns.SelectList("")+` FROM form_templates WHERE id = $1`, id))
}

func (r *formRepoPG) GetByTypeTitle(ctx context.Context, formType, title string) (*Form, error) {
	return scanForm(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+columns.SelectList("")+` FROM form_templates
		WHERE type = $1 AND title = $2 ORDER BY created_at LIMIT 1`, formType, title))
}

func (r *formRepoPG) Update(ctx context.Context, id uuid.UUID, expectVersion int, expectStatus string, changes map[string]any) (*Form, error) {
	if len(changes) == 0 {
		return r.GetByID(ctx, id)
	}

	byColumn := columns.KeysToSnake(changes)
	args := []interface{}{id}
	set := make([]string, 0, len(byColumn))
	for _, col := range fieldmap.SortedKeys(byColumn) {
		if _, ok := columns.Resolve(col); !ok || col == "id" {
			return nil, fmt.Errorf("update form column %q: %w", col, query.ErrUnknownField)
		}
		args = append(args, byColumn[col])
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	where := "id = $1"
	if expectVersion > 0 {
		args = append(args, expectVersion)
		where += fmt.Sprintf(" AND version = $%d", len(args))
	}
	if expectStatus != "" {
		args = append(args, expectStatus)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	return scanForm(db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE form_templates SET `+strings.Join(set, ", ")+` WHERE `+where+
			` RETURNING `+columns.SelectList(""), args...))
}

func (r *formRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM form_templates WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNoRows
	}
	return nil
}

func (r *formRepoPG) List(ctx context.Context, f Filter) ([]*Form, int, error) {
	order, err := query.OrderClause(f.Sort, sortable, "created_at DESC, id ASC")
	if err != nil {
		return nil, 0, err
	}

	w := &query.Where{}
	w.Eq("type", f.Type).
		Eq("status", f.Status).
		Search(f.Search, "title", "description")

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM form_templates`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := w.Page(f.Limit, f.Offset)
	rows, err := conn.Query(ctx, `SELECT `+columns.SelectList("")+` FROM form_templates`+w.SQL()+order+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Form
	for rows.Next() {
		f, err := scanForm(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, rows.Err()
}
