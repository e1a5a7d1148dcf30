package formentry

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

type entryRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &entryRepoPG{pool: pool}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.FormID, &e.FormVersion, &e.ClientID, &e.Status, &e.Data,
		&e.Score, &e.ScoreDetails, &e.Notes, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt,
		&e.CompletedFormVersion, &e.ArchiveKey)
	if err != nil {
		return nil, err
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	return &e, nil
}

func (r *entryRepoPG) Create(ctx context.Context, e *Entry) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO form_entries (`+columns.SelectList("")+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.ID, e.FormID, e.FormVersion, e.ClientID, e.Status, e.Data, e.Score,
		e.ScoreDetails, e.Notes, e.CompletedAt, e.CreatedAt, e.UpdatedAt,
		e.CompletedFormVersion, e.ArchiveKey)
	return err
}

func (r *entryRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return scanEntry(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+columns.SelectList("")+` FROM form_entries WHERE id = $1`, id))
}

func (r *entryRepoPG) Update(ctx context.Context, id uuid.UUID, expectStatus string, changes map[string]any) (*Entry, error) {
	if len(changes) == 0 {
		return r.GetByID(ctx, id)
	}

	byColumn := columns.KeysToSnake(changes)
	args := []interface{}{id}
	set := make([]string, 0, len(byColumn))
	for _, col := range fieldmap.SortedKeys(byColumn) {
		if _, ok := columns.Resolve(col); !ok || col == "id" {
			return nil, fmt.Errorf("update form entry column %q: %w", col, query.ErrUnknownField)
		}
		args = append(args, byColumn[col])
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	where := "id = $1"
	if expectStatus != "" {
		args = append(args, expectStatus)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	return scanEntry(db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE form_entries SET `+strings.Join(set, ", ")+` WHERE `+where+
			` RETURNING `+columns.SelectList(""), args...))
}

func (r *entryRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM form_entries WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNoRows
	}
	return nil
}

func (r *entryRepoPG) List(ctx context.Context, f Filter) ([]*Entry, int, error) {
	order, err := query.OrderClause(f.Sort, sortable, "created_at DESC, id ASC")
	if err != nil {
		return nil, 0, err
	}

	w := &query.Where{}
	w.Eq("status", f.Status)
	if f.FormID != nil {
		w.Eq("form_id", *f.FormID)
	}
	if f.ClientID != nil {
		w.Eq("client_id", *f.ClientID)
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM form_entries`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, args := w.Page(f.Limit, f.Offset)
	rows, err := conn.Query(ctx, `SELECT `+columns.SelectList("")+` FROM form_entries`+w.SQL()+order+page, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}
