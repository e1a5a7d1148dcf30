package sqlerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rehab/clinic/internal/platform/errs"
)

func asHTTP(t *testing.T, err error) *errs.HTTPError {
	t.Helper()
	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected *errs.HTTPError, got %T", err)
	}
	return httpErr
}

func TestHandleError_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		TableName:      "devices",
		ConstraintName: "devices_serial_key",
		Message:        "duplicate key value violates unique constraint",
	}
	got := asHTTP(t, HandleError(fmt.Errorf("insert device: %w", pgErr)))
	if got.Status != http.StatusConflict {
		t.Errorf("expected 409, got %d", got.Status)
	}
	if got.Code != "DEVICE_ALREADY_EXISTS" {
		t.Errorf("unexpected code %q", got.Code)
	}
	if got.Message != "A device with this Serial already exists" {
		t.Errorf("unexpected message %q", got.Message)
	}
}

func TestHandleError_ForeignKeyOnInsert(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23503",
		TableName:      "form_entries",
		ConstraintName: "form_entries_client_id_fkey",
		Message:        `insert or update on table "form_entries" violates foreign key constraint`,
	}
	got := asHTTP(t, HandleError(pgErr))
	if got.Status != http.StatusBadRequest || got.Code != "CLIENT_NOT_FOUND" {
		t.Errorf("unexpected error: %+v", got)
	}
}

func TestHandleError_ForeignKeyOnDelete(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23503",
		TableName:      "devices",
		ConstraintName: "devices_client_id_fkey",
		Message:        `update or delete on table "clients" violates foreign key constraint "devices_client_id_fkey" on table "devices"`,
	}
	pgErr.Detail = `Key (id)=(c-1) is still referenced from table "devices".`
	got := asHTTP(t, HandleError(pgErr))
	if got.Status != http.StatusConflict || got.Code != "CLIENT_IN_USE" {
		t.Errorf("unexpected error: %+v", got)
	}
}

func TestHandleError_NotNull(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23502", TableName: "clients", ColumnName: "last_name"}
	got := asHTTP(t, HandleError(pgErr))
	if got.Status != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got.Status)
	}
	if len(got.Errors) != 1 || got.Errors[0].Field != "lastName" {
		t.Errorf("unexpected field errors: %+v", got.Errors)
	}
}

func TestHandleError_Check(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", TableName: "clients", ConstraintName: "clients_status_check"}
	got := asHTTP(t, HandleError(pgErr))
	if got.Code != "CLIENT_INVALID" || got.Message != "The Status value does not meet required conditions" {
		t.Errorf("unexpected error: %+v", got)
	}
}

func TestHandleError_NoRows(t *testing.T) {
	got := asHTTP(t, HandleError(pgx.ErrNoRows))
	if got.Status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got.Status)
	}
}

func TestHandleError_PassThroughAndUnknown(t *testing.T) {
	orig := errs.NewConflict("FORM_ENTRY_COMPLETED", "completed")
	if HandleError(orig) != error(orig) {
		t.Error("expected HTTP error to pass through unchanged")
	}
	got := asHTTP(t, HandleError(errors.New("boom")))
	if got.Status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", got.Status)
	}
}

func TestErrCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Error("expected unique violation")
	}
	if IsForeignKeyViolation(err) {
		t.Error("did not expect foreign key violation")
	}
	if ErrCode(errors.New("x")) != Other {
		t.Error("expected Other for non-postgres error")
	}
}

func TestSingular(t *testing.T) {
	cases := map[string]string{
		"devices":      "device",
		"FORM_ENTRIES": "FORM_ENTRY",
		"clients":      "client",
	}
	for in, want := range cases {
		if got := singular(in); got != want {
			t.Errorf("singular(%q) = %q, want %q", in, got, want)
		}
	}
}
