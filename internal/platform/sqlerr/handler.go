package sqlerr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rehab/clinic/internal/platform/errs"
	"github.com/rehab/clinic/internal/platform/fieldmap"
)

// HandleError converts a database error into an *errs.HTTPError.
// Errors that already are HTTP errors pass through unchanged.
func HandleError(err error) error {
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPgError(ConvertPgError(pgErr))
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.NewNotFound("Resource not found")
	}

	return errs.NewInternalServerError()
}

func fromPgError(e *Error) *errs.HTTPError {
	code := errorCode(e.TableName, e.Code)

	switch e.Code {
	case UniqueViolation:
		column := uniqueColumn(e.ConstraintName, e.TableName)
		msg := fmt.Sprintf("A %s with this identifier already exists", entityName(e.TableName, ""))
		if column != "" {
			msg = fmt.Sprintf("A %s with this %s already exists", entityName(e.TableName, ""), humanize(column))
		}
		return errs.NewConflict(code, msg)

	case ForeignKeyViolation:
		// TableName is always the referencing table; the column names the
		// referenced entity.
		column := fkColumn(e.ConstraintName, e.TableName)
		entity := entityName(e.TableName, column)
		if strings.Contains(e.Detail, "still referenced") || strings.HasPrefix(e.Message, "update or delete") {
			return errs.NewConflict(entityCode(entity)+"_IN_USE",
				fmt.Sprintf("The %s is still referenced by other records", entity))
		}
		return errs.NewBadRequestWithCode(entityCode(entity)+"_NOT_FOUND",
			fmt.Sprintf("The referenced %s does not exist", entity))

	case NotNullViolation:
		field := fieldmap.ToCamel(e.ColumnName)
		return errs.NewValidationError(
			fmt.Sprintf("The %s is required", humanizeOr(e.ColumnName, "field")),
			[]errs.FieldError{{Field: field, Error: "is required"}},
		)

	case CheckViolation:
		msg := "One or more values do not meet required conditions"
		if col := checkColumn(e.ConstraintName, e.TableName); col != "" {
			msg = fmt.Sprintf("The %s value does not meet required conditions", humanize(col))
		}
		return errs.NewBadRequestWithCode(code, msg)

	case InvalidText:
		return errs.NewBadRequest("Malformed identifier or value")
	}

	return errs.NewInternalServerError()
}

// errorCode builds codes like DEVICE_ALREADY_EXISTS from the table name.
func errorCode(table string, c Code) string {
	domain := "RECORD"
	if table != "" {
		domain = singular(strings.ToUpper(table))
	}
	action := "ERROR"
	switch c {
	case ForeignKeyViolation:
		action = "NOT_FOUND"
	case UniqueViolation:
		action = "ALREADY_EXISTS"
	case NotNullViolation:
		action = "REQUIRED"
	case CheckViolation:
		action = "INVALID"
	}
	return domain + "_" + action
}

func singular(s string) string {
	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, "ies") {
		y := "y"
		if s[len(s)-1] == 'S' {
			y = "Y"
		}
		return s[:len(s)-3] + y
	}
	if len(s) > 1 && (strings.HasSuffix(s, "S") || strings.HasSuffix(s, "s")) {
		return s[:len(s)-1]
	}
	return s
}

func entityName(table, column string) string {
	if column != "" && strings.HasSuffix(strings.ToLower(column), "_id") {
		return strings.ToLower(humanize(strings.TrimSuffix(strings.ToLower(column), "_id")))
	}
	if table != "" {
		return strings.ToLower(humanize(singular(table)))
	}
	return "record"
}

func entityCode(entity string) string {
	return strings.ToUpper(strings.ReplaceAll(entity, " ", "_"))
}

// uniqueColumn extracts "serial" from "devices_serial_key".
func uniqueColumn(constraint, table string) string {
	for _, suffix := range []string{"_key", "_ukey", "_idx"} {
		if s := strings.TrimSuffix(constraint, suffix); s != constraint {
			return strings.TrimPrefix(s, table+"_")
		}
	}
	return ""
}

// fkColumn extracts "client_id" from "devices_client_id_fkey".
func fkColumn(constraint, table string) string {
	s := strings.TrimSuffix(constraint, "_fkey")
	if s == constraint {
		return ""
	}
	return strings.TrimPrefix(s, table+"_")
}

// checkColumn extracts "status" from "clients_status_check".
func checkColumn(constraint, table string) string {
	s := strings.TrimSuffix(constraint, "_check")
	if s == constraint {
		return ""
	}
	return strings.TrimPrefix(s, table+"_")
}

// humanize turns "first_name" into "First Name". A Caser is stateful, so one
// is built per call.
func humanize(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}

func humanizeOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return humanize(s)
}
