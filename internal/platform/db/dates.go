package db

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/blasbase/blasbase/internal/shared"
)

// DateParam converts an optional calendar date into a query argument.
func DateParam(d *shared.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(), Valid: true}
}

// DateValue converts a scanned column into an optional calendar date.
func DateValue(v pgtype.Date) *shared.Date {
	if !v.Valid {
		return nil
	}
	d := shared.DateOf(v.Time)
	return &d
}
