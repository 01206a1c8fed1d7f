package repository

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	dbErr := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "nil", err: nil, expected: nil},
		{name: "no rows", err: pgx.ErrNoRows, expected: ErrNotFound},
		{name: "wrapped no rows", err: errors.Wrap(pgx.ErrNoRows, "scan"), expected: ErrNotFound},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "invites_pending_email_key"}, expected: ErrAlreadyExists},
		{name: "foreign key violation", err: &pgconn.PgError{Code: "23503"}, expected: ErrNotFound},
		{name: "malformed uuid", err: &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}, expected: ErrNotFound},
		{name: "other pg error", err: &pgconn.PgError{Code: "42P01"}, expected: nil},
		{name: "unrelated", err: dbErr, expected: dbErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.err)
			switch {
			case tt.err == nil:
				assert.NoError(t, got)
			case tt.expected == nil:
				assert.Equal(t, tt.err, got)
			default:
				assert.ErrorIs(t, got, tt.expected)
			}
		})
	}
}
