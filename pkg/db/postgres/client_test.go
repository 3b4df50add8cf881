package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassifiers(t *testing.T) {
	unique := fmt.Errorf("exec batch: %w", &pgconn.PgError{Code: "23505"})
	encoding := fmt.Errorf("exec batch: %w", &pgconn.PgError{Code: "22P05"})
	badBytes := &pgconn.PgError{Code: "22021"}
	plain := errors.New("connection reset")

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(encoding))
	assert.False(t, IsUniqueViolation(plain))

	assert.True(t, IsEncodingError(encoding))
	assert.True(t, IsEncodingError(badBytes))
	assert.False(t, IsEncodingError(unique))
	assert.False(t, IsEncodingError(plain))

	assert.True(t, IsNoRows(fmt.Errorf("get status: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(plain))
}
