package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad input")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
	assert.Equal(t, KindStoreUnavailable, KindOf(StoreUnavailable("down", errors.New("conn refused"))))
	assert.Equal(t, KindRenderFailed, KindOf(RenderFailed("render", errors.New("boom"))))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("outer context: %w", NotFound("document 5"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
}

func TestFromStoreNoRows(t *testing.T) {
	err := FromStore("document not found", pgx.ErrNoRows)
	assert.True(t, IsNotFound(err))
}

func TestFromStoreConstraintViolations(t *testing.T) {
	for _, code := range []string{"23503", "23502", "23505", "23514"} {
		err := FromStore("insert document", &pgconn.PgError{Code: code})
		assert.True(t, IsValidation(err), "code %s should map to validation", code)
	}
}

func TestFromStoreGenericFailure(t *testing.T) {
	err := FromStore("insert document", errors.New("connection reset"))
	assert.True(t, IsStoreUnavailable(err))
}

func TestFromStorePreservesExistingKind(t *testing.T) {
	orig := Validation("bad reference")
	assert.Equal(t, orig, FromStore("wrapped", orig))
}

func TestFromStoreNil(t *testing.T) {
	assert.NoError(t, FromStore("anything", nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(StoreUnavailable("db", errors.New("x"))))
	assert.False(t, IsTransient(Validation("bad")))
	assert.False(t, IsTransient(nil))
}
