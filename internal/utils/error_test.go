package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorBuilder(t *testing.T) {
	cause := errors.New("no storage factory registered for kind \"ftp\"")
	err := NewMaterializationError(cause)

	assert.Equal(t, ErrCodeMaterializationFailed, err.Code)
	assert.Equal(t, "Source could not be materialized", err.Message)
	assert.Equal(t, cause.Error(), err.Details)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusUnprocessableEntity, GetErrorStatus(err))

	wrapped := fmt.Errorf("put: %w", err)
	assert.True(t, IsErrorType(wrapped, ErrCodeMaterializationFailed))
	assert.Equal(t, http.StatusUnprocessableEntity, GetErrorStatus(wrapped))
}

func TestAsAppError(t *testing.T) {
	app := AsAppError(errors.New("boom"))
	assert.Equal(t, ErrCodeInternalError, app.Code)
	assert.Equal(t, "boom", app.Details)
	assert.Equal(t, http.StatusInternalServerError, GetErrorStatus(app))

	nf := NewNotFoundError("Source 'x'")
	assert.Same(t, nf, AsAppError(nf))
	assert.Equal(t, "NOT_FOUND: Source 'x' not found", nf.Error())
	assert.Equal(t, "Unknown error", getDefaultMessage("NOPE"))
}
