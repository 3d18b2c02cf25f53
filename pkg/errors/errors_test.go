package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("update 7: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"unreadable", fmt.Errorf("body: %w", ErrUnreadable), http.StatusBadGateway},
		{"bad filter", New(ErrBadFilter, 0, "year must be numeric"), http.StatusBadRequest},
		{"rebuild wraps cause", fmt.Errorf("%w: %w", ErrRebuildAborted, ErrDocumentNotFound), http.StatusInternalServerError},
		{"explicit status wins", New(ErrDocumentNotFound, http.StatusConflict, "x"), http.StatusConflict},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"unknown", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestCode(t *testing.T) {
	assert.Equal(t, "", Code(nil))
	assert.Equal(t, "bad_filter", Code(Newf(ErrBadFilter, 0, "year %q", "abc")))
	assert.Equal(t, "rebuild_aborted", Code(fmt.Errorf("%w: %w", ErrRebuildAborted, ErrUnreadable)))
	assert.Equal(t, "document_not_found", Code(ErrDocumentNotFound))
	assert.Equal(t, "internal", Code(fmt.Errorf("boom")))
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrBadFilter, http.StatusBadRequest, "year %q is not a number", "18x3")
	assert.ErrorIs(t, err, ErrBadFilter)
	assert.Equal(t, `bad filter: year "18x3" is not a number`, err.Error())
}
