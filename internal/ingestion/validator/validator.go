// Package validator checks books before they are written to the datalake
// and returns per-field error details.
package validator

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/booksearch/pkg/errors"
)

const maxHeaderLength = 64 << 10

// ValidationError holds per-field validation failure messages. It matches
// ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateBook checks an id and the split header and body of a book.
// maxBody <= 0 disables the size check.
func ValidateBook(id uint32, header, body string, maxBody int64) error {
	errs := make(map[string]string)
	if id == 0 {
		errs["book_id"] = "book id must be positive"
	}
	if len(header) > maxHeaderLength {
		errs["header"] = fmt.Sprintf("header must be at most %d bytes", maxHeaderLength)
	}
	switch {
	case strings.TrimSpace(body) == "":
		errs["body"] = "body is empty; the text needs Project Gutenberg start and end markers"
	case maxBody > 0 && int64(len(body)) > maxBody:
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", maxBody)
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
