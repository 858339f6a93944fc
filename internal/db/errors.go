package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/parley-go/internal/chat"
)

// ErrTransactionConflict indicates a SurrealDB transaction conflict.
// This occurs when concurrent operations modify the same records.
// Callers should typically retry the operation.
var ErrTransactionConflict = errors.New("transaction conflict")

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel if it matches a known query error. Returns the
// original error otherwise.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
	}

	return err
}

// notFound builds the store-level not-found error for a record.
func notFound(table, id string) error {
	return fmt.Errorf("%w: %s:%s", chat.ErrNotFound, table, id)
}
