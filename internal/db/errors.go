package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyExists indicates a record with the same ID already exists.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict indicates two writers touched the same job record
	// at once, typically two processes sharing one database.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrDimensionMismatch indicates a memory embedding whose length differs
	// from the dimension the memory index was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// wrapQueryError maps SurrealDB query errors onto the sentinels above and
// returns any other error unchanged.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		if strings.Contains(msg, "already exists") {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		}
		if strings.Contains(msg, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
		if strings.Contains(strings.ToLower(msg), "vector dimension") {
			return fmt.Errorf("%w: %s (check LOCALGENIUS_EMBED_DIMENSION)", ErrDimensionMismatch, msg)
		}
	}

	return err
}
