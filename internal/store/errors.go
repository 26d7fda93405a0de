package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/bookshelf/internal/errors"
)

// translate maps engine failures onto domain codes. Errors that already carry
// a domain code pass through untouched.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		return err
	}

	if errors.Is(err, badger.ErrDBClosed) || errors.Is(err, badger.ErrBlockedWrites) {
		return errors.Wrap(err, errors.CodeStoreUnavailable, op)
	}
	if errors.Is(err, badger.ErrTxnTooBig) {
		return errors.Validation(op + ": transaction too large")
	}
	// Conflicts and I/O failures abort the transaction as a whole.
	return errors.Wrap(err, errors.CodeTransactionFailure, op)
}

func errCollectionNotFound(name string) error {
	return &errors.Error{
		Code:    errors.CodeCollectionNotFound,
		Message: fmt.Sprintf("collection %q not found", name),
	}
}

func errNotInScope(name string) error {
	return &errors.Error{
		Code:    errors.CodeCollectionNotFound,
		Message: fmt.Sprintf("collection %q is not part of this transaction", name),
	}
}

func errIndexNotFound(collection, index string) error {
	return &errors.Error{
		Code:    errors.CodeCollectionNotFound,
		Message: fmt.Sprintf("index %q not defined on collection %q", index, collection),
	}
}

func errReadOnly(collection string) error {
	return &errors.Error{
		Code:    errors.CodeTransactionFailure,
		Message: fmt.Sprintf("write to %q in a read-only transaction", collection),
	}
}

func errFinished() error {
	return &errors.Error{
		Code:    errors.CodeTransactionFailure,
		Message: "transaction already finished",
	}
}

func errUniqueViolation(collection, index string, value any) error {
	return errors.ConstraintViolationf("unique index %s.%s already holds %v", collection, index, value)
}

func errKeyExists(collection string, key int64) error {
	return errors.ConstraintViolationf("key %d already exists in %s", key, collection)
}

func errNotFound(collection string, key int64) error {
	return errors.NotFoundf("%s: no record with key %d", collection, key)
}
