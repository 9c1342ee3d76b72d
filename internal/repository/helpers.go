package repository

import "errors"

// ErrLockConflict is returned by conditional open-trade-lock writes when the
// row's current lock value no longer matches the expected prior value.
var ErrLockConflict = errors.New("open trade lock changed concurrently")

// --- scan helpers shared by the repos ---

type scannable interface {
	Scan(dest ...any) error
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func isNoRows(err error) bool {
	return err != nil && err.Error() == "no rows in result set"
}
