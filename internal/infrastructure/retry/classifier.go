package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ersonp/dimload/internal/domain/ports"
)

// Classifier decides whether a failed operation may succeed if tried again.
type Classifier interface {
	IsTransient(err error) bool
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(err error) bool

// IsTransient calls f(err).
func (f ClassifierFunc) IsTransient(err error) bool {
	return f(err)
}

// pgTransientCodes are PostgreSQL error codes outside the always-transient classes
// that are still worth retrying.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html
var pgTransientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// pgTransientClasses are PostgreSQL error classes that are always transient.
var pgTransientClasses = []string{
	"08", // connection exception
	"53", // insufficient resources
	"57", // operator intervention
}

// WarehouseClassifier recognizes transient PostgreSQL, SQLite and network errors.
type WarehouseClassifier struct{}

// NewWarehouseClassifier creates a new classifier.
func NewWarehouseClassifier() *WarehouseClassifier {
	return &WarehouseClassifier{}
}

// IsTransient reports whether err is worth retrying.
func (c *WarehouseClassifier) IsTransient(err error) bool {
	return c.IsDefiniteFailure(err) || (retryable(err) && isNetworkError(err))
}

// IsDefiniteFailure reports whether err is transient and the failed operation is
// known to have had no effect. A dropped connection after a request was sent
// doesn't qualify: the server may have committed it.
func (c *WarehouseClassifier) IsDefiniteFailure(err error) bool {
	if !retryable(err) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPgCode(pgErr.Code)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return isTransientSQLiteCode(sqliteErr.Code())
	}

	return pgconn.SafeToRetry(err)
}

// retryable rules out errors no retry can fix.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	// A lost race or a caller that gave up.
	return !errors.Is(err, ports.ErrDuplicateNaturalKey) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

func isTransientPgCode(code string) bool {
	if pgTransientCodes[code] {
		return true
	}
	for _, class := range pgTransientClasses {
		if strings.HasPrefix(code, class) {
			return true
		}
	}
	return false
}

func isTransientSQLiteCode(code int) bool {
	// Extended result codes keep the primary code in the low byte.
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ENETUNREACH,
		syscall.EHOSTUNREACH,
		syscall.EPIPE,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
