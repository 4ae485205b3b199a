package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"gorm.io/gorm"
)

// Gateway errors. Every error returned by Gateway wraps exactly one of these,
// except context cancellation which is returned as-is.
var (
	// ErrNotFound is returned when no task has the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrConstraintViolation is returned when a write carries a value outside
	// the taxonomy, whether caught here or by the database CHECK constraints.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrUnavailable is returned when the database cannot be reached.
	ErrUnavailable = errors.New("database unavailable")

	// ErrInternal is returned for database errors that fit no other class.
	ErrInternal = errors.New("database error")
)

// classify maps a driver or gorm error onto the gateway sentinels.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConstraintViolation), errors.Is(err, ErrUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	case isConstraint(err):
		return fmt.Errorf("%s: %w: %w", op, ErrConstraintViolation, err)
	case isConnectivity(err):
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrInternal, err)
	}
}

func isConstraint(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "check constraint") ||
		strings.Contains(msg, "constraint failed: chk_") ||
		strings.Contains(msg, "invalid input value for enum")
}

func isConnectivity(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"database is closed", "connection refused", "broken pipe", "unable to open database", "bad connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
