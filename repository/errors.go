package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"deadsongs/core/apperr"
)

// MySQL server error numbers the engine reacts to.
const (
	errDupEntry        = 1062
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
	errDataTooLong     = 1406
	errBadNull         = 1048
)

// classify turns a driver or gorm error into a typed error. msg is the
// user-facing text used for remote failures.
func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	var typed *apperr.Error
	if errors.As(err, &typed) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(err, apperr.ValidationError, "Record not found.")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(err, apperr.RaceConditionConflict, "The change conflicted with another session.")
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case errDupEntry:
			return apperr.Wrap(err, apperr.RaceConditionConflict, "The change conflicted with another session.")
		case errLockDeadlock, errLockWaitTimeout:
			return apperr.Wrap(err, apperr.RemoteUnavailable, msg)
		case errDataTooLong, errBadNull:
			return apperr.Wrap(err, apperr.ValidationError, "Invalid value.")
		}
		return apperr.Wrap(err, apperr.RemoteUnavailable, msg)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.As(err, &netErr):
		return apperr.Wrap(err, apperr.RemoteUnavailable, msg)
	}

	return apperr.Wrap(err, apperr.RemoteUnavailable, msg)
}

// likePattern builds a LIKE pattern matching term anywhere, case folded.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
