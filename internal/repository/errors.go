// Package repository holds the MySQL data access layer.  Sentinel errors let
// services distinguish "absent" from "conflicting" without inspecting driver
// errors; ownership misses are reported as ErrNotFound so callers cannot tell
// a foreign row from a missing one.
package repository

import (
	stderrors "errors"

	"github.com/go-sql-driver/mysql"
)

var (
	// ErrNotFound is returned when a row does not exist or is not owned by the caller.
	ErrNotFound = stderrors.New("not found")

	// ErrEmailExists is returned when the users.email unique index rejects an insert.
	ErrEmailExists = stderrors.New("email already exists")

	// ErrDuplicateName is returned when a category name is already taken by the same user.
	ErrDuplicateName = stderrors.New("duplicate name")

	// ErrConflict is returned when an operation is blocked by dependent rows.
	ErrConflict = stderrors.New("conflict")
)

const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if stderrors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return false
}
