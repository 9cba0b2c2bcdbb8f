// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver errors themselves.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrForbidden is returned when the caller attempts an operation they are
// not entitled to, such as rating a book they never bought.  Handlers
// translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be performed
// because of dependent records, such as deleting a book that has
// purchases.  Handlers translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrPurchaseExists signals that a purchase for the same (session_id,
// book_id) pair was already recorded.  Fulfillment treats it as a
// successful duplicate delivery.
var ErrPurchaseExists = errors.New("purchase already recorded")

// ErrReferenceMissing is returned when an insert names a user or book that
// does not exist (foreign key violation).  Retrying cannot fix it.
var ErrReferenceMissing = errors.New("referenced row does not exist")

// ErrEmailExists is returned by UserRepo.Create for a taken email.
var ErrEmailExists = errors.New("email already exists")

// MySQL server error numbers the repositories react to.
const (
	mysqlErrDuplicate     = 1062
	mysqlErrRowReferenced = 1451
	mysqlErrNoReferenced  = 1452
)

func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}
