package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeDuplicateColumn      = "42701"
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure:
			return ErrorClassSerialization
		case codeDeadlockDetected:
			return ErrorClassDeadlock
		case codeLockNotAvailable:
			return ErrorClassTransient
		case codeUniqueViolation, codeForeignKeyViolation, "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

func IsUniqueViolation(err error) bool {
	return hasCode(err, codeUniqueViolation)
}

func IsForeignKeyViolation(err error) bool {
	return hasCode(err, codeForeignKeyViolation)
}

// IsDuplicateColumn reports whether err is Postgres refusing an ADD COLUMN
// because the column already exists.
func IsDuplicateColumn(err error) bool {
	return hasCode(err, codeDuplicateColumn)
}

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrRefundNotFound  = errors.New("refund request not found")
	ErrProductExists   = errors.New("product already exists")

	ErrExhausted          = errors.New("no free card available")
	ErrNotReserved        = errors.New("no card reserved for order")
	ErrInvalidOrderState  = errors.New("invalid order state")
	ErrDuplicateRequest   = errors.New("refund request already pending")
	ErrRefundNotPending   = errors.New("refund request already processed")
	ErrProductUnavailable = errors.New("product unavailable")
	ErrLimitExceeded      = errors.New("purchase limit exceeded")
	ErrAmountMismatch     = errors.New("paid amount does not match order amount")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidCursor      = errors.New("invalid cursor")

	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrInvalidPoints         = errors.New("invalid points amount")
	ErrPointsOverflow        = errors.New("points balance overflow")
	ErrAlreadyCheckedInToday = errors.New("already checked in today")
	ErrUserBlocked           = errors.New("user is blocked")

	ErrInvalidRating   = errors.New("rating must be between 1 and 5")
	ErrDuplicateReview = errors.New("order already reviewed")
)
