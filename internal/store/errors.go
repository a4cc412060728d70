package store

import (
	"errors"
	"fmt"
)

// Sentinels returned by every UserStore, CircleStore and GoalStore
// implementation. The service layer translates them into domain errors.
var (
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate covers any unique key collision.
	ErrDuplicate = errors.New("entity already exists")

	// ErrConflict means the caller saved a circle or goal whose Version no
	// longer matches the stored row.
	ErrConflict = errors.New("entity version conflict")

	// ErrInvalidEntity is returned for rows the store refuses to write, such as
	// a user without a password hash or a contribution that breaks a check
	// constraint.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed wraps begin and commit failures in RunInTransaction.
	ErrTransactionFailed = errors.New("transaction failed")

	ErrUserNotFound       = fmt.Errorf("%w: user", ErrNotFound)
	ErrCircleNotFound     = fmt.Errorf("%w: lending circle", ErrNotFound)
	ErrGoalNotFound       = fmt.Errorf("%w: financial goal", ErrNotFound)
	ErrMicrograntNotFound = fmt.Errorf("%w: microgrant", ErrNotFound)

	ErrEmailExists = fmt.Errorf("%w: email", ErrDuplicate)

	// ErrContributionExists means the member already paid into this period.
	ErrContributionExists = fmt.Errorf("%w: contribution for period", ErrDuplicate)
)

// IsDuplicateError reports whether err is any unique key collision.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
