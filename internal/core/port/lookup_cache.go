package port

import "context"

// LookupCache memoizes alternate-identifier resolution results.
type LookupCache interface {
	// GetUserID returns the cached user id for the identifier. The second
	// return value reports whether a cached entry was found.
	GetUserID(ctx context.Context, idNumber string) (int64, bool, error)
	SetUserID(ctx context.Context, idNumber string, userID int64) error
	Invalidate(ctx context.Context, idNumber string) error
}
