package port

import "context"

// ContentRepository exposes authored-content lookups used by view permission
// checks.
type ContentRepository interface {
	// CountPublishedByAuthor returns the number of published content items
	// attributed to the user.
	CountPublishedByAuthor(ctx context.Context, authorID int64) (int, error)
}
