package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/wrdsb/user-directory-api/internal/core/port"
)

// ContentRepository implements port.ContentRepository using PostgreSQL.
type ContentRepository struct {
	db      Querier
	builder squirrel.StatementBuilderType
}

// NewContentRepository wires a PostgreSQL-backed content repository.
func NewContentRepository(db Querier) *ContentRepository {
	return &ContentRepository{
		db:      db,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// CountPublishedByAuthor returns the number of published content items
// attributed to the user.
func (r *ContentRepository) CountPublishedByAuthor(ctx context.Context, authorID int64) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("directory.content").
		Where(squirrel.Eq{"author_id": authorID, "status": "publish"}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count published content sql: %w", err)
	}

	row := r.db.QueryRow(ctx, stmt, args...)

	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("scan published content count: %w", err)
	}

	return int(count), nil
}

var _ port.ContentRepository = (*ContentRepository)(nil)
