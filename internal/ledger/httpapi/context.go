package httpapi

import (
	"context"

	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
)

type authorKey struct{}

// WithAuthor stores the authenticated author on ctx.
func WithAuthor(ctx context.Context, author activity.Author) context.Context {
	return context.WithValue(ctx, authorKey{}, author)
}

// AuthorFromContext returns the author set by the identity middleware.
func AuthorFromContext(ctx context.Context) (activity.Author, bool) {
	author, ok := ctx.Value(authorKey{}).(activity.Author)
	if !ok || author.ID == uuid.Nil {
		return activity.Author{}, false
	}
	return author, true
}
