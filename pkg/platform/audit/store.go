package audit

import (
	"context"

	"cardgate/pkg/domain"
)

// Store is an append-only audit sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Lister is implemented by sinks that can be read back.
type Lister interface {
	ListByUser(ctx context.Context, userID domain.UserID) ([]Event, error)
}
