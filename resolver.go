package secretgate

import (
	"context"
	"fmt"
	"log/slog"
)

// IdentityResolver maps a federated provider's verified subject id to a local user
type IdentityResolver struct {
	Store  UserStore
	Logger *slog.Logger
}

func NewIdentityResolver(store UserStore) *IdentityResolver {
	return &IdentityResolver{Store: store}
}

func (r *IdentityResolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// FindOrCreate returns the user linked to subjectID at provider, creating it
// if no user is linked yet. Concurrent calls for the same new subject id
// resolve to a single user; the store's uniqueness constraint arbitrates.
func (r *IdentityResolver) FindOrCreate(ctx context.Context, provider Provider, subjectID string) (*User, error) {
	if !provider.Valid() {
		return nil, ErrUnknownProvider
	}
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty %s subject id", ErrInvalidInput, provider)
	}

	user, created, err := r.Store.FindOrCreateByProvider(ctx, provider, subjectID)
	if err != nil {
		return nil, storeError("find or create "+string(provider)+" user", err)
	}
	if created {
		r.logger().InfoContext(ctx, "created federated user", "provider", provider, "user_id", user.ID)
	}
	return user, nil
}

// Link attaches a provider subject id to an existing user.
// Returns ErrAlreadyLinked if the subject belongs to another user or the
// user is already linked to a different subject at that provider.
func (r *IdentityResolver) Link(ctx context.Context, userId string, provider Provider, subjectID string) (*User, error) {
	if !provider.Valid() {
		return nil, ErrUnknownProvider
	}
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty %s subject id", ErrInvalidInput, provider)
	}
	user, err := r.Store.LinkProvider(ctx, userId, provider, subjectID)
	if err != nil {
		return nil, storeError("link "+string(provider), err)
	}
	r.logger().InfoContext(ctx, "linked federated identity", "provider", provider, "user_id", userId)
	return user, nil
}
