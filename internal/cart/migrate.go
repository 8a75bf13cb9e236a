package cart

import (
	"context"
	"strings"

	pkgerrors "github.com/lokrise/checkout/pkg/errors"
)

// MigrationResult reports what a guest cart migration did.
type MigrationResult struct {
	Migrated int    `json:"migrated"`
	Skipped  bool   `json:"skipped"`
	Lines    []Line `json:"lines"`
}

// MigrateGuest replays every guest line onto the authenticated backend cart and then
// discards the guest cart. A marker keyed by guest token makes a concurrent call a no-op
// while a migration is running; it is dropped once the guest cart is drained, so a later
// login with the same token migrates whatever was added since. Lines are removed from the
// guest cart as their replay succeeds, so a failed migration retries only what is left.
func (s *service) MigrateGuest(ctx context.Context, userID, guestToken string) (*MigrationResult, error) {
	userID = strings.TrimSpace(userID)
	guestToken = strings.TrimSpace(guestToken)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if guestToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest token is required")
	}

	claimed, err := s.guests.claimMigration(ctx, guestToken, userID, s.markerTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim cart migration")
	}
	if !claimed {
		s.logg.Info(s.logg.WithGuestToken(ctx, guestToken), "cart.migrate.skipped")
		return &MigrationResult{Skipped: true, Lines: []Line{}}, nil
	}

	remaining, err := s.guests.Load(ctx, guestToken)
	if err != nil {
		s.release(ctx, guestToken)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}

	result := &MigrationResult{}
	for len(remaining) > 0 {
		line := remaining[0]
		if _, err := s.account.AddToCart(ctx, line.ProductID, line.Quantity); err != nil {
			s.release(ctx, guestToken)
			s.logg.Warn(s.logg.WithGuestToken(ctx, guestToken), "cart.migrate.partial_failure")
			return nil, err
		}
		remaining = remaining[1:]
		result.Migrated++
		if err := s.guests.Save(ctx, guestToken, remaining); err != nil {
			s.release(ctx, guestToken)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save guest cart")
		}
	}

	if err := s.guests.Clear(ctx, guestToken); err != nil {
		s.logg.Error(ctx, "cart.migrate.clear_failed", err)
	}
	s.release(ctx, guestToken)

	items, err := s.account.GetCart(ctx)
	if err != nil {
		return nil, err
	}
	result.Lines = linesFromBackend(items)
	return result, nil
}

func (s *service) release(ctx context.Context, guestToken string) {
	if err := s.guests.releaseMigration(ctx, guestToken); err != nil {
		s.logg.Error(ctx, "cart.migrate.release_failed", err)
	}
}
