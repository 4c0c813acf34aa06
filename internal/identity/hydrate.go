package identity

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/bravo68web/tableidentity/internal/domain/models"
)

// Hydrate loads the roles, claims and logins of user concurrently.
func (s *Store) Hydrate(ctx context.Context, user *models.User) (hydrated *models.HydratedUser, err error) {
	if err := validateUser(user); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "Hydrate", attribute.String("user.id", user.ID))
	defer func() { endSpan(span, err) }()

	out := &models.HydratedUser{User: user}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		roles, err := s.GetRoles(gctx, user)
		out.Roles = roles
		return err
	})
	g.Go(func() error {
		claims, err := s.GetClaims(gctx, user)
		out.Claims = claims
		return err
	})
	g.Go(func() error {
		logins, err := s.GetLogins(gctx, user)
		out.Logins = logins
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
