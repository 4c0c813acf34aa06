package identity

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/bravo68web/tableidentity/internal/codec"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/keys"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

// Create stores a new user. The username index row is inserted first and
// acts as the uniqueness check, then the email index row, then the user row
// and any logins attached to user.Logins. When a later step fails the rows
// written so far are removed again and the original error is returned.
func (s *Store) Create(ctx context.Context, user *models.User) (err error) {
	if err := validateNewUser(user); err != nil {
		return err
	}
	ctx, span := s.startSpan(ctx, "Create", attribute.String("user.id", user.ID))
	defer func() { endSpan(span, err) }()

	log := s.logCtx(ctx).WithFields(logger.UserID(user.ID), logger.Username(user.UserName))
	comp := newCompensator(log)

	upk, urk := keys.UsernameIndex(user.UserName)
	if _, err := s.usernames.Execute(ctx, tablestore.Insert(indexEntity(upk, urk, user.ID))); err != nil {
		if tablestore.IsConflict(err) {
			return apperrors.DuplicateUsername(user.UserName)
		}
		return apperrors.StorageError("insert username index", err)
	}
	comp.deleteOnFailure(s.usernames, upk, urk)

	if user.Email != "" {
		epk, erk := keys.EmailIndex(user.Email)
		if _, err := s.emails.Execute(ctx, tablestore.Insert(indexEntity(epk, erk, user.ID))); err != nil {
			_ = comp.run(ctx)
			if tablestore.IsConflict(err) {
				return apperrors.DuplicateEmail(user.Email)
			}
			return apperrors.StorageError("insert email index", err)
		}
		comp.deleteOnFailure(s.emails, epk, erk)
	}

	entity, err := userEntity(user)
	if err != nil {
		_ = comp.run(ctx)
		return err
	}
	stored, err := s.users.Execute(ctx, tablestore.InsertOrReplace(entity))
	if err != nil {
		_ = comp.run(ctx)
		return apperrors.StorageError("write user", err)
	}
	comp.deleteOnFailure(s.users, entity.PartitionKey, entity.RowKey)

	if len(user.Logins) > 0 {
		infos := make([]models.LoginInfo, len(user.Logins))
		for i, l := range user.Logins {
			infos[i] = l.Info()
		}
		if err := s.addLogins(ctx, user.ID, infos, comp); err != nil {
			_ = comp.run(ctx)
			return err
		}
	}

	user.ETag = stored.ETag
	log.Info("user created")
	return nil
}

// Update replaces the user row, using user.ETag as the precondition.
//
// The index tables are not touched: changing UserName or Email through
// Update leaves the old index rows pointing at the user. Use ChangeEmail to
// move an address, or the index rebuild to repair rows after the fact.
func (s *Store) Update(ctx context.Context, user *models.User) (err error) {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	if user.ID == "" {
		return apperrors.InvalidArgument("user.ID")
	}
	ctx, span := s.startSpan(ctx, "Update", attribute.String("user.id", user.ID))
	defer func() { endSpan(span, err) }()

	entity, err := userEntity(user)
	if err != nil {
		return err
	}
	stored, err := s.users.Execute(ctx, tablestore.Replace(entity))
	if err != nil {
		return userWriteError("update user", err)
	}
	user.ETag = stored.ETag
	return nil
}

// ChangeEmail moves user to a new email address and persists the user row.
// The new index row is claimed first, so a taken address fails with
// DuplicateEmail before anything else changes. The old index row is removed
// last; failing to remove it is logged, not returned. An empty email clears
// the address.
func (s *Store) ChangeEmail(ctx context.Context, user *models.User, email string) (err error) {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	if user.ID == "" {
		return apperrors.InvalidArgument("user.ID")
	}
	if email != "" {
		if err := tablestore.ValidateKey(keys.EncodeKey(email)); err != nil {
			return apperrors.InvalidArgumentf("email", "%v", err)
		}
	}
	if email == user.Email {
		return nil
	}
	ctx, span := s.startSpan(ctx, "ChangeEmail", attribute.String("user.id", user.ID))
	defer func() { endSpan(span, err) }()

	log := s.logCtx(ctx).WithFields(logger.UserID(user.ID))
	comp := newCompensator(log)

	if email != "" {
		epk, erk := keys.EmailIndex(email)
		_, err := s.emails.Execute(ctx, tablestore.Insert(indexEntity(epk, erk, user.ID)))
		switch {
		case err == nil:
			comp.deleteOnFailure(s.emails, epk, erk)
		case tablestore.IsConflict(err):
			// A row left behind by an earlier attempt for this user is reused.
			entry, _, rerr := readIndex(ctx, s.emails, epk, erk)
			if rerr != nil {
				return apperrors.StorageError("read email index", rerr)
			}
			if entry == nil || entry.UserID != user.ID {
				return apperrors.DuplicateEmail(email)
			}
		default:
			return apperrors.StorageError("insert email index", err)
		}
	}

	previous := user.Email
	user.Email = email
	if err := s.Update(ctx, user); err != nil {
		user.Email = previous
		_ = comp.run(ctx)
		return err
	}

	if previous != "" {
		ppk, prk := keys.EmailIndex(previous)
		if err := deleteIndexIfOwned(context.WithoutCancel(ctx), s.emails, ppk, prk, user.ID); err != nil {
			log.Warn("old email index row not removed", logger.Error(err))
		}
	}
	return nil
}

// Delete removes the user row, using user.ETag as the precondition, then
// removes roles, claims, logins and index rows. Failures after the user row
// is gone are logged, not returned.
func (s *Store) Delete(ctx context.Context, user *models.User) (err error) {
	if user == nil {
		return apperrors.InvalidArgument("user")
	}
	if user.ID == "" {
		return apperrors.InvalidArgument("user.ID")
	}
	ctx, span := s.startSpan(ctx, "Delete", attribute.String("user.id", user.ID))
	defer func() { endSpan(span, err) }()

	pk, rk := keys.User(user.ID)
	if _, err := s.users.Execute(ctx, tablestore.Delete(&tablestore.Entity{PartitionKey: pk, RowKey: rk, ETag: user.ETag})); err != nil {
		return userWriteError("delete user", err)
	}

	log := s.logCtx(ctx).WithFields(logger.UserID(user.ID))
	cleanupCtx := context.WithoutCancel(ctx)
	cleanup := []struct {
		name string
		run  func(context.Context) error
	}{
		{"roles", func(ctx context.Context) error { return s.RemoveAllRoles(ctx, user) }},
		{"claims", func(ctx context.Context) error { return s.RemoveAllClaims(ctx, user) }},
		{"logins", func(ctx context.Context) error { return s.RemoveAllLogins(ctx, user) }},
		{"username index", func(ctx context.Context) error {
			if user.UserName == "" {
				return nil
			}
			ipk, irk := keys.UsernameIndex(user.UserName)
			return deleteIndexIfOwned(ctx, s.usernames, ipk, irk, user.ID)
		}},
		{"email index", func(ctx context.Context) error {
			if user.Email == "" {
				return nil
			}
			ipk, irk := keys.EmailIndex(user.Email)
			return deleteIndexIfOwned(ctx, s.emails, ipk, irk, user.ID)
		}},
	}
	for _, c := range cleanup {
		if err := c.run(cleanupCtx); err != nil {
			log.Warn("user cleanup incomplete", logger.Operation(c.name), logger.Error(err))
		}
	}

	log.Info("user deleted")
	return nil
}

// FindByID returns the user with the given ID, or nil.
func (s *Store) FindByID(ctx context.Context, userID string) (user *models.User, err error) {
	if userID == "" {
		return nil, apperrors.InvalidArgument("userID")
	}
	ctx, span := s.startSpan(ctx, "FindByID", attribute.String("user.id", userID))
	defer func() { endSpan(span, err) }()

	return s.findByID(ctx, userID)
}

// FindByUsername returns the user owning username, or nil.
func (s *Store) FindByUsername(ctx context.Context, username string) (user *models.User, err error) {
	if username == "" {
		return nil, apperrors.InvalidArgument("username")
	}
	if keys.ValidateUsername(username) != nil {
		return nil, nil
	}
	ctx, span := s.startSpan(ctx, "FindByUsername")
	defer func() { endSpan(span, err) }()

	pk, rk := keys.UsernameIndex(username)
	return s.findThroughIndex(ctx, s.usernames, pk, rk)
}

// FindByEmail returns the user owning email, or nil. Emails match exactly.
func (s *Store) FindByEmail(ctx context.Context, email string) (user *models.User, err error) {
	if email == "" {
		return nil, apperrors.InvalidArgument("email")
	}
	ctx, span := s.startSpan(ctx, "FindByEmail")
	defer func() { endSpan(span, err) }()

	pk, rk := keys.EmailIndex(email)
	if tablestore.ValidateKey(pk) != nil {
		return nil, nil
	}
	return s.findThroughIndex(ctx, s.emails, pk, rk)
}

// FindByLogin returns the user bound to the external login, or nil.
func (s *Store) FindByLogin(ctx context.Context, login models.LoginInfo) (user *models.User, err error) {
	if err := validateLogin(login); err != nil {
		return nil, err
	}
	ctx, span := s.startSpan(ctx, "FindByLogin", attribute.String("login.provider", login.LoginProvider))
	defer func() { endSpan(span, err) }()

	pk, rk := keys.LoginProviderKeyIndex(login.LoginProvider, login.ProviderKey)
	if tablestore.ValidateKey(pk) != nil {
		return nil, nil
	}
	user, err = s.findThroughIndex(ctx, s.loginIndex, pk, rk)
	if err != nil || user == nil {
		return nil, err
	}

	// The index row may outlive a login removed halfway; the login row decides.
	lpk, lrk := keys.Login(user.ID, login.ProviderKey)
	e, err := s.logins.Retrieve(ctx, lpk, lrk)
	if err != nil {
		if tablestore.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.StorageError("read login", err)
	}
	var row models.UserLogin
	if err := codec.FromEntity(e, &row); err != nil {
		return nil, apperrors.StorageError("decode login", err)
	}
	if row.LoginProvider != login.LoginProvider {
		return nil, nil
	}
	return user, nil
}

// SearchUsernames lists usernames starting with prefix in ascending order.
// A non-positive limit means DefaultSearchLimit.
func (s *Store) SearchUsernames(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if tablestore.ValidateKey(prefix) != nil {
		return []string{}, nil
	}

	names := make([]string, 0)
	err := tablestore.ScanAll(ctx, s.usernames, tablestore.Query{PartitionPrefix: prefix, Take: limit}, func(e *tablestore.Entity) error {
		names = append(names, e.PartitionKey)
		if len(names) >= limit {
			return tablestore.ErrStopScan
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.StorageError("search usernames", err)
	}
	return names, nil
}

func (s *Store) findByID(ctx context.Context, userID string) (*models.User, error) {
	if tablestore.ValidateKey(userID) != nil {
		return nil, nil
	}
	pk, rk := keys.User(userID)
	e, err := s.users.Retrieve(ctx, pk, rk)
	if err != nil {
		if tablestore.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.StorageError("read user", err)
	}
	return decodeUser(e)
}

func (s *Store) findThroughIndex(ctx context.Context, index tablestore.Table, pk, rk string) (*models.User, error) {
	entry, _, err := readIndex(ctx, index, pk, rk)
	if err != nil {
		return nil, apperrors.StorageError("read "+index.Name(), err)
	}
	if entry == nil || entry.UserID == "" {
		return nil, nil
	}
	return s.findByID(ctx, entry.UserID)
}

func validateNewUser(u *models.User) error {
	if u == nil {
		return apperrors.InvalidArgument("user")
	}
	if u.ID == "" {
		return apperrors.InvalidArgument("user.ID")
	}
	if err := tablestore.ValidateKey(u.ID); err != nil {
		return apperrors.InvalidArgumentf("user.ID", "%v", err)
	}
	if u.UserName == "" {
		return apperrors.InvalidArgument("user.UserName")
	}
	if err := keys.ValidateUsername(u.UserName); err != nil {
		return apperrors.InvalidArgumentf("user.UserName", "%v", err)
	}
	if u.Email != "" {
		if err := tablestore.ValidateKey(keys.EncodeKey(u.Email)); err != nil {
			return apperrors.InvalidArgumentf("user.Email", "%v", err)
		}
	}
	seen := make(map[string]bool, len(u.Logins))
	for _, l := range u.Logins {
		if err := validateLogin(l.Info()); err != nil {
			return err
		}
		if seen[l.ProviderKey] {
			return apperrors.InvalidArgumentf("user.Logins", "provider key %q is listed twice", l.ProviderKey)
		}
		seen[l.ProviderKey] = true
	}
	return nil
}

func userEntity(u *models.User) (*tablestore.Entity, error) {
	pk, rk := keys.User(u.ID)
	e, err := codec.ToEntity(pk, rk, u)
	if err != nil {
		return nil, apperrors.InternalError("encode user", err)
	}
	e.ETag = u.ETag
	return e, nil
}

func decodeUser(e *tablestore.Entity) (*models.User, error) {
	var u models.User
	if err := codec.FromEntity(e, &u); err != nil {
		return nil, apperrors.StorageError("decode user", err)
	}
	if u.ID == "" {
		u.ID = e.RowKey
	}
	u.ETag = e.ETag
	return &u, nil
}

// userWriteError maps failures of writes against an existing user row.
func userWriteError(op string, err error) error {
	switch {
	case errors.Is(err, tablestore.ErrPreconditionFailed):
		return apperrors.Conflict("user was modified concurrently", err)
	case tablestore.IsNotFound(err):
		return apperrors.NotFound("user", err)
	default:
		return apperrors.StorageError(op, err)
	}
}
