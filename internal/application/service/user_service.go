package service

import (
	"context"
	"errors"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/domain/models"
	"github.com/bravo68web/tableidentity/internal/domain/repository"
	"github.com/bravo68web/tableidentity/internal/keys"
	"github.com/bravo68web/tableidentity/internal/tablestore"
	apperrors "github.com/bravo68web/tableidentity/pkg/errors"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt ignores everything past 72 bytes
	maxUsernameLength = 256
)

var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// UserService handles user-related business logic on top of the identity store
type UserService struct {
	store    repository.UserStore
	lockout  config.LockoutConfig
	hashCost int
	now      func() time.Time
	log      *logger.Logger
}

// NewUserService creates a new UserService instance
func NewUserService(store repository.UserStore, lockout config.LockoutConfig) *UserService {
	return &UserService{
		store:    store,
		lockout:  lockout,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
		log:      logger.Get().WithFields(logger.Component("user-service")),
	}
}

// RegisterRequest represents a request to create a new user
type RegisterRequest struct {
	Username    string
	Email       string
	Password    string
	PhoneNumber string
	Logins      []models.LoginInfo
}

// UpdateProfileRequest carries optional profile changes
type UpdateProfileRequest struct {
	Email                *string
	EmailConfirmed       *bool
	PhoneNumber          *string
	PhoneNumberConfirmed *bool
	TwoFactorEnabled     *bool
	LockoutEnabled       *bool
}

// Register creates a user with a hashed password and a fresh security stamp.
// The password is optional for users that only sign in through external logins.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	log := s.log.WithContext(ctx).WithFields(logger.Username(req.Username))

	if err := validateUsername(req.Username); err != nil {
		return nil, err
	}
	if req.Email != "" && !emailRegex.MatchString(req.Email) {
		return nil, apperrors.ValidationError("email", "invalid email format")
	}

	user := models.NewUser(req.Username)
	user.Email = req.Email
	user.PhoneNumber = req.PhoneNumber
	user.LockoutEnabled = s.lockout.Enabled
	user.SecurityStamp = uuid.NewString()

	if req.Password != "" {
		hash, err := s.hashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	for _, l := range req.Logins {
		user.Logins = append(user.Logins, models.UserLogin{
			UserID:        user.ID,
			LoginProvider: l.LoginProvider,
			ProviderKey:   l.ProviderKey,
		})
	}

	if err := s.store.Create(ctx, user); err != nil {
		log.Warn("User registration failed", logger.Error(err))
		return nil, err
	}

	log.Info("User registered", logger.UserID(user.ID))
	return user, nil
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", nil)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (s *UserService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", nil)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", nil)
	}
	return user, nil
}

// GetUserByLogin retrieves the user bound to an external login
func (s *UserService) GetUserByLogin(ctx context.Context, login models.LoginInfo) (*models.User, error) {
	user, err := s.store.FindByLogin(ctx, login)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NotFound("user", nil)
	}
	return user, nil
}

// GetProfile returns a user with roles, claims and logins
func (s *UserService) GetProfile(ctx context.Context, id string) (*models.HydratedUser, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.store.Hydrate(ctx, user)
}

// SearchUsernames lists usernames starting with prefix
func (s *UserService) SearchUsernames(ctx context.Context, prefix string, limit int) ([]string, error) {
	return s.store.SearchUsernames(ctx, prefix, limit)
}

// UpdateProfile applies the non-nil fields of req and persists the user
func (s *UserService) UpdateProfile(ctx context.Context, id string, req UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Email != nil && *req.Email != user.Email {
		if *req.Email != "" && !emailRegex.MatchString(*req.Email) {
			return nil, apperrors.ValidationError("email", "invalid email format")
		}
		if err := s.store.ChangeEmail(ctx, user, *req.Email); err != nil {
			return nil, err
		}
		// A new address starts unconfirmed unless the request says otherwise.
		if err := s.store.SetEmailConfirmed(ctx, user, false); err != nil {
			return nil, err
		}
	}
	if req.EmailConfirmed != nil {
		if err := s.store.SetEmailConfirmed(ctx, user, *req.EmailConfirmed); err != nil {
			return nil, err
		}
	}
	if req.PhoneNumber != nil {
		if err := s.store.SetPhoneNumber(ctx, user, *req.PhoneNumber); err != nil {
			return nil, err
		}
	}
	if req.PhoneNumberConfirmed != nil {
		if err := s.store.SetPhoneNumberConfirmed(ctx, user, *req.PhoneNumberConfirmed); err != nil {
			return nil, err
		}
	}
	if req.TwoFactorEnabled != nil {
		if err := s.store.SetTwoFactorEnabled(ctx, user, *req.TwoFactorEnabled); err != nil {
			return nil, err
		}
	}
	if req.LockoutEnabled != nil {
		if err := s.store.SetLockoutEnabled(ctx, user, *req.LockoutEnabled); err != nil {
			return nil, err
		}
	}

	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithContext(ctx).Info("User profile updated", logger.UserID(user.ID))
	return user, nil
}

// CheckPassword verifies a username/password pair and applies the lockout
// policy. Failed attempts count towards the lockout threshold; reaching it
// locks the user out for the configured duration. A successful check resets
// the count.
func (s *UserService) CheckPassword(ctx context.Context, username, password string) (*models.User, error) {
	log := s.log.WithContext(ctx).WithFields(logger.Username(username))

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.HasPassword() {
		return nil, apperrors.Unauthorized("invalid username or password", apperrors.ErrInvalidCredentials)
	}

	now := s.now().UTC()
	if s.lockout.Enabled && user.IsLockedOut(now) {
		log.Warn("Sign-in attempt while locked out", logger.UserID(user.ID))
		return nil, apperrors.LockedOut(user.ID)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, apperrors.InternalError("compare password", err)
		}
		if err := s.recordFailure(ctx, user, now); err != nil {
			return nil, err
		}
		return nil, apperrors.Unauthorized("invalid username or password", apperrors.ErrInvalidCredentials)
	}

	if user.AccessFailedCount > 0 {
		if err := s.store.ResetAccessFailedCount(ctx, user); err != nil {
			return nil, err
		}
		if err := s.store.Update(ctx, user); err != nil {
			return nil, err
		}
	}
	return user, nil
}

// recordFailure counts a failed attempt and locks the user out at the threshold.
func (s *UserService) recordFailure(ctx context.Context, user *models.User, now time.Time) error {
	if !s.lockout.Enabled || !user.LockoutEnabled {
		return nil
	}
	count, err := s.store.IncrementAccessFailedCount(ctx, user)
	if err != nil {
		return err
	}
	if count >= s.lockout.MaxFailedAttempts {
		if err := s.store.SetLockoutEndDate(ctx, user, now.Add(s.lockout.Duration)); err != nil {
			return err
		}
		if err := s.store.ResetAccessFailedCount(ctx, user); err != nil {
			return err
		}
		s.log.WithContext(ctx).Warn("User locked out",
			logger.UserID(user.ID),
			logger.Time("until", user.LockoutEndDateUtc),
		)
	}
	return s.store.Update(ctx, user)
}

// ChangePassword replaces the password after verifying the current one
func (s *UserService) ChangePassword(ctx context.Context, id, current, next string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.HasPassword() {
		if _, err := s.CheckPassword(ctx, user.UserName, current); err != nil {
			return err
		}
		// CheckPassword may have persisted a reset; reload for a fresh ETag.
		if user, err = s.GetUser(ctx, id); err != nil {
			return err
		}
	}
	return s.setPassword(ctx, user, next)
}

// ResetPassword sets a new password without the current one and lifts any lockout
func (s *UserService) ResetPassword(ctx context.Context, id, password string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.SetLockoutEndDate(ctx, user, time.Time{}); err != nil {
		return err
	}
	if err := s.store.ResetAccessFailedCount(ctx, user); err != nil {
		return err
	}
	return s.setPassword(ctx, user, password)
}

func (s *UserService) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.SetPasswordHash(ctx, user, hash); err != nil {
		return err
	}
	if err := s.store.SetSecurityStamp(ctx, user, uuid.NewString()); err != nil {
		return err
	}
	if err := s.store.Update(ctx, user); err != nil {
		return err
	}
	s.log.WithContext(ctx).Info("Password changed", logger.UserID(user.ID))
	return nil
}

// Unlock clears the lockout end date and the failed attempt count
func (s *UserService) Unlock(ctx context.Context, id string) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetLockoutEndDate(ctx, user, tablestore.MinDateTime); err != nil {
		return nil, err
	}
	if err := s.store.ResetAccessFailedCount(ctx, user); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser deletes a user by ID
func (s *UserService) DeleteUser(ctx context.Context, id string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, user); err != nil {
		return err
	}
	s.log.WithContext(ctx).Info("User deleted", logger.UserID(id), logger.Username(user.UserName))
	return nil
}

// AddToRole adds the user to role
func (s *UserService) AddToRole(ctx context.Context, id, role string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.store.AddToRole(ctx, user, role)
}

// IsInRole reports whether the user is a member of role
func (s *UserService) IsInRole(ctx context.Context, user *models.User, role string) (bool, error) {
	return s.store.IsInRole(ctx, user, role)
}

// RemoveFromRole removes the user from role
func (s *UserService) RemoveFromRole(ctx context.Context, id, role string) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.store.RemoveFromRole(ctx, user, role)
}

// AddClaim sets a claim on the user
func (s *UserService) AddClaim(ctx context.Context, id string, claim models.Claim) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.store.AddClaim(ctx, user, claim)
}

// RemoveClaim removes a claim from the user
func (s *UserService) RemoveClaim(ctx context.Context, id string, claim models.Claim) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.store.RemoveClaim(ctx, user, claim)
}

// AddLogin binds an external login to the user
func (s *UserService) AddLogin(ctx context.Context, id string, login models.LoginInfo) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.store.AddLogin(ctx, user, login)
}

// RemoveLogin unbinds an external login from the user
func (s *UserService) RemoveLogin(ctx context.Context, id string, login models.LoginInfo) error {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	return s.store.RemoveLogin(ctx, user, login)
}

func (s *UserService) hashPassword(password string) (string, error) {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return "", apperrors.ValidationError("password", "password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return "", apperrors.ValidationError("password", "password must be 72 bytes or less")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", apperrors.InternalError("hash password", err)
	}
	return string(hash), nil
}

// validateUsername validates a username
func validateUsername(username string) error {
	if username == "" {
		return apperrors.ValidationError("username", "username is required")
	}
	if len(username) > maxUsernameLength {
		return apperrors.ValidationError("username", "username must be 256 bytes or less")
	}
	if err := keys.ValidateUsername(username); err != nil {
		return apperrors.ValidationError("username", "username may not contain '/', '\\', '#', '?' or control characters")
	}
	return nil
}
