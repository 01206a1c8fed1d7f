package service

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/teamsaas/internal/auth"
	"github.com/yakoovad/teamsaas/internal/db"
	"github.com/yakoovad/teamsaas/internal/model"
	"github.com/yakoovad/teamsaas/internal/repository"
	"github.com/yakoovad/teamsaas/pkg/logger"
	"go.uber.org/zap"
)

const minPasswordLength = 8

func validatePassword(password string) *Error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return invalid("password must be at least 8 characters")
	}
	if len(password) > auth.MaxPasswordBytes {
		return invalid("password must be at most 72 bytes")
	}
	return nil
}

type TokenIssuer interface {
	Issue(userID, email string) (string, error)
	Verify(token string) (*auth.TokenClaims, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

type UserService struct {
	tx db.Transactor

	users  repository.UserRepository
	tokens TokenIssuer
	hasher PasswordHasher
}

func NewUserService(tx db.Transactor) *UserService {
	return &UserService{tx: tx}
}

func toModelUser(u *repository.User) *model.User {
	return &model.User{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      model.UserRole(u.Role),
		Avatar:    u.Avatar,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (u *UserService) Register(ctx context.Context, email, password, name string) (*model.AuthResult, error) {
	l := logger.FromContext(ctx)

	email = normalizeEmail(email)
	if email == "" {
		return nil, invalid("email is required")
	}
	if serr := validatePassword(password); serr != nil {
		return nil, serr
	}
	if name == "" {
		return nil, invalid("name is required")
	}

	hash, err := u.hasher.Hash(password)
	if err != nil {
		l.Error("failed to hash password", zap.Error(err))
		return nil, internal("failed to register")
	}

	user := &repository.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         &name,
		PasswordHash: hash,
		Role:         string(model.UserRoleUser),
	}

	err = u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := u.users.Create(txCtx, user)
		if errors.Is(err, repository.ErrAlreadyExists) {
			l.Warn("email already registered")
			return NewError(ErrorCodeEmailTaken, "email is already registered")
		}
		if err != nil {
			l.Error("failed to create user", zap.Error(err))
			return internal("failed to register")
		}
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}

	l.Info("user registered", zap.String("user_id", user.ID))

	return u.authResult(ctx, user)
}

func (u *UserService) Login(ctx context.Context, email, password string) (*model.AuthResult, error) {
	l := logger.FromContext(ctx)

	user, err := u.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("login for unknown email")
		return nil, NewError(ErrorCodeUnauthorized, "invalid email or password")
	}
	if err != nil {
		l.Error("failed to get user", zap.Error(err))
		return nil, internal("failed to log in")
	}

	if !u.hasher.Compare(user.PasswordHash, password) {
		l.Warn("login with wrong password", zap.String("user_id", user.ID))
		return nil, NewError(ErrorCodeUnauthorized, "invalid email or password")
	}

	return u.authResult(ctx, user)
}

// Authenticate resolves a bearer token to a live user.
func (u *UserService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := u.tokens.Verify(token)
	if err != nil {
		logger.FromContext(ctx).Debug("token rejected", zap.Error(err))
		return nil, NewError(ErrorCodeUnauthorized, "unauthorized")
	}

	user, err := u.users.Get(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeUnauthorized, "unauthorized")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get user", zap.String("user_id", claims.Subject), zap.Error(err))
		return nil, internal("failed to authenticate")
	}
	return toModelUser(user), nil
}

func (u *UserService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := u.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, NewError(ErrorCodeNotFound, "user not found")
	}
	if err != nil {
		logger.FromContext(ctx).Error("failed to get user", zap.String("user_id", userID), zap.Error(err))
		return nil, internal("failed to get user")
	}
	return toModelUser(user), nil
}

func (u *UserService) UpdateProfile(ctx context.Context, userID string, name, email *string) (*model.User, error) {
	l := logger.FromContext(ctx)

	if name == nil && email == nil {
		return nil, invalid("nothing to update")
	}
	if name != nil && *name == "" {
		return nil, invalid("name must not be empty")
	}
	patch := &repository.UserPatch{ID: userID, Name: name}
	if email != nil {
		normalized := normalizeEmail(*email)
		patch.Email = &normalized
	}

	var updated *repository.User
	err := u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		var err error
		updated, err = u.users.Patch(txCtx, patch)
		if errors.Is(err, repository.ErrAlreadyExists) {
			l.Warn("email already registered", zap.String("user_id", userID))
			return NewError(ErrorCodeEmailTaken, "email is already registered")
		}
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "user not found")
		}
		if err != nil {
			l.Error("failed to patch user", zap.String("user_id", userID), zap.Error(err))
			return internal("failed to update profile")
		}
		return nil
	})
	if err != nil {
		return nil, asError(err)
	}
	return toModelUser(updated), nil
}

func (u *UserService) ChangePassword(ctx context.Context, userID, current, next string) error {
	l := logger.FromContext(ctx)

	if serr := validatePassword(next); serr != nil {
		return serr
	}

	return asError(u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		user, err := u.users.Get(txCtx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "user not found")
		}
		if err != nil {
			l.Error("failed to get user", zap.String("user_id", userID), zap.Error(err))
			return internal("failed to change password")
		}

		if !u.hasher.Compare(user.PasswordHash, current) {
			l.Warn("password change with wrong current password", zap.String("user_id", userID))
			return NewError(ErrorCodeInvalidPassword, "current password is incorrect")
		}

		hash, err := u.hasher.Hash(next)
		if err != nil {
			l.Error("failed to hash password", zap.Error(err))
			return internal("failed to change password")
		}

		if _, err = u.users.Patch(txCtx, &repository.UserPatch{ID: userID, PasswordHash: &hash}); err != nil {
			l.Error("failed to store password", zap.String("user_id", userID), zap.Error(err))
			return internal("failed to change password")
		}
		return nil
	}))
}

// DeleteAccount removes the user; owned teams and memberships cascade.
func (u *UserService) DeleteAccount(ctx context.Context, userID string) error {
	l := logger.FromContext(ctx)
	l.Info("deleting account", zap.String("user_id", userID))

	return asError(u.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		err := u.users.Delete(txCtx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return NewError(ErrorCodeNotFound, "user not found")
		}
		if err != nil {
			l.Error("failed to delete user", zap.String("user_id", userID), zap.Error(err))
			return internal("failed to delete account")
		}
		return nil
	}))
}

func (u *UserService) authResult(ctx context.Context, user *repository.User) (*model.AuthResult, error) {
	token, err := u.tokens.Issue(user.ID, user.Email)
	if err != nil {
		logger.FromContext(ctx).Error("failed to issue token", zap.String("user_id", user.ID), zap.Error(err))
		return nil, internal("failed to issue token")
	}
	return &model.AuthResult{User: toModelUser(user), Token: token}, nil
}

func (u *UserService) WithUserRepo(r repository.UserRepository) *UserService {
	u.users = r
	return u
}

func (u *UserService) WithTokenIssuer(t TokenIssuer) *UserService {
	u.tokens = t
	return u
}

func (u *UserService) WithPasswordHasher(h PasswordHasher) *UserService {
	u.hasher = h
	return u
}
