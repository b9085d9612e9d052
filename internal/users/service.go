// Package users owns accounts, delivery contacts and login.
package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgAuth "github.com/angelmondragon/shopfeed-backend/pkg/auth"
	"github.com/angelmondragon/shopfeed-backend/pkg/auth/session"
	"github.com/angelmondragon/shopfeed-backend/pkg/config"
	"github.com/angelmondragon/shopfeed-backend/pkg/db"
	"github.com/angelmondragon/shopfeed-backend/pkg/db/models"
	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopfeed-backend/pkg/errors"
	"github.com/angelmondragon/shopfeed-backend/pkg/logger"
	redisclient "github.com/angelmondragon/shopfeed-backend/pkg/redis"
	"github.com/angelmondragon/shopfeed-backend/pkg/security"
	"gorm.io/gorm"
)

const (
	tokenBytes             = 24
	invalidCredentials     = "could not authenticate with the given credentials"
	wrongConfirmation      = "wrong token or email"
	wrongResetToken        = "reset token is invalid or expired"
	duplicateEmailMessage  = "a user with this email already exists"
	contactNotFoundMessage = "contact not found"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier delivers user-facing notifications once a change has committed.
type Notifier interface {
	Notify(ctx context.Context, kind enums.NotificationKind, recipientID int64, payload any) error
}

type sessionCreator interface {
	Create(ctx context.Context, accessID string, userID int64) error
}

// ResetStore keeps one-shot password reset tokens.
type ResetStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	GetDel(ctx context.Context, key string) (string, error)
	PasswordResetKey(token string) string
}

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	Token string `json:"Token"`
}

// Service defines account, login and contact operations.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*UserDTO, error)
	ConfirmEmail(ctx context.Context, email, token string) error
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	GetDetails(ctx context.Context, userID int64) (*UserDTO, error)
	UpdateDetails(ctx context.Context, userID int64, input UpdateDetailsInput) (*UserDTO, error)

	ListContacts(ctx context.Context, userID int64) ([]ContactDTO, error)
	CreateContact(ctx context.Context, userID int64, input ContactInput) (*ContactDTO, error)
	UpdateContact(ctx context.Context, userID int64, input ContactUpdateInput) (*ContactDTO, error)
	DeleteContacts(ctx context.Context, userID int64, ids []int64) (int64, error)

	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

// ServiceParams wires the users service.
type ServiceParams struct {
	DB             txRunner
	Repository     Repository
	Sessions       sessionCreator
	Resets         ResetStore
	Notifier       Notifier
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	TokensConfig   config.TokensConfig
	Logger         *logger.Logger
	Clock          func() time.Time
}

type service struct {
	tx       txRunner
	repo     Repository
	sessions sessionCreator
	resets   ResetStore
	notifier Notifier
	jwtCfg   config.JWTConfig
	pwdCfg   config.PasswordConfig
	tokens   config.TokensConfig
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds a users service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager required")
	}
	if params.Resets == nil {
		return nil, fmt.Errorf("reset token store required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		tx:       params.DB,
		repo:     params.Repository,
		sessions: params.Sessions,
		resets:   params.Resets,
		notifier: params.Notifier,
		jwtCfg:   params.JWTConfig,
		pwdCfg:   params.PasswordConfig,
		tokens:   params.TokensConfig,
		logg:     params.Logger,
		now:      clock,
	}, nil
}

// Register creates an inactive account and mails a confirmation token.
func (s *service) Register(ctx context.Context, input RegisterInput) (*UserDTO, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	userType := enums.UserTypeBuyer
	if input.Type != "" {
		parsed, err := enums.ParseUserType(input.Type)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user type")
		}
		userType = parsed
	}

	hash, err := security.HashPassword(input.Password, s.pwdCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}
	token, err := security.GenerateToken(tokenBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate confirmation token")
	}

	var user *models.User
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, duplicateEmailMessage)
		}
		user, err = repo.Create(ctx, CreateUserDTO{
			Email:        email,
			PasswordHash: hash,
			FirstName:    strings.TrimSpace(input.FirstName),
			LastName:     strings.TrimSpace(input.LastName),
			Company:      strings.TrimSpace(input.Company),
			Position:     strings.TrimSpace(input.Position),
			Type:         userType,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, duplicateEmailMessage)
			}
			return err
		}
		return repo.CreateConfirmationToken(ctx, user.ID, token)
	})
	if err != nil {
		return nil, wrapDependency(err, "register user")
	}

	s.notify(ctx, enums.NotificationKindRegistrationConfirm, user.ID, map[string]any{"token": token})
	return FromModel(user), nil
}

// ConfirmEmail activates the account owning the token and drops its tokens.
func (s *service) ConfirmEmail(ctx context.Context, email, token string) error {
	email = NormalizeEmail(email)
	token = strings.TrimSpace(token)
	if email == "" || token == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email and token are required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindConfirmationToken(ctx, email, token)
		if err != nil {
			return err
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, wrongConfirmation)
		}
		if ttl := s.tokens.ConfirmationTTL; ttl > 0 && found.CreatedAt.Before(s.now().Add(-ttl)) {
			return pkgerrors.New(pkgerrors.CodeValidation, wrongConfirmation)
		}
		if err := repo.Activate(ctx, found.UserID); err != nil {
			return err
		}
		return repo.DeleteConfirmationTokens(ctx, found.UserID)
	})
	return wrapDependency(err, "confirm email")
}

// Login checks the credentials of an active user, mints a JWT and records its session.
func (s *service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if user == nil || !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, invalidCredentials)
	}
	valid, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, invalidCredentials)
	}
	s.upgradeHash(ctx, user, password)

	accessID := session.NewAccessID()
	token, err := pkgAuth.MintAccessToken(s.jwtCfg, s.now().UTC(), pkgAuth.AccessTokenPayload{
		UserID:   user.ID,
		UserType: user.Type,
		JTI:      accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	if err := s.sessions.Create(ctx, accessID, user.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store session")
	}

	s.logg.Info(s.logg.WithUser(ctx, user.ID, user.Type.String()), "user.login")
	return &LoginResult{Token: token}, nil
}

// upgradeHash re-hashes the password after a successful login when the
// configured argon2 costs changed. Failures only cost a log line.
func (s *service) upgradeHash(ctx context.Context, user *models.User, password string) {
	if !security.NeedsRehash(user.PasswordHash, s.pwdCfg) {
		return
	}
	hash, err := security.HashPassword(password, s.pwdCfg)
	if err == nil {
		user.PasswordHash = hash
		err = s.repo.Save(ctx, user)
	}
	if err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, pkgerrors.LogFields(err)), "user.rehash_failed")
	}
}

func (s *service) GetDetails(ctx context.Context, userID int64) (*UserDTO, error) {
	user, err := s.repo.FindWithContacts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return FromModel(user), nil
}

// UpdateDetails applies the non-nil fields; a new password is rehashed.
func (s *service) UpdateDetails(ctx context.Context, userID int64, input UpdateDetailsInput) (*UserDTO, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}

		if input.Email != nil {
			email := NormalizeEmail(*input.Email)
			if email != user.Email {
				other, err := repo.FindByEmail(ctx, email)
				if err != nil {
					return err
				}
				if other != nil {
					return pkgerrors.New(pkgerrors.CodeConflict, duplicateEmailMessage)
				}
				user.Email = email
			}
		}
		if input.Password != nil {
			hash, err := security.HashPassword(*input.Password, s.pwdCfg)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
			}
			user.PasswordHash = hash
		}
		applyString(&user.FirstName, input.FirstName)
		applyString(&user.LastName, input.LastName)
		applyString(&user.Company, input.Company)
		applyString(&user.Position, input.Position)

		if err := repo.Save(ctx, user); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, duplicateEmailMessage)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, wrapDependency(err, "update user")
	}
	return s.GetDetails(ctx, userID)
}

func (s *service) ListContacts(ctx context.Context, userID int64) ([]ContactDTO, error) {
	contacts, err := s.repo.ListContacts(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list contacts")
	}
	out := make([]ContactDTO, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, ToContactDTO(c))
	}
	return out, nil
}

func (s *service) CreateContact(ctx context.Context, userID int64, input ContactInput) (*ContactDTO, error) {
	contact := &models.Contact{
		UserID:    userID,
		City:      strings.TrimSpace(input.City),
		Street:    strings.TrimSpace(input.Street),
		House:     strings.TrimSpace(input.House),
		Structure: strings.TrimSpace(input.Structure),
		Building:  strings.TrimSpace(input.Building),
		Apartment: strings.TrimSpace(input.Apartment),
		Phone:     strings.TrimSpace(input.Phone),
	}
	if err := s.repo.CreateContact(ctx, contact); err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeReference, err, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create contact")
	}
	dto := ToContactDTO(*contact)
	return &dto, nil
}

// UpdateContact changes a contact owned by userID; foreign ids read as missing.
func (s *service) UpdateContact(ctx context.Context, userID int64, input ContactUpdateInput) (*ContactDTO, error) {
	if input.ID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contact id is required")
	}
	var contact *models.Contact
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		contact, err = repo.FindContact(ctx, input.ID, userID)
		if err != nil {
			return err
		}
		if contact == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, contactNotFoundMessage)
		}
		applyString(&contact.City, input.City)
		applyString(&contact.Street, input.Street)
		applyString(&contact.House, input.House)
		applyString(&contact.Structure, input.Structure)
		applyString(&contact.Building, input.Building)
		applyString(&contact.Apartment, input.Apartment)
		applyString(&contact.Phone, input.Phone)
		return repo.SaveContact(ctx, contact)
	})
	if err != nil {
		return nil, wrapDependency(err, "update contact")
	}
	dto := ToContactDTO(*contact)
	return &dto, nil
}

// DeleteContacts removes the caller's contacts among ids and returns the count removed.
func (s *service) DeleteContacts(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	for _, id := range ids {
		if id <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "contact ids must be positive integers")
		}
	}
	deleted, err := s.repo.DeleteContacts(ctx, userID, ids)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete contacts")
	}
	return deleted, nil
}

// RequestPasswordReset mails a reset token to active accounts. Unknown
// addresses succeed silently so the endpoint does not reveal who is registered.
func (s *service) RequestPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if user == nil || !user.IsActive {
		return nil
	}

	token, err := security.GenerateToken(tokenBytes)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate reset token")
	}
	if err := s.resets.Set(ctx, s.resets.PasswordResetKey(token), strconv.FormatInt(user.ID, 10), s.tokens.PasswordResetTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store reset token")
	}
	s.notify(ctx, enums.NotificationKindPasswordReset, user.ID, map[string]any{"token": token})
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *service) ResetPassword(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" || password == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "token and password are required")
	}
	raw, err := s.resets.GetDel(ctx, s.resets.PasswordResetKey(token))
	if errors.Is(err, redisclient.ErrNil) {
		return pkgerrors.New(pkgerrors.CodeValidation, wrongResetToken)
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read reset token")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, wrongResetToken)
	}

	hash, err := security.HashPassword(password, s.pwdCfg)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid password")
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, wrongResetToken)
		}
		user.PasswordHash = hash
		return repo.Save(ctx, user)
	})
	return wrapDependency(err, "reset password")
}

func (s *service) notify(ctx context.Context, kind enums.NotificationKind, userID int64, payload any) {
	if err := s.notifier.Notify(ctx, kind, userID, payload); err != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"notification_kind": kind, "user_id": userID})
		s.logg.Error(ctx, "users.notify_failed", err)
	}
}

func applyString(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func wrapDependency(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
