package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/neftie/neftie/backend/internal/apperr"
	"github.com/neftie/neftie/backend/internal/metrics"
	"github.com/neftie/neftie/backend/internal/models"
	"github.com/neftie/neftie/backend/internal/store"
)

// Payload is returned by every operation that issues a token.
type Payload struct {
	Token string
	User  *models.User
}

// Service implements registration, login and the account operations.
type Service struct {
	users    UserStore
	creds    *CredentialStore
	hasher   PasswordHasher
	tokens   *TokenIssuer
	limiter  LoginLimiter
	validate *validator.Validate
	log      *slog.Logger
}

// maxHandleSuffix bounds the numbered variants tried for a derived username.
const maxHandleSuffix = 99

// handlePattern keeps usernames usable as a single path segment.
var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func NewService(users UserStore, hasher PasswordHasher, tokens *TokenIssuer, limiter LoginLimiter, log *slog.Logger) *Service {
	if limiter == nil {
		limiter = NopLimiter{}
	}
	v := validator.New()
	_ = v.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	})
	return &Service{
		users:    users,
		creds:    NewCredentialStore(users, hasher),
		hasher:   hasher,
		tokens:   tokens,
		limiter:  limiter,
		validate: v,
		log:      log,
	}
}

// Register creates a user and signs it in.
func (s *Service) Register(ctx context.Context, in models.RegisterInput) (*Payload, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)

	if err := s.validate.Struct(in); err != nil {
		return nil, badInput(err)
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	username := in.Username
	if username == "" {
		base := deriveHandle(in.FirstName, in.LastName)
		if base == "" {
			return nil, apperr.ErrBadUserInput.WithMessage("username or first and last name are required")
		}
		var err error
		if username, err = s.freeHandle(ctx, base); err != nil {
			return nil, err
		}
	}

	u := &models.User{
		Username:  username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	}
	u.SetPassword(in.Password)

	if err := s.creds.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.ErrDuplicateIdentity.WithCause(err)
		}
		if errors.Is(err, ErrPasswordTooLong) {
			return nil, apperr.ErrBadUserInput.WithMessage("password is too long")
		}
		return nil, fmt.Errorf("register %s: %w", username, err)
	}

	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "username", u.Username)
	return s.signIn(u)
}

// Login verifies credentials and issues a token.
func (s *Service) Login(ctx context.Context, in models.LoginInput) (*Payload, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, badInput(err)
	}

	allowed, err := s.limiter.Allow(ctx, in.Email)
	if err != nil {
		s.log.WarnContext(ctx, "login limiter unavailable", "error", err)
	}
	if !allowed {
		metrics.LoginFailures.WithLabelValues("throttled").Inc()
		return nil, apperr.ErrTooManyAttempts
	}

	u, err := s.users.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		metrics.LoginFailures.WithLabelValues("unknown_identity").Inc()
		return nil, apperr.ErrUnknownIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("login lookup: %w", err)
	}

	if !s.hasher.Verify(in.Password, u.Password) {
		metrics.LoginFailures.WithLabelValues("invalid_credentials").Inc()
		s.log.InfoContext(ctx, "login rejected", "user_id", u.ID)
		return nil, apperr.ErrInvalidCredentials
	}

	if err := s.limiter.Reset(ctx, in.Email); err != nil {
		s.log.WarnContext(ctx, "login limiter reset failed", "error", err)
	}
	return s.signIn(u)
}

// Me returns the record of the authenticated caller.
func (s *Service) Me(ctx context.Context, id Identity) (*models.User, error) {
	u, err := s.users.GetUserByID(ctx, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		// The token outlived its account; tokens are not revoked.
		return nil, apperr.ErrNotAuthenticated.WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("me: %w", err)
	}
	return u, nil
}

// ChangePassword replaces the caller's password and issues a fresh token.
// Tokens issued earlier stay valid until they expire.
func (s *Service) ChangePassword(ctx context.Context, id Identity, current, next string) (*Payload, error) {
	if next == "" {
		return nil, apperr.ErrBadUserInput.WithMessage("new password is required")
	}
	if err := checkPassword(next); err != nil {
		return nil, err
	}
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(current, u.Password) {
		return nil, apperr.ErrInvalidCredentials
	}
	u.SetPassword(next)
	if err := s.creds.Save(ctx, u); err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			return nil, apperr.ErrBadUserInput.WithMessage("password is too long")
		}
		return nil, fmt.Errorf("change password: %w", err)
	}
	s.log.InfoContext(ctx, "password changed", "user_id", u.ID)
	return s.signIn(u)
}

// UpdateProfile sets the caller's display name. Nil arguments are left as is.
func (s *Service) UpdateProfile(ctx context.Context, id Identity, firstName, lastName *string) (*models.User, error) {
	u, err := s.Me(ctx, id)
	if err != nil {
		return nil, err
	}
	if firstName != nil {
		u.FirstName = strings.TrimSpace(*firstName)
	}
	if lastName != nil {
		u.LastName = strings.TrimSpace(*lastName)
	}
	if err := s.creds.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return u, nil
}

func (s *Service) Users(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

// User returns nil without error when no user has the username.
func (s *Service) User(ctx context.Context, username string) (*models.User, error) {
	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return u, err
}

func (s *Service) signIn(u *models.User) (*Payload, error) {
	token, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssued.Inc()
	return &Payload{Token: token, User: u}, nil
}

// freeHandle returns base, or base with the lowest numeric suffix from 2
// that no account holds yet.
func (s *Service) freeHandle(ctx context.Context, base string) (string, error) {
	if len(base) > 48 {
		base = base[:48]
	}
	for n := 1; n <= maxHandleSuffix; n++ {
		candidate := base
		if n > 1 {
			candidate += strconv.Itoa(n)
		}
		_, err := s.users.GetUserByUsername(ctx, candidate)
		if errors.Is(err, store.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("username lookup: %w", err)
		}
	}
	return "", apperr.ErrDuplicateIdentity.WithMessage("username " + base + " is taken, choose one")
}

// checkPassword enforces bcrypt's byte limit, which validator's rune-based
// max cannot express.
func checkPassword(pw string) error {
	if len(pw) > MaxPasswordBytes {
		return apperr.ErrBadUserInput.WithMessage("password is too long")
	}
	return nil
}

// deriveHandle builds a username from a display name: lowercase letters
// and digits only.
func deriveHandle(first, last string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(first + last) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func badInput(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.ErrBadUserInput.WithCause(err)
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "Email" && fe.Tag() == "email":
		return apperr.ErrBadUserInput.WithMessage("Must match an email address!")
	case fe.Tag() == "required" || fe.Tag() == "required_without":
		return apperr.ErrBadUserInput.WithMessage(strings.ToLower(fe.Field()) + " is required")
	case fe.Tag() == "max":
		return apperr.ErrBadUserInput.WithMessage(strings.ToLower(fe.Field()) + " is too long")
	case fe.Tag() == "handle":
		return apperr.ErrBadUserInput.WithMessage("username may only contain letters, digits, _ and -")
	default:
		return apperr.ErrBadUserInput.WithMessage("invalid " + strings.ToLower(fe.Field()))
	}
}
