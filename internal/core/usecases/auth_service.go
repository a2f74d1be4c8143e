package usecases

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/ports"
	"github.com/samirrijal/geodash/internal/pkg/metrics"
	"github.com/samirrijal/geodash/internal/pkg/password"
)

const sessionTokenBytes = 32 // 256-bit

var validate = validator.New(validator.WithRequiredStructEnabled())

// RegisterInput describes a new account.
type RegisterInput struct {
	Email       string      `json:"email" validate:"required,email,max=254"`
	DisplayName string      `json:"display_name" validate:"required,max=100"`
	Password    string      `json:"password" validate:"required"`
	Role        domain.Role `json:"role"`
}

// AuthOptions tunes session behaviour.
type AuthOptions struct {
	SessionTTL        time.Duration
	AllowRegistration bool
}

// AuthService handles accounts, login and server-side sessions.
type AuthService struct {
	principals ports.PrincipalRepository
	sessions   ports.SessionStore
	hasher     ports.PasswordHasher
	opts       AuthOptions
	now        func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService.
func NewAuthService(principals ports.PrincipalRepository, sessions ports.SessionStore, hasher ports.PasswordHasher, opts AuthOptions) *AuthService {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	return &AuthService{
		principals: principals,
		sessions:   sessions,
		hasher:     hasher,
		opts:       opts,
		now:        time.Now,
	}
}

// RegistrationOpen reports whether anonymous visitors may sign up.
func (s *AuthService) RegistrationOpen() bool { return s.opts.AllowRegistration }

// Register creates an account. actor is nil for self-service sign-up, which
// is only allowed when registration is open and always yields a viewer.
func (s *AuthService) Register(ctx context.Context, actor *domain.Session, in RegisterInput) (*domain.Principal, error) {
	switch {
	case actor == nil && !s.opts.AllowRegistration:
		return nil, fmt.Errorf("registration is closed: %w", domain.ErrForbidden)
	case actor == nil:
		in.Role = domain.RoleViewer
	case actor.Role != domain.RoleAdmin:
		return nil, fmt.Errorf("only admins can create accounts: %w", domain.ErrForbidden)
	case in.Role == "":
		in.Role = domain.RoleViewer
	}

	in.Email = normalizeEmail(in.Email)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%s: %w", describeValidation(err), domain.ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q: %w", in.Role, domain.ErrInvalidInput)
	}
	if err := password.Validate(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	p := &domain.Principal{
		ID:           uuid.NewString(),
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		Role:         in.Role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "principal registered", "principal_id", p.ID, "role", p.Role)
	return p, nil
}

// Login verifies credentials and opens a session. Unknown emails and wrong
// passwords fail identically.
func (s *AuthService) Login(ctx context.Context, email, pw string) (*domain.Session, error) {
	email = normalizeEmail(email)
	if email == "" || pw == "" {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}

	p, err := s.principals.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		// burn a comparable amount of time so response latency does not
		// reveal whether the account exists
		_ = s.hasher.Compare(s.dummy(), pw)
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup principal: %w", err)
	}

	if err := s.hasher.Compare(p.PasswordHash, pw); err != nil {
		metrics.LoginAttempts.WithLabelValues("invalid").Inc()
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	token, err := newSessionToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess := &domain.Session{
		ID:          token,
		PrincipalID: p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        p.Role,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.opts.SessionTTL),
	}
	if err := s.sessions.Save(ctx, sess, s.opts.SessionTTL); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	if err := s.principals.TouchLogin(ctx, p.ID, now); err != nil {
		slog.WarnContext(ctx, "touch last login failed", "principal_id", p.ID, "error", err)
	}

	metrics.LoginAttempts.WithLabelValues("ok").Inc()
	metrics.SessionsCreated.Inc()
	return sess, nil
}

// Logout drops the session. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Authenticate resolves a cookie token to its session, extending the expiry
// once less than half of the TTL remains.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	sess, err := s.sessions.Get(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	now := s.now().UTC()
	if sess.Expired(now) {
		_ = s.sessions.Delete(ctx, token)
		return nil, domain.ErrUnauthorized
	}

	if sess.ExpiresAt.Sub(now) < s.opts.SessionTTL/2 {
		sess.ExpiresAt = now.Add(s.opts.SessionTTL)
		if err := s.sessions.Save(ctx, sess, s.opts.SessionTTL); err != nil {
			slog.WarnContext(ctx, "session refresh failed", "error", err)
		}
	}
	return sess, nil
}

// SaveSession persists changes to session state (e.g. geolocation) for the
// remainder of its lifetime.
func (s *AuthService) SaveSession(ctx context.Context, sess *domain.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return domain.ErrUnauthorized
	}
	if err := s.sessions.Save(ctx, sess, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Me returns the principal behind a session.
func (s *AuthService) Me(ctx context.Context, sess *domain.Session) (*domain.Principal, error) {
	return s.principals.GetByID(ctx, sess.PrincipalID)
}

// ChangePassword replaces the caller's password after re-checking the old one
// and signs out every other session of the principal.
func (s *AuthService) ChangePassword(ctx context.Context, sess *domain.Session, oldPw, newPw string) error {
	p, err := s.principals.GetByID(ctx, sess.PrincipalID)
	if err != nil {
		return err
	}
	if err := s.hasher.Compare(p.PasswordHash, oldPw); err != nil {
		return err
	}
	if err := password.Validate(newPw); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPw)
	if err != nil {
		return err
	}
	if err := s.principals.UpdatePasswordHash(ctx, p.ID, hash); err != nil {
		return err
	}
	revoked, err := s.sessions.DeleteByPrincipal(ctx, p.ID, sess.ID)
	if err != nil {
		return fmt.Errorf("revoke other sessions: %w", err)
	}
	slog.InfoContext(ctx, "password changed", "principal_id", p.ID, "sessions_revoked", revoked)
	return nil
}

// BootstrapAdmin creates the first admin when no principal exists yet.
func (s *AuthService) BootstrapAdmin(ctx context.Context, email, pw string) (bool, error) {
	if email == "" {
		return false, nil
	}
	n, err := s.principals.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count principals: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	admin := &domain.Session{Role: domain.RoleAdmin}
	if _, err := s.Register(ctx, admin, RegisterInput{
		Email:       email,
		DisplayName: "Administrator",
		Password:    pw,
		Role:        domain.RoleAdmin,
	}); err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	return true, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("geodash-timing-equaliser")
	})
	return s.dummyHash
}

func newSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// describeValidation flattens validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
