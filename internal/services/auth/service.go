package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/lazysignup-go/internal/dependencies/clock"
	"github.com/mcoot/lazysignup-go/internal/model"
	"github.com/mcoot/lazysignup-go/internal/storage"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

// Session represents an authenticated session.
// Sessions hold only the user ID; the user is re-read on each request so a
// conversion is visible immediately.
type Session struct {
	Token     string
	UserID    model.UserID
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Service handles registration, login and session management
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	sessionDuration time.Duration
	bcryptCost      int
}

// Config holds configuration for the auth service
type Config struct {
	SessionDuration time.Duration
	BcryptCost      int
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		SessionDuration: 24 * time.Hour,
		BcryptCost:      bcrypt.DefaultCost,
	}
}

// New creates a new auth Service
func New(storage storage.Storage, clock clock.Clock, cfg Config, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = defaults.SessionDuration
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = defaults.BcryptCost
	}
	return &Service{
		storage:         storage,
		clock:           clock,
		logger:          logger,
		sessions:        make(map[string]*Session),
		sessionDuration: cfg.SessionDuration,
		bcryptCost:      cfg.BcryptCost,
	}
}

// Register creates a real user account directly, without a lazy phase,
// and starts a session for it
func (s *Service) Register(ctx context.Context, in SignupInput) (*Session, *model.User, error) {
	if err := in.Validate(); err != nil {
		return nil, nil, err
	}

	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	user := &model.User{
		ID:           model.NewUserID(),
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		DisplayName:  in.Username,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", string(user.ID)))
	return s.CreateSession(user.ID), user, nil
}

// Login authenticates a user with a password and creates a session.
// Lazy users have no password and can never log in.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, *model.User, error) {
	user, err := s.storage.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	if !user.HasPassword() {
		return nil, nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	return s.CreateSession(user.ID), user, nil
}

// NewSignup validates in and binds the result to userID. The password is
// hashed here so Apply cannot fail on it inside the conversion transaction.
func (s *Service) NewSignup(userID model.UserID, in SignupInput) (*Signup, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	return &Signup{
		userID:       userID,
		username:     in.Username,
		email:        in.Email,
		passwordHash: hash,
	}, nil
}

// DeleteUser removes a user and any lazy marker it has, and drops its sessions
func (s *Service) DeleteUser(ctx context.Context, id model.UserID) error {
	if _, err := s.storage.GetUser(ctx, id); err != nil {
		return err
	}
	if err := s.storage.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.DropSessions(id)

	s.logger.Info("user deleted", slog.String("user_id", string(id)))
	return nil
}

// DropSessions removes every session of a user and returns how many there were
func (s *Service) DropSessions(id model.UserID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if session.UserID == id {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// CreateSession starts a new session for a user
func (s *Service) CreateSession(userID model.UserID) *Session {
	now := s.clock.Now()
	session := &Session{
		Token:     generateToken("sess_"),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionDuration),
	}

	s.mu.Lock()
	s.sessions[session.Token] = session
	s.mu.Unlock()

	return session
}

// ValidateSession checks if a session token is valid and returns the session
func (s *Service) ValidateSession(token string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[token]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInvalidSession
	}

	if s.clock.Now().After(session.ExpiresAt) {
		s.mu.Lock()
		delete(s.sessions, token)
		s.mu.Unlock()
		return nil, ErrInvalidSession
	}

	return session, nil
}

// InvalidateSession removes a session
func (s *Service) InvalidateSession(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// CurrentUser returns the session and user behind a session token
func (s *Service) CurrentUser(ctx context.Context, token string) (*Session, *model.User, error) {
	session, err := s.ValidateSession(token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.storage.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			s.InvalidateSession(token)
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, err
	}
	return session, user, nil
}

// CleanExpiredSessions removes expired sessions (call periodically)
func (s *Service) CleanExpiredSessions() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// generateToken generates a random token with a prefix
func generateToken(prefix string) string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return prefix + base64.RawURLEncoding.EncodeToString(b)
}
