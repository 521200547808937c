package auth

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned when login fails.
var ErrBadCredentials = errors.New("invalid username or password")

// Service authenticates the config-seeded admin user and issues tokens.
// The dashboard is single-operator; multi-tenant user management lives in
// the outer platform, not here.
type Service struct {
	jwt          *JWTManager
	username     string
	passwordHash string
}

// Config holds auth configuration.
type Config struct {
	Secret        string
	TokenDuration time.Duration
	AdminUser     string
	AdminPassword string
}

// NewService creates the auth service, hashing the configured admin
// password at startup.
func NewService(cfg Config) (*Service, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	duration := cfg.TokenDuration
	if duration <= 0 {
		duration = 24 * time.Hour
	}
	return &Service{
		jwt:          NewJWTManager(cfg.Secret, duration),
		username:     cfg.AdminUser,
		passwordHash: string(hash),
	}, nil
}

// Login verifies credentials and returns a signed access token.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username {
		return "", ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return "", ErrBadCredentials
	}
	return s.jwt.GenerateAccessToken(UserClaims{UserID: username, IsAdmin: true})
}

// JWT exposes the token manager for the API middleware.
func (s *Service) JWT() *JWTManager {
	return s.jwt
}
