package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"labelguard/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

// Domain errors for auth flows.
var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserNotFound    = errors.New("supervisor not found")
	ErrInvalidToken    = errors.New("invalid token")
)

// AuthConfig configures token issuing.
type AuthConfig struct {
	SigningKey string
	TokenTTL   time.Duration
}

// AuthService handles supervisor sign-up and token issuing.
type AuthService struct {
	authRepo repository.Authorization
	key      []byte
	ttl      time.Duration
}

func NewAuthService(repo repository.Authorization, cfg AuthConfig) *AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	return &AuthService{authRepo: repo, key: []byte(cfg.SigningKey), ttl: cfg.TokenTTL}
}

// SignUp hashes password and creates a new supervisor
func (s *AuthService) SignUp(username, password string) (int, error) {
	if s.authRepo == nil {
		return 0, ErrUnavailable
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, errors.New("username is empty")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return 0, fmt.Errorf("invalid password: %w", err)
	}
	return s.authRepo.Create(username, hash)
}

// OpenSignUp reports whether sign-up is open to anyone, which is only the
// case until the first supervisor exists.
func (s *AuthService) OpenSignUp() (bool, error) {
	if s.authRepo == nil {
		return false, ErrUnavailable
	}
	n, err := s.authRepo.Count()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Claims defines JWT claims
type Claims struct {
	jwt.RegisteredClaims
	SupervisorID int `json:"supervisor_id"`
}

// GenerateToken validates credentials and returns JWT
func (s *AuthService) GenerateToken(username, password string) (string, error) {
	if s.authRepo == nil {
		return "", ErrUnavailable
	}
	u, err := s.authRepo.GetByUsername(strings.TrimSpace(username))
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrUserNotFound
	}

	if err := verifyPassword(u.PasswordHash, password); err != nil {
		return "", ErrInvalidPassword
	}

	return s.issueToken(u.ID)
}

// ParseToken parses JWT and returns the supervisor id
func (s *AuthService) ParseToken(accessToken string) (int, error) {
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return 0, ErrInvalidToken
	}

	return claims.SupervisorID, nil
}

// helper: hash password safely
func hashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// helper: verify password against hash
func verifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func (s *AuthService) issueToken(supervisorID int) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		SupervisorID: supervisorID,
	})
	return token.SignedString(s.key)
}
