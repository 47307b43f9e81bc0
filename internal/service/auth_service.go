package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"pkt.systems/pslog"

	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/pomodoro"
	"focusflow/backend/internal/repository"
)

const (
	minPasswordLength = 6
	tokenIssuer       = "focusflow"
)

var errInvalidCredentials = apperrors.Unauthorized("invalid email or password")

// AuthService registers users, checks passwords and issues HS256 tokens whose
// subject is the user id.
type AuthService struct {
	userRepo     *repository.UserRepository
	pomodoroRepo *repository.PomodoroRepository
	jwtSecret    []byte
	tokenTTL     time.Duration
	defaults     pomodoro.Config
	parser       *jwt.Parser
}

// NewAuthService seeds new accounts with defaults as their pomodoro settings.
func NewAuthService(
	userRepo *repository.UserRepository,
	pomodoroRepo *repository.PomodoroRepository,
	jwtSecret string,
	tokenTTL time.Duration,
	defaults pomodoro.Config,
) *AuthService {
	if defaults.Validate() != nil {
		defaults = pomodoro.DefaultConfig()
	}
	return &AuthService{
		userRepo:     userRepo,
		pomodoroRepo: pomodoroRepo,
		jwtSecret:    []byte(jwtSecret),
		tokenTTL:     tokenTTL,
		defaults:     defaults,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
		),
	}
}

type AuthResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*AuthResult, *apperrors.APIError) {
	email = normalizeEmail(email)
	switch {
	case email == "":
		return nil, apperrors.BadRequest("invalid_email", "email is required")
	case !strings.Contains(email, "@"):
		return nil, apperrors.BadRequest("invalid_email", "email is invalid")
	case len(password) < minPasswordLength:
		return nil, apperrors.BadRequest("invalid_password", "password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("failed to secure password", err)
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, &user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.Conflict("email_exists", "email already registered", nil)
		}
		return nil, apperrors.Internal("failed to create user", err)
	}
	if err := s.pomodoroRepo.CreateInitialState(ctx, user.ID, s.defaults); err != nil {
		return nil, apperrors.Internal("failed to initialize user state", err)
	}
	pslog.Ctx(ctx).Info("user registered", "user_id", user.ID)

	return s.authResult(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, *apperrors.APIError) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.BadRequest("invalid_credentials", "email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, errInvalidCredentials
	case err != nil:
		return nil, apperrors.Internal("failed to query user", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		pslog.Ctx(ctx).Debug("login rejected", "user_id", user.ID)
		return nil, errInvalidCredentials
	}
	return s.authResult(*user)
}

// Me loads the account behind an authenticated user id.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, *apperrors.APIError) {
	user, err := s.userRepo.GetByID(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NotFound("user_not_found", "user not found")
	case err != nil:
		return nil, apperrors.Internal("failed to query user", err)
	}
	user.PasswordHash = ""
	return user, nil
}

// ParseToken verifies a token issued by this service and returns its subject.
func (s *AuthService) ParseToken(tokenString string) (string, *apperrors.APIError) {
	claims := &jwt.RegisteredClaims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", apperrors.Unauthorized("invalid token")
	}
	if claims.Subject == "" {
		return "", apperrors.Unauthorized("invalid token subject")
	}
	return claims.Subject, nil
}

func (s *AuthService) authResult(user model.User) (*AuthResult, *apperrors.APIError) {
	token, apiErr := s.issueToken(user.ID)
	if apiErr != nil {
		return nil, apiErr
	}
	user.PasswordHash = ""
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) issueToken(userID string) (string, *apperrors.APIError) {
	now := time.Now().UTC()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}).SignedString(s.jwtSecret)
	if err != nil {
		return "", apperrors.Internal("failed to sign token", err)
	}
	return signed, nil
}
