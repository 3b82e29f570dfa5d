package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/avenika/study-helper/internal/models"
	"github.com/avenika/study-helper/internal/storage"
)

// DefaultTokenTTL is how long access tokens live unless configured otherwise.
const DefaultTokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// Credentials is what a successful sign-in hands to the transport layer: a
// short-lived JWT plus the opaque refresh token stored on the user row.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Service implements registration, password and Google sign-in, token refresh
// and bearer-token authentication.
type Service struct {
	store    storage.UserStorage
	verifier GoogleVerifier
	secret   []byte
	tokenTTL time.Duration
	logger   *zap.Logger
}

func NewService(store storage.UserStorage, verifier GoogleVerifier, secret string, tokenTTL time.Duration, logger *zap.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		store:    store,
		verifier: verifier,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Register creates a password account and signs the new user in.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, *Credentials, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		RefreshToken: uuid.NewString(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, nil, err
	}
	creds, err := s.credentials(user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, creds, nil
}

// Login verifies a password sign-in and rotates the refresh token.
func (s *Service) Login(ctx context.Context, email, password string) (*models.User, *Credentials, error) {
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	// Google-only accounts carry no password hash.
	if user.PasswordHash == "" {
		return nil, nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}
	return s.signIn(ctx, user)
}

// GoogleLogin verifies a Google ID token and signs its user in, creating the
// account on first sight. A Google identity arriving for an email that already
// has a password account attaches to that account.
func (s *Service) GoogleLogin(ctx context.Context, idToken string) (*models.User, *Credentials, error) {
	ident, err := s.verifier.Verify(ctx, idToken)
	if err != nil {
		s.logger.Warn("google token rejected", zap.Error(err))
		return nil, nil, ErrInvalidToken
	}

	user, err := s.store.UserByGoogleID(ctx, ident.GoogleID)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotFound):
		if user, err = s.attachOrCreate(ctx, ident); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, err
	}
	return s.signIn(ctx, user)
}

func (s *Service) attachOrCreate(ctx context.Context, ident *GoogleIdentity) (*models.User, error) {
	user, err := s.store.UserByEmail(ctx, ident.Email)
	if err == nil {
		user.GoogleID = ident.GoogleID
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("attach google id: %w", err)
		}
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	user = &models.User{Email: ident.Email, GoogleID: ident.GoogleID}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.logger.Info("user created via google sign-in", zap.Int64("user_id", user.ID))
	return user, nil
}

// signIn rotates the refresh token and issues fresh credentials.
func (s *Service) signIn(ctx context.Context, user *models.User) (*models.User, *Credentials, error) {
	user.RefreshToken = uuid.NewString()
	user.LastActive = time.Now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	creds, err := s.credentials(user)
	if err != nil {
		return nil, nil, err
	}
	return user, creds, nil
}

// Refresh exchanges a stored refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrInvalidToken
	}
	user, err := s.store.UserByRefreshToken(ctx, refreshToken)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return s.IssueToken(user.ID)
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.ParseToken(token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	return user, err
}

// IssueToken signs a JWT whose subject is the user id.
func (s *Service) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ParseToken validates a JWT and returns the user id it carries.
func (s *Service) ParseToken(raw string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) credentials(user *models.User) (*Credentials, error) {
	access, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	return &Credentials{AccessToken: access, RefreshToken: user.RefreshToken}, nil
}
