package services

import (
	"context"
	"database/sql"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/loobric/smooth-core/internal/common"
	"github.com/loobric/smooth-core/internal/logging"
	"github.com/loobric/smooth-core/internal/server/auth"
	"github.com/loobric/smooth-core/internal/server/config"
	"github.com/loobric/smooth-core/internal/server/models"
	"github.com/loobric/smooth-core/internal/server/repositories/repomanager"
)

// UserService handles owner registration and session login. Session tokens
// are short-lived HS256 JWTs minted against the configured secret.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *config.Config
	logger      logging.Logger
}

// NewUserService constructs a UserService.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{db: db, repomanager: m, config: cfg, logger: logger.With("module", "users")}
}

// Register creates a new owner account with a bcrypt-hashed password.
func (s *UserService) Register(ctx context.Context, email, password, role string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, common.ErrValidation
	}
	if role == "" {
		role = models.RoleUser
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, common.ErrInternal
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and mints a session token. Unknown accounts
// and wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrUnauthenticated
		}
		return "", common.ErrInternal
	}
	if !user.IsActive {
		return "", common.ErrUnauthenticated
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", common.ErrUnauthenticated
	}

	token, err := auth.GenerateToken(user.ID, []byte(s.config.SecretKey), s.config.AccessTokenValidityDuration)
	if err != nil {
		return "", common.ErrInternal
	}
	return token, nil
}
