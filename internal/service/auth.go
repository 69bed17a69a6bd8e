package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/aman-churiwal/api-marketplace/internal/config"
	"github.com/aman-churiwal/api-marketplace/internal/models"
	"github.com/aman-churiwal/api-marketplace/internal/repository"
	"github.com/aman-churiwal/api-marketplace/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type AuthService struct {
	db        *storage.Database
	users     *repository.UserRepository
	keys      *APIKeyService
	bans      *BanNormalizer
	billing   config.BillingConfig
	jwtSecret []byte // Stored in env (JWT_SECRET)
	jwtExpiry time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewAuthService(
	db *storage.Database,
	users *repository.UserRepository,
	keys *APIKeyService,
	bans *BanNormalizer,
	billing config.BillingConfig,
	jwtCfg config.JWTConfig,
	now func() time.Time,
	logger zerolog.Logger,
) *AuthService {
	return &AuthService{
		db:        db,
		users:     users,
		keys:      keys,
		bans:      bans,
		billing:   billing,
		jwtSecret: []byte(jwtCfg.Secret),
		jwtExpiry: time.Duration(jwtCfg.ExpiryHours) * time.Hour,
		now:       now,
		logger:    logger,
	}
}

// Registration is a new account plus its default key secret, shown once.
type Registration struct {
	User   *models.User
	APIKey *models.APIKey
	Secret string
}

// Register creates a FREE user with one default ACTIVE key.
func (s *AuthService) Register(ctx context.Context, email, password, name string) (*Registration, error) {
	return s.register(ctx, email, password, name, models.RoleUser)
}

func (s *AuthService) register(ctx context.Context, email, password, name string, role models.Role) (*Registration, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidInput.WithMessage("email is not valid")
	}
	if len(password) < minPasswordLength {
		return nil, ErrInvalidInput.WithMessage("password must be at least 8 characters")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	reg := &Registration{
		User: &models.User{
			Email:        email,
			PasswordHash: string(hashedPassword),
			Name:         strings.TrimSpace(name),
			Plan:         models.PlanFree,
			Role:         role,
		},
	}

	err = s.db.Transaction(ctx, func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)

		existingUser, err := users.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existingUser != nil {
			return ErrEmailTaken
		}

		if err := users.Create(ctx, reg.User); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrEmailTaken
			}
			return err
		}

		reg.Secret, reg.APIKey, err = s.keys.CreateTx(ctx, tx, reg.User.ID, "default", s.billing.DailyLimitFor(models.PlanFree))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", reg.User.ID.String()).Msg("user registered")
	return reg, nil
}

// Authenticates a user and returns a JWT token. Blocked accounts are refused
// after their ban state is normalized.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	ban, err := s.bans.Normalize(ctx, user)
	if err != nil {
		return "", nil, err
	}
	if ban.IsBlocked {
		return "", nil, ErrAccountBlocked.WithMessage(ban.Message())
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": user.ID.String(),
		"email":   user.Email,
		"role":    string(user.Role),
		"exp":     now.Add(s.jwtExpiry).Unix(),
		"iat":     now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return tokenString, user, nil
}

// Validates a JWT token and return the claims
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verifying signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

// SessionUser loads the user behind a session and re-checks the ban state.
func (s *AuthService) SessionUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	ban, err := s.bans.Normalize(ctx, user)
	if err != nil {
		return nil, err
	}
	if ban.IsBlocked {
		return nil, ErrAccountBlocked.WithMessage(ban.Message())
	}

	return user, nil
}

// EnsureAdmin seeds or promotes the bootstrap SUPERADMIN.
func (s *AuthService) EnsureAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	existing, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Role == models.RoleSuperAdmin {
			return nil
		}
		s.logger.Info().Str("user_id", existing.ID.String()).Msg("promoting bootstrap admin")
		return s.users.SetRole(ctx, existing.ID, models.RoleSuperAdmin)
	}

	reg, err := s.register(ctx, email, password, "Administrator", models.RoleSuperAdmin)
	if err != nil {
		return err
	}
	s.logger.Info().Str("user_id", reg.User.ID.String()).Msg("bootstrap admin created")

	return nil
}
