package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/somaprep/somaprep-backend/internal/config"
	"github.com/somaprep/somaprep-backend/internal/dto"
	"github.com/somaprep/somaprep-backend/internal/models"
	"github.com/somaprep/somaprep-backend/internal/store"
	"github.com/somaprep/somaprep-backend/internal/telegram"
)

var (
	ErrInvalidLogin = errors.New("invalid telegram login payload")
	ErrInvalidToken = errors.New("invalid or expired refresh token")
)

// AuthService issues dashboard sessions. Identity comes from the Telegram
// login widget; there are no passwords.
type AuthService struct {
	db  *gorm.DB
	ent store.EntitlementStore
	cfg *config.Config
}

func NewAuthService(db *gorm.DB, ent store.EntitlementStore, cfg *config.Config) *AuthService {
	return &AuthService{db: db, ent: ent, cfg: cfg}
}

// TelegramLogin verifies a login-widget payload and returns a token pair.
// The entitlement record is created on first login if the user never
// talked to the bot.
func (s *AuthService) TelegramLogin(ctx context.Context, payload telegram.LoginPayload) (*dto.AuthResponse, error) {
	if err := telegram.VerifyLogin(payload, s.cfg.BotToken, s.cfg.LoginMaxAge, time.Now()); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLogin, err)
	}

	if err := s.ent.EnsureUser(ctx, payload.ID); err != nil {
		return nil, err
	}
	if err := s.ent.UpdateProfile(ctx, payload.ID, payload.FirstName, payload.Username); err != nil {
		return nil, err
	}
	user, err := s.ent.GetUser(ctx, payload.ID)
	if err != nil {
		return nil, err
	}

	return s.generateTokenPair(user)
}

func (s *AuthService) Refresh(ctx context.Context, req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	tokenHash := hashToken(req.RefreshToken)

	var stored models.RefreshToken
	if err := s.db.WithContext(ctx).Where("token_hash = ? AND revoked = false", tokenHash).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	if time.Now().After(stored.ExpiresAt) {
		s.db.Model(&stored).Update("revoked", true)
		return nil, ErrInvalidToken
	}

	// Rotation: the presented token is spent either way.
	s.db.Model(&stored).Update("revoked", true)

	user, err := s.ent.GetUser(ctx, stored.TelegramID)
	if err != nil {
		return nil, fmt.Errorf("user not found for refresh token: %w", err)
	}

	return s.generateTokenPair(user)
}

func (s *AuthService) Logout(ctx context.Context, req *dto.LogoutRequest) error {
	tokenHash := hashToken(req.RefreshToken)
	return s.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (s *AuthService) generateTokenPair(user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User: dto.UserResponse{
			TelegramID: user.TelegramID,
			FirstName:  user.FirstName,
			Username:   user.Username,
		},
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub": user.TelegramID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)

	record := models.RefreshToken{
		ID:         uuid.New(),
		TelegramID: user.TelegramID,
		TokenHash:  hashToken(rawToken),
		ExpiresAt:  time.Now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
