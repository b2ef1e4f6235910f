package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/phishguard/aegis/core"
	"github.com/phishguard/aegis/ports"
)

var (
	// ErrInvalidEmail is returned when the email format is invalid.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidUsername is returned when the username is too short.
	ErrInvalidUsername = errors.New("username must be at least 3 characters")
	// ErrWeakPassword is returned when the password is too weak.
	ErrWeakPassword = errors.New("password must be at least 8 characters")
	// ErrPasswordTooLong is returned when the password exceeds bcrypt's 72-byte limit.
	ErrPasswordTooLong = errors.New("password must be at most 72 characters")
)

// dummyHash keeps login timing comparable when the email is unknown.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("aegis-no-such-user"), bcrypt.DefaultCost)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Config holds the session lifetimes the coordinator works with. The refresh
// TTL must match the tokenizer's so the stored fingerprint expires with the
// token it pins.
type Config struct {
	RefreshTokenTTL time.Duration
	VerifyTokenTTL  time.Duration
	ResetTokenTTL   time.Duration
}

// AuthService orchestrates the session and credential lifecycle: login,
// logout, refresh, password change, forgot/reset, and email verification,
// each as an atomic operation over the credential store and tokenizer.
type AuthService struct {
	store     ports.CredentialStore
	tokenizer ports.Tokenizer
	mail      ports.EventPublisher
	logger    *slog.Logger

	refreshTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration
}

// NewAuthService creates a new authentication service.
func NewAuthService(store ports.CredentialStore, tokenizer ports.Tokenizer, mail ports.EventPublisher, logger *slog.Logger, cfg Config) *AuthService {
	if cfg.RefreshTokenTTL == 0 {
		cfg.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if cfg.VerifyTokenTTL == 0 {
		cfg.VerifyTokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL == 0 {
		cfg.ResetTokenTTL = time.Hour
	}

	return &AuthService{
		store:      store,
		tokenizer:  tokenizer,
		mail:       mail,
		logger:     logger,
		refreshTTL: cfg.RefreshTokenTTL,
		verifyTTL:  cfg.VerifyTokenTTL,
		resetTTL:   cfg.ResetTokenTTL,
	}
}

// Register creates an unverified user and sends out a verification token.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (core.User, error) {
	if len(username) < 3 {
		return core.User{}, ErrInvalidUsername
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return core.User{}, ErrInvalidEmail
	}
	if err := validatePassword(password); err != nil {
		return core.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return core.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := core.User{
		ID:        uuid.New().String(),
		Username:  username,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.CreateUser(ctx, user, string(hash)); err != nil {
		return core.User{}, err
	}

	s.sendVerification(ctx, user)

	return user, nil
}

// Login verifies the credentials and mints a fresh token pair. Installing the
// new refresh fingerprint revokes every previously issued refresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (core.User, TokenPair, error) {
	creds, err := s.store.CredentialsByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// Burn a comparison anyway so unknown emails take as long as
			// wrong passwords.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return core.User{}, TokenPair{}, core.ErrInvalidCredentials
		}
		return core.User{}, TokenPair{}, err
	}

	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)) != nil {
		return core.User{}, TokenPair{}, core.ErrInvalidCredentials
	}

	user, err := s.store.UserByID(ctx, creds.UserID)
	if err != nil {
		return core.User{}, TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user.ID, "")
	if err != nil {
		return core.User{}, TokenPair{}, err
	}

	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new token pair. The rotation
// is a conditional fingerprint swap, so a replayed token that has already
// been rotated away loses the race and is rejected.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, presented, err := s.tokenizer.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, core.ErrInvalidToken
	}

	pair, err := s.issuePair(ctx, userID, presented)
	if err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

// Logout clears the stored refresh fingerprint, revoking every outstanding
// refresh token for the user. Idempotent.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.store.ClearFingerprint(ctx, userID)
}

// ChangePassword verifies the current password, stores the new hash, and
// revokes all outstanding refresh tokens so existing sessions must re-login.
func (s *AuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	creds, err := s.store.CredentialsByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrInvalidCredentials
		}
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(oldPassword)) != nil {
		return core.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return err
	}

	return s.store.ClearFingerprint(ctx, userID)
}

// ForgotPassword issues a reset token when the email is known. The response
// is identical either way so the endpoint cannot be used to enumerate users.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.UserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.logger.Error("forgot password lookup failed", "error", err)
		}
		return nil
	}

	token, hash, err := newSingleUseToken()
	if err != nil {
		s.logger.Error("failed to mint reset token", "error", err)
		return nil
	}

	rec := core.SingleUseRecord{UserID: user.ID, ExpiresAt: time.Now().Add(s.resetTTL)}
	if err := s.store.PutSingleUse(ctx, core.PurposeResetPassword, hash, rec, s.resetTTL); err != nil {
		s.logger.Error("failed to store reset token", "error", err)
		return nil
	}

	if err := s.mail.PublishPasswordResetMail(ctx, user.Email, user.Username, token); err != nil {
		s.logger.Error("failed to publish reset mail event", "error", err)
	}

	return nil
}

// ResetPassword consumes a reset token and installs the new password. The
// consumed token can never be replayed, and all sessions are revoked.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	rec, err := s.store.TakeSingleUse(ctx, core.PurposeResetPassword, hashToken(token))
	if err != nil {
		return core.ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, rec.UserID, string(hash)); err != nil {
		return err
	}

	return s.store.ClearFingerprint(ctx, rec.UserID)
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	rec, err := s.store.TakeSingleUse(ctx, core.PurposeVerifyEmail, hashToken(token))
	if err != nil {
		return core.ErrInvalidToken
	}

	return s.store.MarkEmailVerified(ctx, rec.UserID)
}

// ResendVerification issues a fresh verification token for an unverified user.
func (s *AuthService) ResendVerification(ctx context.Context, userID string) error {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.ErrUnauthorized
		}
		return err
	}

	if user.EmailVerified {
		return core.ErrAlreadyVerified
	}

	s.sendVerification(ctx, user)
	return nil
}

// CurrentUser returns the profile behind a validated access token.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (core.User, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.User{}, core.ErrUnauthorized
		}
		return core.User{}, err
	}
	return user, nil
}

// VerifyAccess validates an access token and returns its subject. Stateless;
// used by the transport middleware on every protected call.
func (s *AuthService) VerifyAccess(token string) (string, error) {
	return s.tokenizer.VerifyAccessToken(token)
}

// issuePair mints a new access/refresh pair and swaps the stored fingerprint.
// want == "" installs unconditionally (login); otherwise the swap fails with
// core.ErrInvalidToken when the presented fingerprint is no longer current.
func (s *AuthService) issuePair(ctx context.Context, userID, want string) (TokenPair, error) {
	access, err := s.tokenizer.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to issue access token: %w", err)
	}

	refresh, fingerprint, err := s.tokenizer.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	if err := s.store.SwapFingerprint(ctx, userID, want, fingerprint, s.refreshTTL); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// sendVerification mints and dispatches a verification token. Failures are
// logged, not surfaced: the account exists either way and the user can ask
// for a resend.
func (s *AuthService) sendVerification(ctx context.Context, user core.User) {
	token, hash, err := newSingleUseToken()
	if err != nil {
		s.logger.Error("failed to mint verification token", "error", err)
		return
	}

	rec := core.SingleUseRecord{UserID: user.ID, ExpiresAt: time.Now().Add(s.verifyTTL)}
	if err := s.store.PutSingleUse(ctx, core.PurposeVerifyEmail, hash, rec, s.verifyTTL); err != nil {
		s.logger.Error("failed to store verification token", "error", err)
		return
	}

	if err := s.mail.PublishVerificationMail(ctx, user.Email, user.Username, token); err != nil {
		s.logger.Error("failed to publish verification mail event", "error", err)
	}
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	if len(password) > 72 {
		return ErrPasswordTooLong
	}
	return nil
}

// newSingleUseToken generates a random single-use token value and the hash
// under which the store keys its record.
func newSingleUseToken() (token, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
