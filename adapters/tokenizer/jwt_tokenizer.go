package tokenizer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/phishguard/aegis/core"
	"github.com/phishguard/aegis/ports"
)

const AudienceAccess = "session:access"
const AudienceRefresh = "session:refresh"

// JWTTokenizer implements the Tokenizer interface using ES256 JWTs.
type JWTTokenizer struct {
	signKey    *ecdsa.PrivateKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewJWTTokenizer creates a new JWT tokenizer with the given signing key and
// token lifetimes.
func NewJWTTokenizer(signKey *ecdsa.PrivateKey, accessTTL, refreshTTL time.Duration) ports.Tokenizer {
	return &JWTTokenizer{signKey: signKey, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// IssueAccessToken mints a signed access token for the user.
func (j *JWTTokenizer) IssueAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// IssueRefreshToken mints a signed refresh token and returns it with its
// fingerprint. Only the fingerprint is meant to be persisted.
func (j *JWTTokenizer) IssueRefreshToken(userID string) (string, string, error) {
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Audience:  jwt.ClaimStrings{AudienceRefresh},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return signedToken, Fingerprint(signedToken), nil
}

// VerifyAccessToken checks signature, audience, and expiry.
func (j *JWTTokenizer) VerifyAccessToken(tokenStr string) (string, error) {
	claims := &AccessClaims{}
	if err := j.parse(tokenStr, claims, AudienceAccess); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// VerifyRefreshToken checks signature, audience, and expiry, and returns the
// subject plus the fingerprint of the presented token.
func (j *JWTTokenizer) VerifyRefreshToken(tokenStr string) (string, string, error) {
	claims := &RefreshClaims{}
	if err := j.parse(tokenStr, claims, AudienceRefresh); err != nil {
		return "", "", err
	}
	return claims.Subject, Fingerprint(tokenStr), nil
}

func (j *JWTTokenizer) parse(tokenStr string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &j.signKey.PublicKey, nil
	}, jwt.WithAudience(audience))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return core.ErrTokenExpired
		}
		return core.ErrInvalidToken
	}

	if !token.Valid {
		return core.ErrInvalidToken
	}

	return nil
}

// Fingerprint derives the stored identity of a refresh token. The store keeps
// this hash, never the token itself.
func Fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
