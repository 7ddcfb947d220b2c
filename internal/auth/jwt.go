package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/signalix/accounts/internal/logging"
	"github.com/signalix/accounts/internal/model"
	"github.com/signalix/accounts/internal/repo"
)

// SessionClaims are the claims carried by an access token. LastLoggedInAt is
// the login watermark in epoch milliseconds.
type SessionClaims struct {
	Email          string `json:"email"`
	LastLoggedInAt int64  `json:"lastLoggedInAt,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(email string, watermark int64) (string, error)
}

// TokenVerifier resolves a bearer token to the live account it belongs to.
type TokenVerifier interface {
	Verify(ctx context.Context, token string, roles ...model.Role) (*model.User, bool)
}

// UserFinder is the slice of the user store the token service reads.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

var errNoWatermark = errors.New("token carries no watermark")

// JWTService handles JWT token operations
type JWTService struct {
	secret []byte
	ttl    time.Duration
	users  UserFinder
	now    func() time.Time
}

// NewJWTService creates a new JWT service. A ttl of zero issues tokens
// without an expiry; revocation then rests on the watermark alone.
func NewJWTService(secret string, ttl time.Duration, users UserFinder) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		ttl:    ttl,
		users:  users,
		now:    time.Now,
	}
}

// Issue signs an HS256 token for email carrying watermark.
func (s *JWTService) Issue(email string, watermark int64) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}

	now := s.now()
	claims := &SessionClaims{
		Email:          model.NormalizeEmail(email),
		LastLoggedInAt: watermark,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  model.NormalizeEmail(email),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Parse verifies the signature and decodes the claims.
func (s *JWTService) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("token carries no email")
	}

	return claims, nil
}

// Verify returns the account a token belongs to, or false. It never returns
// an error: any failure, including a store failure, rejects the token.
//
// A token is accepted only when the account exists and is active, its role is
// one of roles (user or admin when none are given), and the token's watermark
// is not older than the one stored on the account. Each login moves the stored
// watermark forward, which revokes every token issued before it.
func (s *JWTService) Verify(ctx context.Context, tokenString string, roles ...model.Role) (*model.User, bool) {
	logger := logging.FromContext(ctx)

	claims, err := s.Parse(tokenString)
	if err != nil {
		logger.Debug().Err(err).Msg("Token rejected")
		return nil, false
	}

	user, err := s.users.FindByEmail(ctx, claims.Email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			logger.Error().Err(err).Msg("Token lookup failed")
		}
		return nil, false
	}

	if !user.IsActive() {
		return nil, false
	}
	if len(roles) == 0 {
		roles = model.DefaultRoles
	}
	if !user.HasRole(roles...) {
		return nil, false
	}

	if err := checkWatermark(claims, user); err != nil {
		logger.Debug().Err(err).Str("user_id", user.ID.String()).Msg("Token revoked")
		return nil, false
	}

	return user, true
}

func checkWatermark(claims *SessionClaims, user *model.User) error {
	if claims.LastLoggedInAt == 0 {
		return errNoWatermark
	}
	stored, ok, err := user.Watermark()
	if err != nil {
		return fmt.Errorf("stored watermark unreadable: %w", err)
	}
	if ok && claims.LastLoggedInAt < stored {
		return fmt.Errorf("token watermark %d older than %d", claims.LastLoggedInAt, stored)
	}
	return nil
}
