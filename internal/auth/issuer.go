package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cashi/auth-core/internal/sessionconfig"
)

// Fallback lifetimes used when the session settings yield a non-positive value.
const (
	fallbackAccessTTL  = 3600 * time.Second
	fallbackRefreshTTL = 604800 * time.Second

	// MinSecretLength is the shortest HS256 secret the issuer accepts.
	MinSecretLength = 32

	refreshTokenType = "refresh"
)

// SessionSettings supplies the token lifetimes in seconds.
// sessionconfig.Provider satisfies it.
type SessionSettings interface {
	Get(ctx context.Context, key string) int
}

// Claims are the JWT claims carried by access and refresh tokens.
// Refresh tokens carry Type "refresh" and no authorities.
type Claims struct {
	jwt.RegisteredClaims
	UserID      string   `json:"uid"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	Type        string   `json:"type,omitempty"`
}

// IsRefresh reports whether the claims belong to a refresh token.
func (c *Claims) IsRefresh() bool {
	return c.Type == refreshTokenType
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret   []byte
	issuer   string
	settings SessionSettings
	now      func() time.Time
}

// NewIssuer creates an issuer. The secret must be at least MinSecretLength bytes.
func NewIssuer(secret, issuer string, settings SessionSettings) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", MinSecretLength)
	}
	return &Issuer{
		secret:   []byte(secret),
		issuer:   issuer,
		settings: settings,
		now:      time.Now,
	}, nil
}

// IssueAccess signs an access token carrying the user's current authorities.
func (i *Issuer) IssueAccess(ctx context.Context, u *User) (IssuedToken, error) {
	auth := EffectiveAuthorities(u)
	claims := i.baseClaims(u, i.AccessTTL(ctx))
	claims.Roles = auth.Roles
	claims.Permissions = auth.Permissions
	return i.sign(claims, TokenAccess)
}

// IssueRefresh signs a refresh token. It carries no authorities.
func (i *Issuer) IssueRefresh(ctx context.Context, u *User) (IssuedToken, error) {
	claims := i.baseClaims(u, i.RefreshTTL(ctx))
	claims.Type = refreshTokenType
	return i.sign(claims, TokenRefresh)
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL(ctx context.Context) time.Duration {
	return i.ttl(ctx, sessionconfig.KeyAccessTokenExpiration, fallbackAccessTTL)
}

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL(ctx context.Context) time.Duration {
	return i.ttl(ctx, sessionconfig.KeyRefreshTokenExpiration, fallbackRefreshTTL)
}

func (i *Issuer) ttl(ctx context.Context, key string, fallback time.Duration) time.Duration {
	if i.settings == nil {
		return fallback
	}
	secs := i.settings.Get(ctx, key)
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func (i *Issuer) baseClaims(u *User, ttl time.Duration) *Claims {
	// NumericDate has second precision; truncate so IssuedToken matches the claims.
	now := i.now().UTC().Truncate(time.Second)
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   u.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		UserID: u.ID,
	}
}

func (i *Issuer) sign(claims *Claims, kind TokenKind) (IssuedToken, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("signing %s token: %w", strings.ToLower(string(kind)), err)
	}
	return IssuedToken{
		Value:     signed,
		Kind:      kind,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Parse verifies the signature, issuer and expiry of token and returns its claims.
// Expired tokens yield ErrTokenExpired; every other failure yields ErrTokenInvalid.
func (i *Issuer) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return claims, nil
}

// ExtractUsername returns the subject of a valid token.
func (i *Issuer) ExtractUsername(token string) (string, error) {
	claims, err := i.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractExpiry returns the expiry of a valid token.
func (i *Issuer) ExtractExpiry(token string) (time.Time, error) {
	claims, err := i.Parse(token)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

// IsExpired reports whether a correctly signed token has expired.
// Tokens that fail verification for any other reason return the error.
func (i *Issuer) IsExpired(token string) (bool, error) {
	_, err := i.Parse(token)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrTokenExpired):
		return true, nil
	default:
		return false, err
	}
}

// ValidateSignatureAndExpiry reports whether token is correctly signed and unexpired.
func (i *Issuer) ValidateSignatureAndExpiry(token string) bool {
	_, err := i.Parse(token)
	return err == nil
}
