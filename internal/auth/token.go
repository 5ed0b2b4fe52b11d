package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/frahmantamala/rbac-admin/internal"
)

// Claims represents JWT token claims
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type IssuedToken struct {
	Token     string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec issues and verifies HS256 access tokens. It never touches storage.
type TokenCodec struct {
	secret []byte
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithIssuedAt(),
		),
		now: time.Now,
	}
}

// Issue signs a token for subject with a fresh jti. A ttl of zero yields a token
// that is already expired.
func (c *TokenCodec) Issue(subject string, roles []string, ttl time.Duration) (IssuedToken, error) {
	issuedAt := jwt.NewNumericDate(c.now())
	expiresAt := jwt.NewNumericDate(issuedAt.Add(ttl))
	jti := strings.ReplaceAll(uuid.New().String(), "-", "")
	if roles == nil {
		roles = []string{}
	}

	claims := &Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  issuedAt,
			ExpiresAt: expiresAt,
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{
		Token:     signed,
		JTI:       jti,
		IssuedAt:  issuedAt.Time,
		ExpiresAt: expiresAt.Time,
	}, nil
}

// Validate verifies signature and expiry. Every failure is reported as
// internal.ErrInvalidToken.
func (c *TokenCodec) Validate(tokenString string) (*internal.Principal, error) {
	claims := &Claims{}
	token, err := c.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, internal.ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, internal.ErrInvalidToken
	}

	roles := claims.Roles
	if roles == nil {
		roles = []string{}
	}
	return &internal.Principal{
		Username: claims.Subject,
		Roles:    roles,
		JTI:      claims.ID,
	}, nil
}
