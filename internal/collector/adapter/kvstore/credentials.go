package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Authorization schemes accepted by NewCredential.
const (
	SchemeSplunk = "Splunk"
	SchemeBearer = "Bearer"
	SchemeJWT    = "JWT"
)

// Credential produces the Authorization header value for one request.
type Credential interface {
	Authorization(ctx context.Context) (string, error)
}

// SessionKeyCredential authenticates with a management session key.
type SessionKeyCredential struct {
	SessionKey string
}

func (c SessionKeyCredential) Authorization(context.Context) (string, error) {
	return SchemeSplunk + " " + c.SessionKey, nil
}

// BearerCredential sends a static token.
type BearerCredential struct {
	Token string
}

func (c BearerCredential) Authorization(context.Context) (string, error) {
	return SchemeBearer + " " + c.Token, nil
}

// JWTOptions configures a JWTCredential.
type JWTOptions struct {
	Secret   string
	Issuer   string
	Subject  string
	Audience string
	TTL      time.Duration
}

// JWTCredential mints a short-lived HS256 token for every request.
type JWTCredential struct {
	secretKey []byte
	issuer    string
	subject   string
	audience  string
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTCredential validates opts and returns a signer.
func NewJWTCredential(opts JWTOptions) (*JWTCredential, error) {
	if opts.Secret == "" {
		return nil, errors.New("jwt secret key cannot be empty")
	}
	if opts.Issuer == "" {
		return nil, errors.New("jwt issuer cannot be empty")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("jwt token TTL must be positive")
	}
	return &JWTCredential{
		secretKey: []byte(opts.Secret),
		issuer:    opts.Issuer,
		subject:   opts.Subject,
		audience:  opts.Audience,
		ttl:       opts.TTL,
		now:       time.Now,
	}, nil
}

func (c *JWTCredential) Authorization(context.Context) (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
		Subject:   c.subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	if c.audience != "" {
		claims.Audience = jwt.ClaimStrings{c.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign store token: %w", err)
	}
	return SchemeBearer + " " + signed, nil
}

// NewCredential builds the credential for scheme. secret is the session key
// or bearer token; jwtOpts is only used for the JWT scheme.
func NewCredential(scheme, secret string, jwtOpts JWTOptions) (Credential, error) {
	switch {
	case strings.EqualFold(scheme, SchemeSplunk):
		if secret == "" {
			return nil, errors.New("session key cannot be empty")
		}
		return SessionKeyCredential{SessionKey: secret}, nil
	case strings.EqualFold(scheme, SchemeBearer):
		if secret == "" {
			return nil, errors.New("bearer token cannot be empty")
		}
		return BearerCredential{Token: secret}, nil
	case strings.EqualFold(scheme, SchemeJWT):
		return NewJWTCredential(jwtOpts)
	default:
		return nil, fmt.Errorf("unsupported authorization scheme %q", scheme)
	}
}
