package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"

	roleClaim = "role"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is what the API reads from an access token.
type Claims struct {
	UserID string
	Role   string
}

// Config configures token signing and verification.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Tokens signs and verifies HMAC access tokens. Tokens are minted by the
// account service; this side only needs to trust them.
type Tokens struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
	alg       jwa.SignatureAlgorithm
	now       func() time.Time
}

func NewTokens(cfg Config) (*Tokens, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if len(secret) < 16 {
		return nil, errors.New("auth: secret must be at least 16 characters")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwa.HS256
	}
	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
	default:
		return nil, fmt.Errorf("auth: unsupported algorithm %s", alg)
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Tokens{
		secret:    []byte(secret),
		issuer:    strings.TrimSpace(cfg.Issuer),
		audience:  strings.TrimSpace(cfg.Audience),
		clockSkew: skew,
		alg:       alg,
		now:       time.Now,
	}, nil
}

// WithNow overrides the clock.
func (t *Tokens) WithNow(now func() time.Time) *Tokens {
	if now != nil {
		t.now = now
	}
	return t
}

// Issue signs a token for userID. Used by tooling and tests.
func (t *Tokens) Issue(userID, role string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("auth: subject required")
	}
	if role == "" {
		role = RoleCustomer
	}
	now := t.now()
	b := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		NotBefore(now.Add(-t.clockSkew)).
		Expiration(now.Add(ttl)).
		Claim(roleClaim, role)
	if t.issuer != "" {
		b = b.Issuer(t.issuer)
	}
	if t.audience != "" {
		b = b.Audience([]string{t.audience})
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(t.alg, t.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

// Verify checks signature, algorithm, issuer, audience and time claims.
func (t *Tokens) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrInvalidToken
	}
	alg, err := tokenAlgorithm(raw)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if alg != t.alg {
		return Claims{}, fmt.Errorf("%w: unexpected algorithm %s", ErrInvalidToken, alg)
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(t.alg, t.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(t.now)),
		jwt.WithAcceptableSkew(t.clockSkew),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	if t.audience != "" {
		opts = append(opts, jwt.WithAudience(t.audience))
	}
	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tok.Subject() == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	claims := Claims{UserID: tok.Subject(), Role: RoleCustomer}
	if v, ok := tok.Get(roleClaim); ok {
		if role, ok := v.(string); ok && role != "" {
			claims.Role = role
		}
	}
	return claims, nil
}

func tokenAlgorithm(raw string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(raw)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return "", errors.New("expected exactly one signature")
	}
	headers := sigs[0].ProtectedHeaders()
	if headers == nil || headers.Algorithm() == "" {
		return "", errors.New("missing algorithm header")
	}
	return headers.Algorithm(), nil
}
