package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway is the clock-skew allowance applied during token validation.
const DefaultLeeway = 30 * time.Second

// Token validation errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingSubject = errors.New("token has no subject")
)

// Claims are the JWT claims issued by the identity service for API access.
// The subject is the user id; role and verification are custom claims.
type Claims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"`
	Verification string `json:"verification"`
}

// TokenParser validates bearer tokens and extracts the Actor they describe.
// Tokens are validated against the current secret, falling back to the
// previous secret so key rotation does not invalidate in-flight tokens.
type TokenParser struct {
	currentSecret  []byte
	previousSecret []byte
	leeway         time.Duration
}

// NewTokenParser creates a TokenParser with a single signing secret.
func NewTokenParser(secret string) *TokenParser {
	return &TokenParser{
		currentSecret: []byte(secret),
		leeway:        DefaultLeeway,
	}
}

// NewTokenParserWithRotation creates a TokenParser that accepts tokens signed
// with either the current or the previous secret. Pass an empty previous
// secret when no rotation is in progress.
func NewTokenParserWithRotation(currentSecret, previousSecret string) *TokenParser {
	p := NewTokenParser(currentSecret)
	if previousSecret != "" {
		p.previousSecret = []byte(previousSecret)
	}
	return p
}

// Parse validates the token string and returns the Actor it describes.
func (p *TokenParser) Parse(tokenString string) (Actor, error) {
	claims, err := p.parseWithSecret(tokenString, p.currentSecret)
	if err != nil && p.previousSecret != nil {
		claims, err = p.parseWithSecret(tokenString, p.previousSecret)
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Actor{}, ErrExpiredToken
		}
		return Actor{}, ErrInvalidToken
	}

	if claims.Subject == "" {
		return Actor{}, ErrMissingSubject
	}

	actor := Actor{
		UserID:       claims.Subject,
		Role:         Role(claims.Role),
		Verification: Verification(claims.Verification),
	}
	if !ValidRole(actor.Role) {
		actor.Role = RoleVoter
	}
	if actor.Verification == "" {
		actor.Verification = VerificationNone
	}
	return actor, nil
}

func (p *TokenParser) parseWithSecret(tokenString string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return secret, nil
		},
		jwt.WithLeeway(p.leeway),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Sign issues a signed token for the given actor, valid for the given
// duration. Used by tests and local development tooling; production tokens
// come from the identity service.
func (p *TokenParser) Sign(actor Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:         string(actor.Role),
		Verification: string(actor.Verification),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.currentSecret)
}
