package handler

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "campuscard/pkg/domain-errors"
)

// Signer mints and redeems the short-lived tokens that gate direct image
// fetches. The token carries only the blob reference; possession of a fresh
// signature is the whole capability.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}
}

type fetchClaims struct {
	Ref string `json:"ref"`
	jwt.RegisteredClaims
}

// Sign issues a token redeemable for the given blob reference until the TTL
// runs out.
func (s *Signer) Sign(ref string) (string, error) {
	now := s.now()
	claims := fetchClaims{
		Ref: ref,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

// Redeem validates a token and returns the blob reference it grants.
func (s *Signer) Redeem(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &fetchClaims{}, func(t *jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.Wrap(dErrors.CodeExpired, "fetch link expired", err)
		}
		return "", dErrors.Wrap(dErrors.CodeInvalidToken, "invalid fetch link", err)
	}
	claims, ok := parsed.Claims.(*fetchClaims)
	if !ok || claims.Ref == "" {
		return "", dErrors.New(dErrors.CodeInvalidToken, "invalid fetch link")
	}
	return claims.Ref, nil
}
