// Package auth reads the caller identity from HS256 bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	Role entity.Role `json:"role"`
	jwt.RegisteredClaims
}

type Tokens struct {
	secret []byte
}

func NewTokens(secret string) Tokens {
	if secret == "" {
		panic("jwt secret must be set")
	}

	return Tokens{secret: []byte(secret)}
}

func (t Tokens) Issue(actor entity.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("could not sign token: %w", err)
	}
	return signed, nil
}

func (t Tokens) Parse(token string) (entity.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return entity.Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return entity.Actor{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	role := claims.Role
	if role != entity.RoleAdmin {
		role = entity.RoleUser
	}

	return entity.Actor{UserID: claims.Subject, Role: role}, nil
}

// FromAuthorizationHeader returns the actor of a "Bearer <token>" header. A
// missing header is a guest, the zero Actor.
func (t Tokens) FromAuthorizationHeader(header string) (entity.Actor, error) {
	if header == "" {
		return entity.Actor{}, nil
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return entity.Actor{}, fmt.Errorf("%w: expected bearer token", ErrInvalidToken)
	}

	return t.Parse(token)
}
