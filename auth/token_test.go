package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giaotrandev/booking-app-sub000/auth"
	"github.com/giaotrandev/booking-app-sub000/entity"
)

func TestTokens_round_trip(t *testing.T) {
	tokens := auth.NewTokens("secret")

	token, err := tokens.Issue(entity.Actor{UserID: "user-1", Role: entity.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	actor, err := tokens.FromAuthorizationHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, entity.Actor{UserID: "user-1", Role: entity.RoleAdmin}, actor)
}

func TestTokens_guest(t *testing.T) {
	actor, err := auth.NewTokens("secret").FromAuthorizationHeader("")
	require.NoError(t, err)
	assert.Equal(t, entity.Actor{}, actor)
	assert.Equal(t, entity.ActorSystem, actor.String())
}

func TestTokens_unknown_role_is_user(t *testing.T) {
	tokens := auth.NewTokens("secret")

	token, err := tokens.Issue(entity.Actor{UserID: "user-1", Role: "root"}, time.Hour)
	require.NoError(t, err)

	actor, err := tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleUser, actor.Role)
}

func TestTokens_rejects(t *testing.T) {
	tokens := auth.NewTokens("secret")

	expired, err := tokens.Issue(entity.Actor{UserID: "user-1"}, -time.Minute)
	require.NoError(t, err)

	foreign, err := auth.NewTokens("other").Issue(entity.Actor{UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noSubject, err := tokens.Issue(entity.Actor{}, time.Hour)
	require.NoError(t, err)

	testCases := map[string]string{
		"expired":        "Bearer " + expired,
		"foreign secret": "Bearer " + foreign,
		"none alg":       "Bearer " + noneAlg,
		"no subject":     "Bearer " + noSubject,
		"basic scheme":   "Basic dXNlcjpwYXNz",
		"garbage":        "Bearer not-a-token",
	}

	for name, header := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.FromAuthorizationHeader(header)
			assert.ErrorIs(t, err, auth.ErrInvalidToken)
		})
	}
}
