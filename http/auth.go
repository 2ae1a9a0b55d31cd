package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

const (
	actorKey       = "actor"
	clientIDHeader = "X-Client-ID"
)

// authenticate resolves the caller from the bearer token. Requests without a
// token continue as guests.
func (s Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, err := s.authenticator.FromAuthorizationHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		c.Set(actorKey, actor)
		return next(c)
	}
}

func actorFrom(c echo.Context) entity.Actor {
	actor, _ := c.Get(actorKey).(entity.Actor)
	return actor
}

// guestPrefix keeps guest client ids apart from user ids, so a guest can never
// act on a claim made by a signed-in user.
const guestPrefix = "guest:"

// claimOwner is the identity seat claims are made with: the user id, or the
// client id a guest sends along.
func claimOwner(c echo.Context) string {
	if actor := actorFrom(c); actor.UserID != "" {
		return actor.UserID
	}
	id := c.Request().Header.Get(clientIDHeader)
	if id == "" {
		id = c.QueryParam("client_id")
	}
	if id == "" {
		return ""
	}
	return guestPrefix + id
}
