package http

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/giaotrandev/booking-app-sub000/realtime"
)

// GetWebsocket upgrades the request and serves it until the client leaves.
func (s Server) GetWebsocket(c echo.Context) error {
	identity := claimOwner(c)
	if identity == "" {
		identity = guestPrefix + uuid.NewString()
	}

	conn, err := realtime.Upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied with the failure.
		return nil
	}

	s.hub.Serve(c.Request().Context(), conn, identity)
	return nil
}
