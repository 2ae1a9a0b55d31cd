package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/giaotrandev/booking-app-sub000/payment"
)

func (s Server) PostPaymentWebhook(c echo.Context) error {
	if !payment.CheckAPIKey(c.Request().Header.Get(echo.HeaderAuthorization), s.config.WebhookAPIKey) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
	}

	var notification payment.Notification
	if err := c.Bind(&notification); err != nil {
		return err
	}

	ack, err := s.reconciler.HandlePaymentNotification(c.Request().Context(), notification)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ack)
}
