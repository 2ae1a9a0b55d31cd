package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"github.com/giaotrandev/booking-app-sub000/entity"
)

const TicketsToDispatchSheet = "tickets-to-dispatch"

func TicketFileID(bookingID string) string {
	return bookingID + "-ticket.html"
}

func (h Handler) DispatchTicketHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"DispatchTicketHandler",
		func(ctx context.Context, event *entity.BookingConfirmed_v1) error {
			log.FromContext(ctx).WithField("booking_id", event.BookingID).Info("Dispatching ticket")

			ticket, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("could not render ticket: %w", err)
			}

			if err := h.filesService.UploadFile(ctx, TicketFileID(event.BookingID), string(ticket)); err != nil {
				return fmt.Errorf("could not store ticket: %w", err)
			}

			return h.spreadsheetsService.AppendRow(
				ctx,
				TicketsToDispatchSheet,
				[]string{
					event.BookingID,
					event.ContactEmail,
					event.ContactPhone,
					strings.Join(event.SeatIDs, " "),
					event.AmountPaid.String(),
				},
			)
		},
	)
}
