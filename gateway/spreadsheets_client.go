package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/clients"
	"github.com/ThreeDotsLabs/go-event-driven/common/clients/spreadsheets"
)

type SpreadsheetsClient struct {
	clients *clients.Clients
}

func NewSpreadsheetsClient(clients *clients.Clients) SpreadsheetsClient {
	if clients == nil {
		panic("clients must be set")
	}

	return SpreadsheetsClient{
		clients: clients,
	}
}

func (c SpreadsheetsClient) AppendRow(ctx context.Context, spreadsheetName string, row []string) error {
	request := spreadsheets.PostSheetsSheetRowsJSONRequestBody{
		Columns: row,
	}

	resp, err := c.clients.Spreadsheets.PostSheetsSheetRowsWithResponse(ctx, spreadsheetName, request)
	if err != nil {
		return fmt.Errorf("could not append row to %s: %w", spreadsheetName, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("unexpected status code for POST spreadsheets-api/sheets/%s/rows: %d", spreadsheetName, resp.StatusCode())
	}

	return nil
}
