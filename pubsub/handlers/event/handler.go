package event

import (
	"context"
)

type Broadcaster interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

type FilesService interface {
	UploadFile(ctx context.Context, fileID string, fileContent string) error
}

type SpreadsheetsService interface {
	AppendRow(ctx context.Context, spreadsheetName string, row []string) error
}

type Handler struct {
	broadcaster         Broadcaster
	filesService        FilesService
	spreadsheetsService SpreadsheetsService
}

func NewHandler(
	broadcaster Broadcaster,
	filesService FilesService,
	spreadsheetsService SpreadsheetsService,
) Handler {
	if broadcaster == nil {
		panic("missing broadcaster")
	}
	if filesService == nil {
		panic("missing filesService")
	}
	if spreadsheetsService == nil {
		panic("missing spreadsheetsService")
	}

	return Handler{
		broadcaster:         broadcaster,
		filesService:        filesService,
		spreadsheetsService: spreadsheetsService,
	}
}
