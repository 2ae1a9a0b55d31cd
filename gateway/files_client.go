package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/go-event-driven/common/clients"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
)

type FilesClient struct {
	clients *clients.Clients
}

func NewFilesClient(clients *clients.Clients) FilesClient {
	if clients == nil {
		panic("clients must be set")
	}

	return FilesClient{
		clients: clients,
	}
}

// UploadFile stores the file under fileID. Uploading an existing file is a no-op.
func (c FilesClient) UploadFile(ctx context.Context, fileID string, fileContent string) error {
	resp, err := c.clients.Files.PutFilesFileIdContentWithTextBodyWithResponse(ctx, fileID, fileContent)
	if err != nil {
		return fmt.Errorf("could not upload file %s: %w", fileID, err)
	}

	if resp.StatusCode() == http.StatusConflict {
		log.FromContext(ctx).WithField("file_id", fileID).Info("File already exists")
		return nil
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return fmt.Errorf("unexpected status code for PUT files-api/files/%s/content: %d", fileID, resp.StatusCode())
	}

	return nil
}
