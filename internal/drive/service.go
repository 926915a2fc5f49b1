package drive

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// GoogleSheetMimeType marks a native spreadsheet that must be exported.
const GoogleSheetMimeType = "application/vnd.google-apps.spreadsheet"

// XLSXMimeType is the export format for native spreadsheets.
const XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Service struct {
	srv *drive.Service
}

// NewService authenticates with a service-account JSON key.
func NewService(ctx context.Context, credentialsJSON string) (*Service, error) {
	config, err := google.JWTConfigFromJSON(
		[]byte(credentialsJSON),
		drive.DriveReadonlyScope,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
	}

	return NewServiceWithOptions(ctx, option.WithHTTPClient(config.Client(ctx)))
}

// NewServiceWithOptions builds the Drive client from raw client options.
func NewServiceWithOptions(ctx context.Context, opts ...option.ClientOption) (*Service, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &Service{srv: srv}, nil
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

func (s *Service) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := s.srv.Files.Get(fileID).
		Fields("id, name, mimeType, modifiedTime, size").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve file %s: %w", fileID, err)
	}

	return &File{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		ModifiedTime: f.ModifiedTime,
		Size:         f.Size,
	}, nil
}

func (s *Service) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	resp, err := s.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("unable to download file: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

// ExportFile converts a native Google document to mimeType.
func (s *Service) ExportFile(ctx context.Context, fileID, mimeType string, w io.Writer) error {
	resp, err := s.srv.Files.Export(fileID, mimeType).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("unable to export file: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}
