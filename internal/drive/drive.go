// Package drive lists media files in a shared Google Drive folder.
package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"captiondesk/api/internal/store"
)

const (
	apiKeyPrefix       = "AIzaSy"
	clientSecretPrefix = "GOCSPX-"
	listFields         = "nextPageToken, files(id, name, mimeType, createdTime, thumbnailLink, webViewLink)"
	pageSize           = 100
	// maxPages bounds a single fetch to a few thousand files.
	maxPages = 50
)

var (
	ErrNotConfigured = errors.New("drive folder id and api key must be configured")
	ErrClientSecret  = errors.New("the configured value is an OAuth client secret (GOCSPX-...), not an API key (AIzaSy...)")
	ErrInvalidAPIKey = errors.New("api keys start with AIzaSy")
)

// Error is a non-2xx answer from the Drive API.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("google drive: %d %s", e.Status, e.Message)
}

// File is a media file in the folder, shaped like a sync descriptor.
type File struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	FileType     string    `json:"fileType"`
	UploadedAt   time.Time `json:"uploadedAt"`
	Status       string    `json:"status"`
	DriveURL     string    `json:"driveUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	EmbedURL     string    `json:"embedUrl"`
	MimeType     string    `json:"mimeType"`
}

// Descriptor converts the file to what the content store upserts.
func (f File) Descriptor() store.ContentDescriptor {
	return store.ContentDescriptor{
		DriveFileID:  f.ID,
		Filename:     f.Filename,
		FileType:     f.FileType,
		DriveURL:     f.DriveURL,
		ThumbnailURL: f.ThumbnailURL,
		EmbedURL:     f.EmbedURL,
		MimeType:     f.MimeType,
	}
}

// Client talks to the Drive v3 files endpoint with an API key.
type Client struct {
	// Endpoint overrides the Drive API base URL. Empty uses Google's.
	Endpoint string
	Timeout  time.Duration
}

func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint, Timeout: 30 * time.Second}
}

// ValidateAPIKey rejects OAuth client secrets and anything that is not a
// browser API key.
func ValidateAPIKey(key string) error {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return ErrNotConfigured
	case strings.HasPrefix(key, clientSecretPrefix):
		return ErrClientSecret
	case !strings.HasPrefix(key, apiKeyPrefix):
		return ErrInvalidAPIKey
	}
	return nil
}

// ListFolder returns the images and videos directly inside folderID.
func (c *Client) ListFolder(ctx context.Context, folderID, apiKey string) ([]File, error) {
	folderID = strings.TrimSpace(folderID)
	apiKey = strings.TrimSpace(apiKey)
	if folderID == "" {
		return nil, ErrNotConfigured
	}
	if err := ValidateAPIKey(apiKey); err != nil {
		return nil, err
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// option.WithHTTPClient would bypass the API key transport.
	opts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}

	query := fmt.Sprintf("'%s' in parents and (mimeType contains 'video/' or mimeType contains 'image/') and trashed = false",
		strings.ReplaceAll(folderID, "'", `\'`))

	files := make([]File, 0)
	pageToken := ""
	for page := 0; page < maxPages; page++ {
		call := svc.Files.List().
			Q(query).
			Fields(listFields).
			PageSize(pageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		list, err := call.Do()
		if err != nil {
			return nil, translateError(err)
		}
		for _, f := range list.Files {
			if file, ok := toFile(f); ok {
				files = append(files, file)
			}
		}
		if list.NextPageToken == "" {
			break
		}
		pageToken = list.NextPageToken
	}
	return files, nil
}

func toFile(f *drive.File) (File, bool) {
	isVideo := strings.HasPrefix(f.MimeType, "video/")
	isImage := strings.HasPrefix(f.MimeType, "image/")
	if f.Id == "" || (!isVideo && !isImage) {
		return File{}, false
	}

	file := File{
		ID:           f.Id,
		Filename:     f.Name,
		FileType:     "image",
		Status:       string(store.StatusPendingReview),
		DriveURL:     fmt.Sprintf("https://drive.google.com/file/d/%s/view", f.Id),
		ThumbnailURL: f.ThumbnailLink,
		EmbedURL:     fmt.Sprintf("https://drive.google.com/uc?export=view&id=%s", f.Id),
		MimeType:     f.MimeType,
		UploadedAt:   time.Now().UTC(),
	}
	if isVideo {
		file.FileType = "video"
		file.EmbedURL = fmt.Sprintf("https://drive.google.com/file/d/%s/preview", f.Id)
	}
	if file.ThumbnailURL == "" {
		file.ThumbnailURL = fmt.Sprintf("https://drive.google.com/thumbnail?id=%s&sz=w400", f.Id)
	}
	if created, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		file.UploadedAt = created
	}
	return file, true
}

func translateError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(apiErr.Code)
		}
		return &Error{Status: apiErr.Code, Message: message}
	}
	return fmt.Errorf("list drive folder: %w", err)
}
