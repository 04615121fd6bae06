package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	assert.NoError(t, ValidateAPIKey(" AIzaSyDUMMYKEY "))
	assert.ErrorIs(t, ValidateAPIKey("GOCSPX-secret"), ErrClientSecret)
	assert.ErrorIs(t, ValidateAPIKey("abc123"), ErrInvalidAPIKey)
	assert.ErrorIs(t, ValidateAPIKey(""), ErrNotConfigured)
}

func TestListFolderBuildsDescriptors(t *testing.T) {
	var gotQuery, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/files"))
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"id": "vid1234567890", "name": "launch.mp4", "mimeType": "video/mp4", "createdTime": "2026-02-01T10:00:00Z"},
				{"id": "img1234567890", "name": "hero.png", "mimeType": "image/png", "thumbnailLink": "https://lh3.example/thumb"},
				{"id": "doc1234567890", "name": "notes.pdf", "mimeType": "application/pdf"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL + "/")
	files, err := client.ListFolder(context.Background(), "folder-1", "AIzaSyTESTKEY")
	require.NoError(t, err)
	require.Len(t, files, 2)

	assert.Equal(t, "AIzaSyTESTKEY", gotKey)
	assert.Contains(t, gotQuery, "'folder-1' in parents")

	video := files[0]
	assert.Equal(t, "video", video.FileType)
	assert.Equal(t, "https://drive.google.com/file/d/vid1234567890/view", video.DriveURL)
	assert.Equal(t, "https://drive.google.com/file/d/vid1234567890/preview", video.EmbedURL)
	assert.Equal(t, "https://drive.google.com/thumbnail?id=vid1234567890&sz=w400", video.ThumbnailURL)
	assert.Equal(t, 2026, video.UploadedAt.Year())
	assert.Equal(t, "pending_review", video.Status)

	image := files[1]
	assert.Equal(t, "image", image.FileType)
	assert.Equal(t, "https://drive.google.com/uc?export=view&id=img1234567890", image.EmbedURL)
	assert.Equal(t, "https://lh3.example/thumb", image.ThumbnailURL)
	assert.Equal(t, "img1234567890", image.Descriptor().DriveFileID)
}

func TestListFolderFollowsPages(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "p2",
				"files":         []map[string]any{{"id": "a1234567890", "name": "a.png", "mimeType": "image/png"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{{"id": "b1234567890", "name": "b.png", "mimeType": "image/png"}},
		})
	}))
	defer server.Close()

	files, err := NewClient(server.URL+"/").ListFolder(context.Background(), "folder-1", "AIzaSyTESTKEY")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, 2, calls)
}

func TestListFolderTranslatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"The caller does not have permission"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL+"/").ListFolder(context.Background(), "folder-1", "AIzaSyTESTKEY")
	var driveErr *Error
	require.ErrorAs(t, err, &driveErr)
	assert.Equal(t, http.StatusForbidden, driveErr.Status)
	assert.Contains(t, driveErr.Message, "permission")
}

func TestListFolderRejectsBadKeyWithoutCalling(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1/").ListFolder(context.Background(), "folder-1", "GOCSPX-abc")
	assert.ErrorIs(t, err, ErrClientSecret)
}
