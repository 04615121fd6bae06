package app

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"captiondesk/api/internal/drive"
	"captiondesk/api/internal/export"
	"captiondesk/api/internal/gitrepo"
	"captiondesk/api/internal/search"
	"captiondesk/api/internal/social"
	"captiondesk/api/internal/store"
	"captiondesk/api/internal/util"
)

const defaultHistoryLimit = 50

var revisionHashPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// FetchDriveFiles lists the media in the configured drive folder.
func (s *Service) FetchDriveFiles(ctx context.Context) ([]drive.File, error) {
	if s.drive == nil {
		return nil, domainError(http.StatusServiceUnavailable, codeUnavailable, "Google Drive integration is not available", nil)
	}
	settings, err := s.store.SettingValues(ctx, settingDriveFolderID, settingDriveAPIKey)
	if err != nil {
		return nil, err
	}
	folderID := strings.TrimSpace(settings[settingDriveFolderID])
	apiKey := strings.TrimSpace(settings[settingDriveAPIKey])
	if folderID == "" || apiKey == "" {
		return nil, errInvalidInput("Google Drive settings not configured. Set the folder id and API key in admin settings.", nil)
	}

	files, err := s.drive.ListFolder(ctx, folderID, apiKey)
	if err != nil {
		var driveErr *drive.Error
		switch {
		case errors.Is(err, drive.ErrClientSecret), errors.Is(err, drive.ErrInvalidAPIKey), errors.Is(err, drive.ErrNotConfigured):
			return nil, errInvalidInput(err.Error(), map[string]any{"apiKeyPrefix": keyPrefix(apiKey)})
		case errors.As(err, &driveErr):
			return nil, errUpstream("google_drive", driveErr.Status, driveErr.Message)
		}
		s.log.WithError(err).Warn("drive fetch failed")
		return nil, errUpstream("google_drive", 0, "Google Drive could not be reached")
	}
	return files, nil
}

func keyPrefix(key string) string {
	if len(key) <= 6 {
		return key
	}
	return key[:6] + "..."
}

func (s *Service) facebookCredentials(ctx context.Context) (social.Credentials, error) {
	settings, err := s.store.SettingValues(ctx, settingFacebookAccessToken, settingFacebookPageID)
	if err != nil {
		return social.Credentials{}, err
	}
	creds := social.Credentials{
		AccessToken: strings.TrimSpace(settings[settingFacebookAccessToken]),
		PageID:      strings.TrimSpace(settings[settingFacebookPageID]),
	}
	if creds.AccessToken == "" {
		return social.Credentials{}, errInvalidInput("Facebook access token not configured in settings", nil)
	}
	return creds, nil
}

func (s *Service) ListPostMetrics(ctx context.Context) ([]store.PostMetrics, error) {
	return s.store.ListPostMetrics(ctx)
}

func (s *Service) GetPostMetrics(ctx context.Context, contentItemID string) (store.PostMetrics, error) {
	if !util.IsUUID(contentItemID) {
		return store.PostMetrics{}, errInvalidInput("Invalid content item id", map[string]any{"contentItemId": contentItemID})
	}
	metrics, err := s.store.GetPostMetrics(ctx, contentItemID)
	if err != nil {
		return store.PostMetrics{}, storeNotFound(err, "No metrics recorded for this content item", map[string]any{"contentItemId": contentItemID})
	}
	return metrics, nil
}

// SyncPostMetrics links a content item to a Facebook post and stores the
// post's current numbers.
func (s *Service) SyncPostMetrics(ctx context.Context, contentItemID, postID string) (store.PostMetrics, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return store.PostMetrics{}, errInvalidInput("postId is required", nil)
	}
	if _, err := s.GetContent(ctx, contentItemID); err != nil {
		return store.PostMetrics{}, err
	}
	if s.social == nil {
		return store.PostMetrics{}, domainError(http.StatusServiceUnavailable, codeUnavailable, "Facebook integration is not available", nil)
	}
	creds, err := s.facebookCredentials(ctx)
	if err != nil {
		return store.PostMetrics{}, err
	}
	metrics, err := s.social.PostMetrics(ctx, creds, postID)
	if err != nil {
		return store.PostMetrics{}, s.graphError(err)
	}
	return s.store.UpsertPostMetrics(ctx, store.PostMetrics{
		ContentItemID: contentItemID,
		PostID:        metrics.PostID,
		Likes:         metrics.Likes,
		Comments:      metrics.Comments,
		Shares:        metrics.Shares,
		Reach:         metrics.Reach,
		Impressions:   metrics.Impressions,
		Engagements:   metrics.Engagements,
	})
}

func (s *Service) TestFacebookConnection(ctx context.Context) (social.Page, error) {
	if s.social == nil {
		return social.Page{}, domainError(http.StatusServiceUnavailable, codeUnavailable, "Facebook integration is not available", nil)
	}
	creds, err := s.facebookCredentials(ctx)
	if err != nil {
		return social.Page{}, err
	}
	page, err := s.social.TestConnection(ctx, creds)
	if err != nil {
		return social.Page{}, s.graphError(err)
	}
	return page, nil
}

func (s *Service) graphError(err error) error {
	var graphErr *social.Error
	if errors.As(err, &graphErr) {
		return errUpstream("facebook", graphErr.Status, graphErr.Message)
	}
	if errors.Is(err, social.ErrNotConfigured) {
		return errInvalidInput(err.Error(), nil)
	}
	s.log.WithError(err).Warn("facebook graph call failed")
	return errUpstream("facebook", 0, "Facebook could not be reached")
}

func (s *Service) Search(ctx context.Context, text, filterType, status, limit string) (search.Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	q := search.Query{Text: text, Status: strings.TrimSpace(status), Limit: 20}
	switch search.ResultType(filterType) {
	case "":
	case search.ResultCaption, search.ResultContent:
		q.FilterType = search.ResultType(filterType)
	default:
		return search.Response{}, errInvalidInput("type must be caption or content", map[string]any{"type": filterType})
	}
	if limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > 100 {
			return search.Response{}, errInvalidInput("limit must be between 1 and 100", map[string]any{"limit": limit})
		}
		q.Limit = n
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text, Engine: "none"}, nil
	}
	return s.search.Search(ctx, q), nil
}

func (s *Service) ExportContent(ctx context.Context, session Session, contentItemID, format string) (*export.Result, error) {
	if !util.IsUUID(contentItemID) {
		return nil, errInvalidInput("Invalid content item id", map[string]any{"contentItemId": contentItemID})
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, errInvalidInput("format must be pdf or docx", map[string]any{"format": format})
	}
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, codeUnavailable, "Export is not available", nil)
	}
	result, err := s.exporter.Export(ctx, export.Request{
		ContentItemID: contentItemID,
		Format:        parsed,
		RequestedBy:   firstNonBlank(session.UserName, session.Email),
	})
	if err != nil {
		switch {
		case store.IsNotFound(err):
			return nil, errNotFound("Content item not found", map[string]any{"contentItemId": contentItemID})
		case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
			return nil, domainError(http.StatusServiceUnavailable, codeUnavailable, "Export renderer is not installed on this server", nil)
		}
		return nil, err
	}
	return result, nil
}

// CaptionHistory returns the archived revisions of a caption, newest first.
func (s *Service) CaptionHistory(ctx context.Context, captionID string) ([]gitrepo.Commit, error) {
	if !util.IsUUID(captionID) {
		return nil, errInvalidInput("Invalid caption id", map[string]any{"captionId": captionID})
	}
	caption, err := s.store.GetCaption(ctx, captionID)
	if err != nil {
		return nil, storeNotFound(err, "Caption not found", map[string]any{"captionId": captionID})
	}
	if s.revisions == nil {
		return []gitrepo.Commit{}, nil
	}
	commits, err := s.revisions.History(caption.ContentItemID, caption.ID, defaultHistoryLimit)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNoHistory) {
			return []gitrepo.Commit{}, nil
		}
		return nil, err
	}
	return commits, nil
}

// CaptionRevision returns the caption snapshot archived at one commit.
func (s *Service) CaptionRevision(ctx context.Context, captionID, hash string) (gitrepo.Revision, error) {
	if !util.IsUUID(captionID) {
		return gitrepo.Revision{}, errInvalidInput("Invalid caption id", map[string]any{"captionId": captionID})
	}
	hash = strings.TrimSpace(hash)
	if !revisionHashPattern.MatchString(hash) {
		return gitrepo.Revision{}, errInvalidInput("Invalid revision hash", map[string]any{"hash": hash})
	}
	caption, err := s.store.GetCaption(ctx, captionID)
	if err != nil {
		return gitrepo.Revision{}, storeNotFound(err, "Caption not found", map[string]any{"captionId": captionID})
	}
	if s.revisions == nil {
		return gitrepo.Revision{}, errNotFound("Revision not found", map[string]any{"hash": hash})
	}
	rev, err := s.revisions.GetRevision(caption.ContentItemID, caption.ID, hash)
	if errors.Is(err, gitrepo.ErrRevisionNotFound) {
		return gitrepo.Revision{}, errNotFound("Revision not found", map[string]any{"hash": hash})
	}
	return rev, err
}

// IntegrityReport lists caption links per content item and captions whose
// content item is gone.
func (s *Service) IntegrityReport(ctx context.Context, driveFileID string) (map[string]any, error) {
	links, err := s.store.LinkSummaries(ctx, strings.TrimSpace(driveFileID))
	if err != nil {
		return nil, err
	}
	orphans, err := s.store.OrphanedCaptions(ctx)
	if err != nil {
		return nil, err
	}
	linked := 0
	for _, link := range links {
		linked += link.CaptionCount
	}
	return map[string]any{
		"contentItems":   linkSummariesJSON(links),
		"orphanCaptions": orphansJSON(orphans),
		"linkedCaptions": linked,
		"orphanCount":    len(orphans),
		"healthy":        len(orphans) == 0,
	}, nil
}
