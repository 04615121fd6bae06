package app

import (
	"time"

	"captiondesk/api/internal/store"
)

func timeJSON(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func stringJSON(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func captionJSON(c store.Caption) map[string]any {
	return map[string]any{
		"id":            c.ID,
		"contentItemId": c.ContentItemID,
		"tone":          string(c.Tone),
		"content":       c.Content,
		"status":        string(c.Status),
		"version":       c.Version,
		"approvedBy":    stringJSON(c.ApprovedBy),
		"approvedAt":    timeJSON(c.ApprovedAt),
		"createdAt":     c.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":     c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// contentJSON always renders captions as an array, never null.
func contentJSON(item store.ContentItem) map[string]any {
	captions := make([]map[string]any, 0, len(item.Captions))
	for _, caption := range item.Captions {
		captions = append(captions, captionJSON(caption))
	}
	return map[string]any{
		"id":           item.ID,
		"driveFileId":  item.DriveFileID,
		"filename":     item.Filename,
		"fileType":     item.FileType,
		"status":       string(item.Status),
		"driveUrl":     item.DriveURL,
		"thumbnailUrl": item.ThumbnailURL,
		"embedUrl":     item.EmbedURL,
		"mimeType":     item.MimeType,
		"uploadedAt":   item.UploadedAt.UTC().Format(time.RFC3339),
		"updatedAt":    item.UpdatedAt.UTC().Format(time.RFC3339),
		"captions":     captions,
	}
}

func contentListJSON(items []store.ContentItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, contentJSON(item))
	}
	return out
}

func userJSON(u store.User) map[string]any {
	return map[string]any{
		"id":        u.ID,
		"email":     u.Email,
		"name":      u.Name,
		"role":      u.Role,
		"createdAt": u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func usersJSON(users []store.User) []map[string]any {
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, userJSON(u))
	}
	return out
}

// settingsJSON keys the settings by name.
func settingsJSON(settings []store.Setting) map[string]any {
	out := make(map[string]any, len(settings))
	for _, setting := range settings {
		out[setting.Key] = map[string]any{
			"value":       setting.Value,
			"description": setting.Description,
			"updatedAt":   setting.UpdatedAt.UTC().Format(time.RFC3339),
			"updatedBy":   stringJSON(setting.UpdatedBy),
		}
	}
	return out
}

func metricsJSON(m store.PostMetrics) map[string]any {
	return map[string]any{
		"contentItemId": m.ContentItemID,
		"postId":        m.PostID,
		"likes":         m.Likes,
		"comments":      m.Comments,
		"shares":        m.Shares,
		"reach":         m.Reach,
		"impressions":   m.Impressions,
		"engagements":   m.Engagements,
		"fetchedAt":     m.FetchedAt.UTC().Format(time.RFC3339),
	}
}

func metricsListJSON(list []store.PostMetrics) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, m := range list {
		out = append(out, metricsJSON(m))
	}
	return out
}

func linkSummariesJSON(links []store.LinkSummary) []map[string]any {
	out := make([]map[string]any, 0, len(links))
	for _, link := range links {
		out = append(out, map[string]any{
			"contentItemId": link.ContentItemID,
			"driveFileId":   link.DriveFileID,
			"filename":      link.Filename,
			"fileType":      link.FileType,
			"captionCount":  link.CaptionCount,
		})
	}
	return out
}

func orphansJSON(orphans []store.OrphanCaption) []map[string]any {
	out := make([]map[string]any, 0, len(orphans))
	for _, orphan := range orphans {
		out = append(out, map[string]any{
			"captionId":     orphan.CaptionID,
			"contentItemId": orphan.ContentItemID,
			"tone":          orphan.Tone,
			"createdAt":     orphan.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
