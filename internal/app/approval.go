package app

import (
	"context"
	"errors"
	"strings"

	"captiondesk/api/internal/email"
	"captiondesk/api/internal/notify"
	"captiondesk/api/internal/store"
	"captiondesk/api/internal/util"
)

// ApproveCaption approves one caption and marks its content item approved.
// The first approval wins: later approvals of the same caption change
// nothing, and approving a sibling caption keeps the item approved.
// Notification, mail, indexing and archiving run after the write and can
// never undo it.
func (s *Service) ApproveCaption(ctx context.Context, session Session, id string) (map[string]any, error) {
	if !util.IsUUID(id) {
		return nil, errInvalidInput("Invalid caption id", map[string]any{"captionId": id})
	}
	current, err := s.store.GetCaptionWithContent(ctx, id)
	if err != nil {
		return nil, storeNotFound(err, "Caption not found", map[string]any{"captionId": id})
	}
	item := current.Item
	if !canTransition(item.Status, store.StatusApproved) {
		return nil, errConflict("Content item is already published; captions can no longer be approved",
			map[string]any{"contentItemId": item.ID, "status": item.Status})
	}

	caption, err := s.store.ApproveCaption(ctx, id, session.UserID)
	if err != nil {
		return nil, storeNotFound(err, "Caption not found", map[string]any{"captionId": id})
	}

	contentStatus := item.Status
	if item.Status != store.StatusApproved {
		err := s.store.UpdateContentStatus(ctx, item.ID, item.Status, store.StatusApproved)
		switch {
		case err == nil:
			contentStatus = store.StatusApproved
		case errors.Is(err, store.ErrStatusConflict):
			// Another request moved the item first; report where it is now.
			if latest, getErr := s.store.GetContentItem(ctx, item.ID); getErr == nil {
				contentStatus = latest.Status
			}
			s.log.WithField("content_item_id", item.ID).
				WithField("status", contentStatus).
				Warn("content status changed during approval")
		default:
			return nil, err
		}
	}
	item.Status = contentStatus

	alreadyApproved := current.Caption.ApprovedAt != nil
	webhookTriggered := false
	if !alreadyApproved {
		webhookTriggered = s.notifyApproval(session, caption, item)
		s.mailApproval(ctx, session, caption, item)
		s.afterCaptionWrite(caption, item, revisionApproved, session.Email)
		s.indexContent(ctx, item.ID)
	}

	message := "Caption approved successfully"
	if alreadyApproved {
		message = "Caption was already approved"
	}
	return map[string]any{
		"message":          message,
		"captionId":        caption.ID,
		"contentItemId":    item.ID,
		"contentStatus":    item.Status,
		"caption":          captionJSON(caption),
		"webhookTriggered": webhookTriggered,
	}, nil
}

func (s *Service) notifyApproval(session Session, caption store.Caption, item store.ContentItem) bool {
	if s.notifier == nil {
		return false
	}
	approvedAt := s.now().UTC()
	if caption.ApprovedAt != nil {
		approvedAt = caption.ApprovedAt.UTC()
	}
	return s.notifier.Notify(notify.EventCaptionApproved, map[string]any{
		"captionId":     caption.ID,
		"contentItemId": item.ID,
		"caption": map[string]any{
			"tone":    caption.Tone,
			"content": caption.Content,
			"version": caption.Version,
		},
		"content": map[string]any{
			"filename":    item.Filename,
			"fileType":    item.FileType,
			"driveFileId": item.DriveFileID,
			"driveUrl":    item.DriveURL,
			"embedUrl":    item.EmbedURL,
		},
		"approvedBy": session.UserID,
		"approvedAt": approvedAt,
	})
}

// mailApproval sends the approval notice in the background to the
// addresses listed in settings.
func (s *Service) mailApproval(ctx context.Context, session Session, caption store.Caption, item store.ContentItem) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	settings, err := s.store.SettingValues(ctx, settingApprovalNotifyEmails)
	if err != nil {
		s.log.WithError(err).Warn("load approval recipients")
		return
	}
	recipients := email.ParseRecipients(settings[settingApprovalNotifyEmails])
	if len(recipients) == 0 {
		return
	}
	data := email.ApprovalData{
		Filename:     item.Filename,
		Tone:         string(caption.Tone),
		Caption:      caption.Content,
		ApproverName: firstNonBlank(session.UserName, session.Email),
		ApprovedAt:   s.now(),
		DriveURL:     item.DriveURL,
	}
	if caption.ApprovedAt != nil {
		data.ApprovedAt = *caption.ApprovedAt
	}
	s.goBackground(func() {
		if err := s.mailer.SendApprovalNotice(recipients, data); err != nil {
			s.log.WithError(err).
				WithField("caption_id", caption.ID).
				WithField("recipients", strings.Join(recipients, ",")).
				Warn("approval email failed")
		}
	})
}
