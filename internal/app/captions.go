package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"captiondesk/api/internal/gitrepo"
	"captiondesk/api/internal/search"
	"captiondesk/api/internal/store"
	"captiondesk/api/internal/util"
)

const (
	maxCaptionBatch     = 10
	maxCaptionLength    = 5000
	minGeneratedCaption = 10
	revisionCreated     = "created"
	revisionGenerated   = "generated"
	revisionEdited      = "edited"
	revisionApproved    = "approved"
)

type CaptionInput struct {
	Tone    string `json:"tone" validate:"tone"`
	Content string `json:"content" validate:"notblank,max=5000"`
}

type captionEdit struct {
	Content string `json:"content" validate:"notblank,max=5000"`
}

// CreateCaptions stores a batch of reviewer-written captions in one
// transaction.
func (s *Service) CreateCaptions(ctx context.Context, session Session, contentItemID string, inputs []CaptionInput) ([]store.Caption, error) {
	if !util.IsUUID(contentItemID) {
		return nil, errInvalidInput("Invalid content item id", map[string]any{"contentItemId": contentItemID})
	}
	if len(inputs) == 0 || len(inputs) > maxCaptionBatch {
		return nil, errInvalidInput(fmt.Sprintf("Between 1 and %d captions are required", maxCaptionBatch),
			map[string]any{"count": len(inputs)})
	}
	normalized := make([]CaptionInput, len(inputs))
	var problems []fieldProblem
	for i, input := range inputs {
		normalized[i] = CaptionInput{Tone: strings.TrimSpace(input.Tone), Content: strings.TrimSpace(input.Content)}
		problems = append(problems, validateStruct(normalized[i], i)...)
	}
	if len(problems) > 0 {
		return nil, errValidation("Invalid captions", problems)
	}

	item, err := s.store.GetContentItem(ctx, contentItemID)
	if err != nil {
		return nil, storeNotFound(err, "Content item not found", map[string]any{"contentItemId": contentItemID})
	}

	rows := make([]store.NewCaption, 0, len(normalized))
	for _, input := range normalized {
		rows = append(rows, store.NewCaption{Tone: store.Tone(input.Tone), Content: input.Content})
	}
	created, err := s.store.InsertCaptions(ctx, item.ID, rows)
	if err != nil {
		if store.IsForeignKeyViolation(err) {
			return nil, errNotFound("Content item not found", map[string]any{"contentItemId": item.ID})
		}
		return nil, err
	}

	for _, caption := range created {
		s.afterCaptionWrite(caption, item, revisionCreated, session.Email)
	}
	return created, nil
}

// UpdateCaption replaces the caption text if the caller saw the current
// version. A nil expectedVersion means the version read just before the
// write, which still fails on a concurrent edit.
func (s *Service) UpdateCaption(ctx context.Context, session Session, id, content string, expectedVersion *int) (store.Caption, error) {
	if !util.IsUUID(id) {
		return store.Caption{}, errInvalidInput("Invalid caption id", map[string]any{"captionId": id})
	}
	content = strings.TrimSpace(content)
	if problems := validateStruct(captionEdit{Content: content}, -1); len(problems) > 0 {
		return store.Caption{}, errValidation("Invalid caption content", problems)
	}

	var expected int
	if expectedVersion != nil {
		expected = *expectedVersion
	} else {
		current, err := s.store.GetCaption(ctx, id)
		if err != nil {
			return store.Caption{}, storeNotFound(err, "Caption not found", map[string]any{"captionId": id})
		}
		expected = current.Version
	}

	updated, err := s.store.UpdateCaptionContent(ctx, id, content, expected)
	if err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			details := map[string]any{"captionId": id, "expectedVersion": expected}
			if current, getErr := s.store.GetCaption(ctx, id); getErr == nil {
				details["currentVersion"] = current.Version
			}
			return store.Caption{}, errConflict("Caption was modified by someone else; reload and retry", details)
		}
		return store.Caption{}, storeNotFound(err, "Caption not found", map[string]any{"captionId": id})
	}

	item, err := s.store.GetContentItem(ctx, updated.ContentItemID)
	if err != nil {
		s.log.WithError(err).WithField("caption_id", id).Warn("load content for caption side effects")
	}
	s.afterCaptionWrite(updated, item, revisionEdited, session.Email)
	return updated, nil
}

// filterGeneratedCaptions keeps captions with a known tone and a usable
// amount of text.
func filterGeneratedCaptions(inputs []CaptionInput) []store.NewCaption {
	valid := make([]store.NewCaption, 0, len(inputs))
	for _, input := range inputs {
		tone := store.Tone(strings.TrimSpace(input.Tone))
		content := strings.TrimSpace(input.Content)
		length := utf8.RuneCountInString(content)
		if !tone.Valid() || length < minGeneratedCaption || length > maxCaptionLength {
			continue
		}
		valid = append(valid, store.NewCaption{Tone: tone, Content: content})
	}
	return valid
}

// afterCaptionWrite archives the revision and refreshes the search index.
// Both are best effort.
func (s *Service) afterCaptionWrite(caption store.Caption, item store.ContentItem, event, author string) {
	if s.revisions != nil {
		_, err := s.revisions.RecordRevision(gitrepo.Revision{
			CaptionID:     caption.ID,
			ContentItemID: caption.ContentItemID,
			Event:         event,
			Tone:          string(caption.Tone),
			Content:       caption.Content,
			Status:        string(caption.Status),
			Version:       caption.Version,
		}, firstNonBlank(author, "automation@captiondesk.local"))
		if err != nil {
			s.log.WithError(err).WithField("caption_id", caption.ID).Warn("record caption revision")
		}
	}
	if s.search != nil {
		s.search.IndexCaption(search.CaptionRecord{
			ID:            caption.ID,
			ContentItemID: caption.ContentItemID,
			Filename:      item.Filename,
			Tone:          string(caption.Tone),
			Content:       caption.Content,
			Status:        string(caption.Status),
			Version:       caption.Version,
		})
	}
}
