package export

import (
	"context"
	"fmt"
	"time"

	"captiondesk/api/internal/store"
	"github.com/sirupsen/logrus"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetContentWithCaptions(ctx context.Context, id string) (store.ContentItem, error)
}

// Service renders review sheets and archives them when an Archiver is set.
type Service struct {
	store     DataStore
	archiver  Archiver
	log       logrus.FieldLogger
	renderers map[Format]renderFunc
	now       func() time.Time
}

// NewService creates a new export service. archiver may be nil.
func NewService(store DataStore, archiver Archiver, log logrus.FieldLogger) *Service {
	return &Service{
		store:    store,
		archiver: archiver,
		log:      log.WithField("component", "export"),
		renderers: map[Format]renderFunc{
			FormatPDF:  renderPDF,
			FormatDOCX: renderDOCX,
		},
		now: time.Now,
	}
}

// Export generates the review sheet of a content item in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	spec, ok := formatSpecs[req.Format]
	render := s.renderers[req.Format]
	if !ok || render == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	item, err := s.store.GetContentWithCaptions(ctx, req.ContentItemID)
	if err != nil {
		return nil, fmt.Errorf("get content item: %w", err)
	}

	now := s.now()
	html, err := RenderSheetHTML(sheetFromItem(item, req.RequestedBy, now))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	data, err := render(ctx, html)
	if err != nil {
		return nil, err
	}
	result := &Result{
		Data:     data,
		Filename: sanitizeFilename(item.Filename) + spec.extension,
		MimeType: spec.mimeType,
	}

	if s.archiver != nil {
		key := objectKey(item.ID, result.Filename, now)
		if err := s.archiver.Put(ctx, key, result.Data, result.MimeType); err != nil {
			s.log.WithError(err).WithField("content_item_id", item.ID).Warn("archive export failed")
		} else {
			result.ObjectKey = key
		}
	}
	return result, nil
}
