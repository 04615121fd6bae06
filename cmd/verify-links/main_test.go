package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"captiondesk/api/internal/store"
)

type stubLinks struct {
	summaries []store.LinkSummary
	orphans   []store.OrphanCaption
	err       error
	gotDrive  string
}

func (s *stubLinks) LinkSummaries(_ context.Context, driveFileID string) ([]store.LinkSummary, error) {
	s.gotDrive = driveFileID
	return s.summaries, s.err
}

func (s *stubLinks) OrphanedCaptions(context.Context) ([]store.OrphanCaption, error) {
	return s.orphans, nil
}

func TestRunHealthy(t *testing.T) {
	log, hook := test.NewNullLogger()
	links := &stubLinks{summaries: []store.LinkSummary{
		{ContentItemID: "item-1", DriveFileID: "1AbCdEfGhIjK", Filename: "launch.mp4", FileType: "video", CaptionCount: 3},
	}}

	code := run(context.Background(), links, "1AbCdEfGhIjK", log)

	assert.Equal(t, 0, code)
	assert.Equal(t, "1AbCdEfGhIjK", links.gotDrive)
	last := hook.LastEntry()
	assert.Equal(t, "link verification finished", last.Message)
	assert.Equal(t, 0, last.Data["orphans"])
}

func TestRunReportsOrphans(t *testing.T) {
	log, hook := test.NewNullLogger()
	links := &stubLinks{orphans: []store.OrphanCaption{
		{CaptionID: "cap-1", ContentItemID: "gone", Tone: "Casual", CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)},
	}}

	code := run(context.Background(), links, "", log)

	assert.Equal(t, 1, code)
	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "orphaned caption" {
			warned = true
			assert.Equal(t, "cap-1", entry.Data["caption_id"])
		}
	}
	assert.True(t, warned)
}

func TestRunStoreFailure(t *testing.T) {
	log, _ := test.NewNullLogger()

	code := run(context.Background(), &stubLinks{err: errors.New("connection refused")}, "", log)

	assert.Equal(t, 2, code)
}

func TestRealMainReturnsCodeOnBadInput(t *testing.T) {
	assert.Equal(t, 2, realMain([]string{"-no-such-flag"}))

	t.Setenv("DATABASE_URL", "postgres://user@%zz/captiondesk")
	assert.Equal(t, 2, realMain([]string{"-env", t.TempDir() + "/missing.env"}))
}
