package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestCaptionRevisionLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	base := Revision{CaptionID: "cap-1", ContentItemID: "item-1", Tone: "Casual", Content: "First draft", Status: "pending", Version: 1}

	created := base
	created.Event = "created"
	if _, err := svc.RecordRevision(created, "n8n"); err != nil {
		t.Fatalf("RecordRevision(created) error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "item-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	edited := base
	edited.Event = "edited"
	edited.Content = "Second draft"
	edited.Version = 2
	editCommit, err := svc.RecordRevision(edited, "Avery Reviewer")
	if err != nil {
		t.Fatalf("RecordRevision(edited) error = %v", err)
	}
	if editCommit.Hash == "" || editCommit.Author != "Avery Reviewer" {
		t.Fatalf("unexpected commit: %+v", editCommit)
	}

	approved := edited
	approved.Event = "approved"
	approved.Status = "approved"
	if _, err := svc.RecordRevision(approved, "Avery Reviewer"); err != nil {
		t.Fatalf("RecordRevision(approved) error = %v", err)
	}

	history, err := svc.History("item-1", "cap-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 revisions, got %d", len(history))
	}
	if history[0].Revision.Event != "approved" || history[2].Revision.Event != "created" {
		t.Fatalf("history not newest first: %+v", history)
	}
	if history[1].Revision.Version != 2 || history[1].Revision.Content != "Second draft" {
		t.Fatalf("unexpected edit revision: %+v", history[1].Revision)
	}

	rev, err := svc.GetRevision("item-1", "cap-1", editCommit.Hash)
	if err != nil {
		t.Fatalf("GetRevision() error = %v", err)
	}
	if rev.Content != "Second draft" {
		t.Fatalf("GetRevision() = %+v", rev)
	}
}

func TestHistoryIsolatesCaptions(t *testing.T) {
	svc := New(t.TempDir())

	for _, id := range []string{"cap-a", "cap-b", "cap-a"} {
		if _, err := svc.RecordRevision(Revision{CaptionID: id, ContentItemID: "item-1", Event: "edited", Version: 1}, "Avery"); err != nil {
			t.Fatalf("RecordRevision(%s) error = %v", id, err)
		}
	}

	historyA, err := svc.History("item-1", "cap-a", 0)
	if err != nil {
		t.Fatalf("History(cap-a) error = %v", err)
	}
	if len(historyA) != 2 {
		t.Fatalf("expected 2 revisions for cap-a, got %d", len(historyA))
	}

	if _, err := svc.History("item-1", "cap-missing", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History(missing caption) error = %v, want ErrNoHistory", err)
	}
	if _, err := svc.History("item-missing", "cap-a", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History(missing repo) error = %v, want ErrNoHistory", err)
	}

	if _, err := svc.GetRevision("item-missing", "cap-a", historyA[0].Hash); !errors.Is(err, ErrRevisionNotFound) {
		t.Fatalf("GetRevision(missing repo) error = %v, want ErrRevisionNotFound", err)
	}
	if _, err := svc.GetRevision("item-1", "cap-b", historyA[1].Hash); !errors.Is(err, ErrRevisionNotFound) {
		t.Fatalf("GetRevision(caption absent at commit) error = %v, want ErrRevisionNotFound", err)
	}
}

func TestConcurrentRecordRevision(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rev := Revision{
				CaptionID:     "cap-1",
				ContentItemID: "item-1",
				Event:         "edited",
				Content:       fmt.Sprintf("draft-%02d", idx),
				Version:       idx + 1,
			}
			if _, err := svc.RecordRevision(rev, "Avery"); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Fatalf("RecordRevision() concurrent error = %v", err)
	}

	history, err := svc.History("item-1", "cap-1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("expected %d revisions, got %d", writers, len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	if got := sanitizeEmail("Avery Q_Reviewer!"); got != "Avery.Q.Reviewer" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
	if got := sanitizeEmail("!!!"); got != "user" {
		t.Fatalf("sanitizeEmail() = %q", got)
	}
}
