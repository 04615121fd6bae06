package app

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"captiondesk/api/internal/store"
)

func TestCreateCaptionsValidatesEveryInput(t *testing.T) {
	svc := newTestService(&fakeStore{
		getContentItemFn: func(context.Context, string) (store.ContentItem, error) { return pendingItem(), nil },
	}, Dependencies{})

	_, err := svc.CreateCaptions(context.Background(), Session{}, testItemID, []CaptionInput{
		{Tone: "Professional", Content: "Fine caption"},
		{Tone: "Loud", Content: "   "},
	})

	domainErr := requireDomainError(t, err, http.StatusBadRequest, codeValidation)
	problems, ok := domainErr.Details.([]fieldProblem)
	require.True(t, ok)
	require.Len(t, problems, 2)
	for _, problem := range problems {
		require.NotNil(t, problem.Index)
		assert.Equal(t, 1, *problem.Index)
	}
}

func TestCreateCaptionsBatchLimit(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{})
	inputs := make([]CaptionInput, maxCaptionBatch+1)
	for i := range inputs {
		inputs[i] = CaptionInput{Tone: "Casual", Content: "caption text"}
	}

	_, err := svc.CreateCaptions(context.Background(), Session{}, testItemID, inputs)

	requireDomainError(t, err, http.StatusBadRequest, codeInvalidInput)
}

func TestCreateCaptionsMissingItem(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{})

	_, err := svc.CreateCaptions(context.Background(), Session{}, testItemID, []CaptionInput{
		{Tone: "Casual", Content: "caption text"},
	})

	requireDomainError(t, err, http.StatusNotFound, codeNotFound)
}

func TestCreateCaptionsRecordsRevisions(t *testing.T) {
	revisions := &fakeRevisions{}
	svc := newTestService(&fakeStore{
		getContentItemFn: func(context.Context, string) (store.ContentItem, error) { return pendingItem(), nil },
	}, Dependencies{Revisions: revisions})

	created, err := svc.CreateCaptions(context.Background(), Session{Email: "editor@example.com"}, testItemID, []CaptionInput{
		{Tone: "Casual", Content: "  first caption  "},
		{Tone: "Engaging", Content: "second caption"},
	})

	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.Equal(t, "first caption", created[0].Content)
	assert.Equal(t, []string{revisionCreated, revisionCreated}, revisions.events)
}

func TestUpdateCaptionVersionConflict(t *testing.T) {
	fs := &fakeStore{
		updateCaptionFn: func(context.Context, string, string, int) (store.Caption, error) {
			return store.Caption{}, store.ErrVersionConflict
		},
		getCaptionFn: func(context.Context, string) (store.Caption, error) {
			caption := pendingCaption()
			caption.Version = 4
			return caption, nil
		},
	}
	svc := newTestService(fs, Dependencies{})
	expected := 3

	_, err := svc.UpdateCaption(context.Background(), Session{}, testCaptionID, "Updated copy", &expected)

	domainErr := requireDomainError(t, err, http.StatusConflict, codeConflict)
	assert.Equal(t, map[string]any{
		"captionId":       testCaptionID,
		"expectedVersion": 3,
		"currentVersion":  4,
	}, domainErr.Details)
}

func TestUpdateCaptionDefaultsToCurrentVersion(t *testing.T) {
	var gotVersion int
	fs := &fakeStore{
		getCaptionFn: func(context.Context, string) (store.Caption, error) {
			caption := pendingCaption()
			caption.Version = 7
			return caption, nil
		},
		updateCaptionFn: func(_ context.Context, _ string, content string, expectedVersion int) (store.Caption, error) {
			gotVersion = expectedVersion
			caption := pendingCaption()
			caption.Content = content
			caption.Version = expectedVersion + 1
			return caption, nil
		},
		getContentItemFn: func(context.Context, string) (store.ContentItem, error) { return pendingItem(), nil },
	}
	revisions := &fakeRevisions{}
	svc := newTestService(fs, Dependencies{Revisions: revisions})

	updated, err := svc.UpdateCaption(context.Background(), Session{}, testCaptionID, " Updated copy ", nil)

	require.NoError(t, err)
	assert.Equal(t, 7, gotVersion)
	assert.Equal(t, 8, updated.Version)
	assert.Equal(t, "Updated copy", updated.Content)
	assert.Equal(t, []string{revisionEdited}, revisions.events)
}

func TestUpdateCaptionRejectsOversizedContent(t *testing.T) {
	svc := newTestService(&fakeStore{}, Dependencies{})

	_, err := svc.UpdateCaption(context.Background(), Session{}, testCaptionID, strings.Repeat("é", maxCaptionLength+1), nil)

	requireDomainError(t, err, http.StatusBadRequest, codeValidation)
}

func TestCaptionLengthIsMeasuredAfterTrimming(t *testing.T) {
	text := strings.Repeat("x", maxCaptionLength)
	padded := "   " + text + "\n\n  "
	var stored []string
	fs := &fakeStore{
		getContentItemFn: func(context.Context, string) (store.ContentItem, error) { return pendingItem(), nil },
		updateCaptionFn: func(_ context.Context, _ string, content string, expected int) (store.Caption, error) {
			stored = append(stored, content)
			caption := pendingCaption()
			caption.Content = content
			caption.Version = expected + 1
			return caption, nil
		},
		insertCaptionsFn: func(_ context.Context, contentItemID string, items []store.NewCaption) ([]store.Caption, error) {
			for _, item := range items {
				stored = append(stored, item.Content)
			}
			return []store.Caption{pendingCaption()}, nil
		},
	}
	svc := newTestService(fs, Dependencies{})
	version := 1

	_, err := svc.UpdateCaption(context.Background(), Session{}, testCaptionID, padded, &version)
	require.NoError(t, err)
	_, err = svc.CreateCaptions(context.Background(), Session{}, testItemID, []CaptionInput{{Tone: " Casual ", Content: padded}})
	require.NoError(t, err)

	assert.Equal(t, []string{text, text}, stored)
}

func TestFilterGeneratedCaptions(t *testing.T) {
	got := filterGeneratedCaptions([]CaptionInput{
		{Tone: "Professional", Content: "exactly 10"},
		{Tone: "Professional", Content: "  nine ch  "},
		{Tone: "professional", Content: "lowercase tone is rejected"},
		{Tone: " Engaging ", Content: strings.Repeat("x", maxCaptionLength)},
		{Tone: "Casual", Content: strings.Repeat("x", maxCaptionLength+1)},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "exactly 10", got[0].Content)
	assert.Equal(t, store.ToneEngaging, got[1].Tone)
}
