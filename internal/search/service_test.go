package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	meili "github.com/meilisearch/meilisearch-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	results []Result
	total   int
	err     error
	got     Query
}

func (f *fakeSearcher) Search(_ context.Context, q Query) ([]Result, int, error) {
	f.got = q
	return f.results, f.total, f.err
}

func (f *fakeSearcher) Healthy() bool { return true }

func TestServiceFallsBackToPostgres(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fallback := &fakeSearcher{results: []Result{{Type: ResultCaption, ID: "cap-1"}}, total: 1}
	svc := NewService(nil, fallback, logger)

	resp := svc.Search(context.Background(), Query{Text: "launch", FilterType: ResultCaption})
	assert.Equal(t, "postgres", resp.Engine)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "launch", fallback.got.Text)
	require.Len(t, resp.Results, 1)
}

func TestServiceReturnsEmptyResultsOnError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	svc := NewService(nil, &fakeSearcher{err: errors.New("boom")}, logger)

	resp := svc.Search(context.Background(), Query{Text: "launch"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestHitToResultPrefersHighlights(t *testing.T) {
	hit := meili.Hit{
		"id":            json.RawMessage(`"cap-1"`),
		"contentItemId": json.RawMessage(`"item-1"`),
		"content":       json.RawMessage(`"Big launch today"`),
		"filename":      json.RawMessage(`"promo.mp4"`),
		"status":        json.RawMessage(`"pending"`),
		"_formatted":    json.RawMessage(`{"content":"Big <mark>launch</mark> today","version":2}`),
	}

	r := hitToResult(hit, ResultCaption)
	assert.Equal(t, "cap-1", r.ID)
	assert.Equal(t, "item-1", r.ContentItemID)
	assert.Equal(t, "promo.mp4", r.Title)
	assert.Equal(t, "Big <mark>launch</mark> today", r.Snippet)
	assert.Equal(t, "pending", r.Status)
}

func TestPgFTSSkipsBlankQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	results, total, err := NewPgFTS(db).Search(context.Background(), Query{Text: "   "})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFTSQueriesCaptionsOnly(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM`).
		WithArgs("launch", "approved").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)SELECT type, id, title, snippet, content_item_id, status.*FROM captions c`).
		WithArgs("launch", "approved").
		WillReturnRows(sqlmock.NewRows([]string{"type", "id", "title", "snippet", "content_item_id", "status"}).
			AddRow("caption", "cap-1", "promo.mp4", "Big <b>launch</b>", "item-1", "approved"))

	results, total, err := NewPgFTS(db).Search(context.Background(), Query{Text: "launch", FilterType: ResultCaption, Status: "approved"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, results, 1)
	assert.Equal(t, ResultCaption, results[0].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}
