package app

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"captiondesk/api/internal/config"
	"captiondesk/api/internal/gitrepo"
	"captiondesk/api/internal/logger"
	"captiondesk/api/internal/search"
	"captiondesk/api/internal/store"
)

const (
	testItemID    = "11111111-1111-4111-8111-111111111111"
	testOtherID   = "22222222-2222-4222-8222-222222222222"
	testCaptionID = "33333333-3333-4333-8333-333333333333"
	testUserID    = "44444444-4444-4444-8444-444444444444"
	testDriveID   = "1AbCdEfGhIjKlMnOp"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeStore struct {
	getUserByIDFn         func(context.Context, string) (store.User, error)
	getUserByEmailFn      func(context.Context, string) (store.User, error)
	createUserFn          func(context.Context, store.User) (store.User, error)
	updateUserFn          func(context.Context, store.User) (store.User, error)
	deleteUserFn          func(context.Context, string) error
	countUsersFn          func(context.Context) (int, error)
	upsertContentItemFn   func(context.Context, store.ContentDescriptor) (string, bool, error)
	getContentItemFn      func(context.Context, string) (store.ContentItem, error)
	findByDriveFileIDFn   func(context.Context, string) ([]store.ContentItem, error)
	getByIdentityFn       func(context.Context, string, string) (store.ContentItem, error)
	updateContentStatusFn func(context.Context, string, store.ContentStatus, store.ContentStatus) error
	getContentWithCapsFn  func(context.Context, string) (store.ContentItem, error)
	insertDriveEventFn    func(context.Context, store.DriveEvent) error
	insertCaptionsFn      func(context.Context, string, []store.NewCaption) ([]store.Caption, error)
	getCaptionFn          func(context.Context, string) (store.Caption, error)
	getCaptionWithItemFn  func(context.Context, string) (store.CaptionWithContent, error)
	updateCaptionFn       func(context.Context, string, string, int) (store.Caption, error)
	approveCaptionFn      func(context.Context, string, string) (store.Caption, error)
	settingValuesFn       func(context.Context, ...string) (map[string]string, error)
	upsertSettingsFn      func(context.Context, map[string]string, string) error
	pingFn                func(context.Context) error
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) { return []store.User{}, nil }
func (f *fakeStore) CountUsers(ctx context.Context) (int, error) {
	if f.countUsersFn != nil {
		return f.countUsersFn(ctx)
	}
	return 0, nil
}
func (f *fakeStore) CreateUser(ctx context.Context, user store.User) (store.User, error) {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	user.ID = testUserID
	return user, nil
}
func (f *fakeStore) UpdateUser(ctx context.Context, user store.User) (store.User, error) {
	if f.updateUserFn != nil {
		return f.updateUserFn(ctx, user)
	}
	return user, nil
}
func (f *fakeStore) DeleteUser(ctx context.Context, id string) error {
	if f.deleteUserFn != nil {
		return f.deleteUserFn(ctx, id)
	}
	return nil
}

func (f *fakeStore) UpsertContentItem(ctx context.Context, d store.ContentDescriptor) (string, bool, error) {
	if f.upsertContentItemFn != nil {
		return f.upsertContentItemFn(ctx, d)
	}
	return testItemID, true, nil
}
func (f *fakeStore) GetContentItem(ctx context.Context, id string) (store.ContentItem, error) {
	if f.getContentItemFn != nil {
		return f.getContentItemFn(ctx, id)
	}
	return store.ContentItem{}, sql.ErrNoRows
}
func (f *fakeStore) FindContentItemsByDriveFileID(ctx context.Context, driveFileID string) ([]store.ContentItem, error) {
	if f.findByDriveFileIDFn != nil {
		return f.findByDriveFileIDFn(ctx, driveFileID)
	}
	return []store.ContentItem{}, nil
}
func (f *fakeStore) GetContentItemByIdentity(ctx context.Context, id, driveFileID string) (store.ContentItem, error) {
	if f.getByIdentityFn != nil {
		return f.getByIdentityFn(ctx, id, driveFileID)
	}
	return store.ContentItem{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateContentStatus(ctx context.Context, id string, from, to store.ContentStatus) error {
	if f.updateContentStatusFn != nil {
		return f.updateContentStatusFn(ctx, id, from, to)
	}
	return nil
}
func (f *fakeStore) ListContentWithCaptions(context.Context, store.ContentFilter) ([]store.ContentItem, error) {
	return []store.ContentItem{}, nil
}
func (f *fakeStore) GetContentWithCaptions(ctx context.Context, id string) (store.ContentItem, error) {
	if f.getContentWithCapsFn != nil {
		return f.getContentWithCapsFn(ctx, id)
	}
	return store.ContentItem{}, sql.ErrNoRows
}
func (f *fakeStore) InsertDriveEvent(ctx context.Context, event store.DriveEvent) error {
	if f.insertDriveEventFn != nil {
		return f.insertDriveEventFn(ctx, event)
	}
	return nil
}

func (f *fakeStore) InsertCaptions(ctx context.Context, contentItemID string, items []store.NewCaption) ([]store.Caption, error) {
	if f.insertCaptionsFn != nil {
		return f.insertCaptionsFn(ctx, contentItemID, items)
	}
	created := make([]store.Caption, 0, len(items))
	for _, item := range items {
		created = append(created, store.Caption{
			ID:            testCaptionID,
			ContentItemID: contentItemID,
			Tone:          item.Tone,
			Content:       item.Content,
			Status:        store.CaptionPending,
			Version:       1,
			CreatedAt:     testTime,
			UpdatedAt:     testTime,
		})
	}
	return created, nil
}
func (f *fakeStore) GetCaption(ctx context.Context, id string) (store.Caption, error) {
	if f.getCaptionFn != nil {
		return f.getCaptionFn(ctx, id)
	}
	return store.Caption{}, sql.ErrNoRows
}
func (f *fakeStore) GetCaptionWithContent(ctx context.Context, id string) (store.CaptionWithContent, error) {
	if f.getCaptionWithItemFn != nil {
		return f.getCaptionWithItemFn(ctx, id)
	}
	return store.CaptionWithContent{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateCaptionContent(ctx context.Context, id, content string, expectedVersion int) (store.Caption, error) {
	if f.updateCaptionFn != nil {
		return f.updateCaptionFn(ctx, id, content, expectedVersion)
	}
	return store.Caption{}, sql.ErrNoRows
}
func (f *fakeStore) ApproveCaption(ctx context.Context, id, approverID string) (store.Caption, error) {
	if f.approveCaptionFn != nil {
		return f.approveCaptionFn(ctx, id, approverID)
	}
	return store.Caption{}, sql.ErrNoRows
}

func (f *fakeStore) ListSettings(context.Context) ([]store.Setting, error) { return []store.Setting{}, nil }
func (f *fakeStore) SettingValues(ctx context.Context, keys ...string) (map[string]string, error) {
	if f.settingValuesFn != nil {
		return f.settingValuesFn(ctx, keys...)
	}
	return map[string]string{}, nil
}
func (f *fakeStore) UpsertSettings(ctx context.Context, values map[string]string, updatedBy string) error {
	if f.upsertSettingsFn != nil {
		return f.upsertSettingsFn(ctx, values, updatedBy)
	}
	return nil
}

func (f *fakeStore) UpsertPostMetrics(_ context.Context, m store.PostMetrics) (store.PostMetrics, error) {
	m.FetchedAt = testTime
	return m, nil
}
func (f *fakeStore) GetPostMetrics(context.Context, string) (store.PostMetrics, error) {
	return store.PostMetrics{}, sql.ErrNoRows
}
func (f *fakeStore) ListPostMetrics(context.Context) ([]store.PostMetrics, error) {
	return []store.PostMetrics{}, nil
}
func (f *fakeStore) LinkSummaries(context.Context, string) ([]store.LinkSummary, error) {
	return []store.LinkSummary{}, nil
}
func (f *fakeStore) OrphanedCaptions(context.Context) ([]store.OrphanCaption, error) {
	return []store.OrphanCaption{}, nil
}
func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeTokens struct {
	mu       sync.Mutex
	sessions map[string]string
	revoked  map[string]bool
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{sessions: map[string]string{}, revoked: map[string]bool{}}
}

func (f *fakeTokens) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = userID
	return nil
}
func (f *fakeTokens) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.sessions[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}
func (f *fakeTokens) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}
func (f *fakeTokens) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}
func (f *fakeTokens) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

type notifyCall struct {
	event   string
	payload map[string]any
}

type fakeNotifier struct {
	mu     sync.Mutex
	calls  []notifyCall
	sendFn func(context.Context, string, string, map[string]any) error
}

func (f *fakeNotifier) Enabled() bool { return true }
func (f *fakeNotifier) Notify(event string, payload map[string]any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{event: event, payload: payload})
	return true
}
func (f *fakeNotifier) Send(ctx context.Context, url, event string, payload map[string]any) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, url, event, payload)
	}
	return nil
}
func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRevisions struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeRevisions) RecordRevision(rev gitrepo.Revision, _ string) (gitrepo.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, rev.Event)
	return gitrepo.Commit{Hash: "abc123"}, nil
}
func (f *fakeRevisions) History(string, string, int) ([]gitrepo.Commit, error) {
	return nil, gitrepo.ErrNoHistory
}
func (f *fakeRevisions) GetRevision(string, string, string) (gitrepo.Revision, error) {
	return gitrepo.Revision{}, gitrepo.ErrRevisionNotFound
}

type fakeSearch struct {
	mu       sync.Mutex
	captions []search.CaptionRecord
	contents []search.ContentRecord
}

func (f *fakeSearch) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text, Engine: "fake"}
}
func (f *fakeSearch) IndexCaption(c search.CaptionRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions = append(f.captions, c)
}
func (f *fakeSearch) IndexContent(c search.ContentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents = append(f.contents, c)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret:        "test-secret",
		AccessTTL:        time.Hour,
		RefreshTTL:       24 * time.Hour,
		WebhookDedupeTTL: time.Hour,
	}
}

func newTestService(fs *fakeStore, deps Dependencies) *Service {
	deps.Store = fs
	if deps.Tokens == nil {
		deps.Tokens = newFakeTokens()
	}
	svc := New(testConfig(), deps, logger.Discard())
	svc.now = func() time.Time { return testTime }
	return svc
}

func pendingItem() store.ContentItem {
	return store.ContentItem{
		ID:          testItemID,
		DriveFileID: testDriveID,
		Filename:    "spring-launch.mp4",
		FileType:    "video",
		Status:      store.StatusPendingReview,
		DriveURL:    "https://drive.google.com/file/d/" + testDriveID + "/view",
		UploadedAt:  testTime,
		UpdatedAt:   testTime,
		Captions:    []store.Caption{},
	}
}
