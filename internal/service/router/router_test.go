package router_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/annai/internal/classifier"
	"github.com/ashita-ai/annai/internal/invoker"
	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/service/router"
	"github.com/ashita-ai/annai/internal/storage"
)

type fakeStore struct {
	skills   map[int64]model.Skill
	attempts map[string]model.RouteAttempt

	listResult []model.RouteAttempt
	listTotal  int
	gotLimit   int
	gotOffset  int

	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		skills:   map[int64]model.Skill{},
		attempts: map[string]model.RouteAttempt{},
	}
}

func (f *fakeStore) GetSkill(_ context.Context, id int64) (model.Skill, error) {
	s, ok := f.skills[id]
	if !ok {
		return model.Skill{}, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) InsertRouteAttempt(_ context.Context, a model.RouteAttempt) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, ok := f.attempts[a.RequestID]; ok {
		return storage.ErrDuplicateRequestID
	}
	f.attempts[a.RequestID] = a
	return nil
}

func (f *fakeStore) RouteAttemptExists(_ context.Context, requestID string) (bool, error) {
	_, ok := f.attempts[requestID]
	return ok, nil
}

func (f *fakeStore) GetRouteAttemptByRequestID(_ context.Context, requestID string) (model.RouteAttempt, error) {
	a, ok := f.attempts[requestID]
	if !ok {
		return model.RouteAttempt{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) ListRouteAttemptsByUser(_ context.Context, _ uuid.UUID, limit, offset int) ([]model.RouteAttempt, int, error) {
	f.gotLimit = limit
	f.gotOffset = offset
	return f.listResult, f.listTotal, nil
}

type fakeClassifier struct {
	intent classifier.Intent
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, string) (classifier.Intent, error) {
	f.calls++
	return f.intent, f.err
}

type fakeInvoker struct {
	response map[string]any
	err      error
	calls    int
	gotSkill model.Skill
	gotInput string
}

func (f *fakeInvoker) Invoke(_ context.Context, skill model.Skill, input string, _ map[string]any) (map[string]any, error) {
	f.calls++
	f.gotSkill = skill
	f.gotInput = input
	return f.response, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func resumeSkill() model.Skill {
	endpoint := "http://skills.internal/resume"
	return model.Skill{ID: 1, Name: "resume", Version: "1.0.0", Endpoint: &endpoint, TimeoutMs: 2000, IsActive: true}
}

func matchedIntent(id int64, name string) classifier.Intent {
	return classifier.Intent{SkillID: &id, SkillName: name, Confidence: classifier.ConfidenceMatched}
}

func TestRouteSuccess(t *testing.T) {
	store := newFakeStore()
	store.skills[1] = resumeSkill()
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{response: map[string]any{"advice": "quantify your wins"}}
	r := router.New(store, cls, inv, testLogger())

	userID := uuid.New()
	env, err := r.Route(context.Background(), &userID, model.RouteRequest{
		Input:     "help with my resume",
		RequestID: "req_abc",
		Context:   map[string]any{"locale": "en"},
	}, map[string]any{"user_agent": "test"})

	require.NoError(t, err)
	assert.True(t, env.Success)
	assert.Equal(t, "req_abc", env.RequestID)
	require.NotNil(t, env.Data)
	assert.Equal(t, "resume", env.Data.Route.Skill)
	assert.Equal(t, 1.0, env.Data.Route.Confidence)
	assert.Equal(t, "quantify your wins", env.Data.Route.Response["advice"])
	assert.Equal(t, "help with my resume", inv.gotInput)

	persisted, ok := store.attempts["req_abc"]
	require.True(t, ok)
	assert.Equal(t, model.RouteSuccess, persisted.Status)
	require.NotNil(t, persisted.UserID)
	assert.Equal(t, userID, *persisted.UserID)
	require.NotNil(t, persisted.SelectedSkillID)
	assert.Equal(t, int64(1), *persisted.SelectedSkillID)
	require.NotNil(t, persisted.ConfidenceScore)
	assert.Equal(t, 1.0, *persisted.ConfidenceScore)
	assert.Equal(t, "resume", persisted.Metadata["skill_name"])
}

func TestRouteGeneratesRequestID(t *testing.T) {
	store := newFakeStore()
	store.skills[1] = resumeSkill()
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{response: map[string]any{}}
	r := router.New(store, cls, inv, testLogger())

	env, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "resume"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, env.RequestID)
	assert.Contains(t, env.RequestID, "req_")

	persisted, ok := store.attempts[env.RequestID]
	require.True(t, ok)
	assert.Nil(t, persisted.UserID)
}

func TestRouteDuplicateRequestIDRejectedBeforeInvocation(t *testing.T) {
	store := newFakeStore()
	store.skills[1] = resumeSkill()
	store.attempts["req_dup"] = model.RouteAttempt{RequestID: "req_dup", Status: model.RouteSuccess}
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{response: map[string]any{}}
	r := router.New(store, cls, inv, testLogger())

	_, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "resume", RequestID: "req_dup"}, nil)

	assert.ErrorIs(t, err, router.ErrDuplicateRequest)
	assert.Zero(t, cls.calls)
	assert.Zero(t, inv.calls)
}

func TestRouteDuplicateRaceLoserReportsConflict(t *testing.T) {
	// Two submissions with the same request id can both pass the up-front
	// existence check. The loser's insert affects zero rows; it must report
	// the conflict, never a result of its own.
	store := newFakeStore()
	store.skills[1] = resumeSkill()
	store.insertErr = storage.ErrDuplicateRequestID
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{response: map[string]any{"ok": true}}
	r := router.New(store, cls, inv, testLogger())

	env, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "resume", RequestID: "req_race"}, nil)
	assert.ErrorIs(t, err, router.ErrDuplicateRequest)
	assert.False(t, env.Success)

	// Same outcome when the loser's own invocation failed.
	inv.response = nil
	inv.err = &invoker.RemoteError{Skill: "resume", StatusCode: 503, Message: "overloaded"}
	_, err = r.Route(context.Background(), nil, model.RouteRequest{Input: "resume", RequestID: "req_race"}, nil)
	assert.ErrorIs(t, err, router.ErrDuplicateRequest)
}

func TestRouteNoSkillsAvailable(t *testing.T) {
	store := newFakeStore()
	cls := &fakeClassifier{intent: classifier.Intent{SkillName: classifier.FallbackIntent}}
	inv := &fakeInvoker{}
	r := router.New(store, cls, inv, testLogger())

	_, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "anything"}, nil)

	assert.ErrorIs(t, err, router.ErrNoSkillsAvailable)
	assert.Zero(t, inv.calls)
	assert.Empty(t, store.attempts)
}

func TestRouteSkillUnavailable(t *testing.T) {
	// The skill can disappear or be deactivated between classification and
	// resolution; neither case invokes or persists anything.
	store := newFakeStore()
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{}
	r := router.New(store, cls, inv, testLogger())

	_, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "resume"}, nil)
	assert.ErrorIs(t, err, router.ErrSkillUnavailable)

	deactivated := resumeSkill()
	deactivated.IsActive = false
	store.skills[1] = deactivated

	_, err = r.Route(context.Background(), nil, model.RouteRequest{Input: "resume"}, nil)
	assert.ErrorIs(t, err, router.ErrSkillUnavailable)
	assert.Zero(t, inv.calls)
	assert.Empty(t, store.attempts)
}

func TestRouteRemoteFailurePersistsFailedAttempt(t *testing.T) {
	store := newFakeStore()
	store.skills[1] = resumeSkill()
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{err: &invoker.RemoteError{Skill: "resume", StatusCode: 503, Message: "overloaded"}}
	r := router.New(store, cls, inv, testLogger())

	_, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "resume", RequestID: "req_fail"}, nil)

	var invErr *router.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, "req_fail", invErr.RequestID)
	assert.Equal(t, model.RouteFailed, invErr.Status)
	assert.Equal(t, "resume", invErr.Skill)
	assert.Equal(t, 1.0, invErr.Confidence)
	assert.GreaterOrEqual(t, invErr.ExecutionTimeMs, 0)

	persisted, ok := store.attempts["req_fail"]
	require.True(t, ok)
	assert.Equal(t, model.RouteFailed, persisted.Status)
	require.NotNil(t, persisted.ErrorMessage)
	assert.Contains(t, *persisted.ErrorMessage, "503")
}

func TestRouteTimeoutPersistsTimeoutStatus(t *testing.T) {
	store := newFakeStore()
	store.skills[1] = resumeSkill()
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{err: &invoker.TimeoutError{Skill: "resume", Timeout: 2 * time.Second}}
	r := router.New(store, cls, inv, testLogger())

	_, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "resume", RequestID: "req_slow"}, nil)

	var invErr *router.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, model.RouteTimeout, invErr.Status)
	assert.Equal(t, model.RouteTimeout, store.attempts["req_slow"].Status)
}

func TestRoutePersistFailureDoesNotMaskSuccess(t *testing.T) {
	store := newFakeStore()
	store.skills[1] = resumeSkill()
	store.insertErr = errors.New("connection lost")
	cls := &fakeClassifier{intent: matchedIntent(1, "resume")}
	inv := &fakeInvoker{response: map[string]any{"ok": true}}
	r := router.New(store, cls, inv, testLogger())

	env, err := r.Route(context.Background(), nil, model.RouteRequest{Input: "resume"}, nil)
	require.NoError(t, err)
	assert.True(t, env.Success)
}

func TestRecordFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	r := router.New(store, &fakeClassifier{}, &fakeInvoker{}, testLogger())

	r.RecordFailure(context.Background(), "req_panic", nil, "input", nil, 120*time.Millisecond, "handler panic")

	persisted, ok := store.attempts["req_panic"]
	require.True(t, ok)
	assert.Equal(t, model.RouteFailed, persisted.Status)
	require.NotNil(t, persisted.ErrorMessage)
	assert.Equal(t, "handler panic", *persisted.ErrorMessage)
	assert.Equal(t, 120, persisted.ExecutionTimeMs)

	// Existing row stays untouched and no error surfaces.
	r.RecordFailure(context.Background(), "req_panic", nil, "other", nil, 0, "second write")
	assert.Equal(t, "input", store.attempts["req_panic"].InputText)
}

func TestGetHistoryPagination(t *testing.T) {
	store := newFakeStore()
	store.listTotal = 45
	store.listResult = []model.RouteAttempt{{RequestID: "req_1"}}
	r := router.New(store, &fakeClassifier{}, &fakeInvoker{}, testLogger())

	page, err := r.GetHistory(context.Background(), uuid.New(), 2, 20)
	require.NoError(t, err)

	assert.Equal(t, 20, store.gotLimit)
	assert.Equal(t, 20, store.gotOffset)
	assert.Equal(t, 45, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.Page)
	assert.Equal(t, 20, page.Pagination.Limit)
	assert.Equal(t, 3, page.Pagination.Pages)
}

func TestGetHistoryClampsAndDefaults(t *testing.T) {
	store := newFakeStore()
	r := router.New(store, &fakeClassifier{}, &fakeInvoker{}, testLogger())

	page, err := r.GetHistory(context.Background(), uuid.New(), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Pagination.Page)
	assert.Equal(t, 20, page.Pagination.Limit)
	assert.NotNil(t, page.Routes)
	assert.Equal(t, 0, page.Pagination.Pages)

	_, err = r.GetHistory(context.Background(), uuid.New(), 1, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, store.gotLimit)
}

func TestGetByRequestIDOwnership(t *testing.T) {
	owner := uuid.New()
	stranger := uuid.New()
	store := newFakeStore()
	store.attempts["req_owned"] = model.RouteAttempt{RequestID: "req_owned", UserID: &owner}
	store.attempts["req_anon"] = model.RouteAttempt{RequestID: "req_anon"}
	r := router.New(store, &fakeClassifier{}, &fakeInvoker{}, testLogger())

	ctx := context.Background()

	_, err := r.GetByRequestID(ctx, "req_owned", &owner, model.RoleUser)
	assert.NoError(t, err)

	_, err = r.GetByRequestID(ctx, "req_owned", &stranger, model.RoleUser)
	assert.ErrorIs(t, err, router.ErrForbidden)

	_, err = r.GetByRequestID(ctx, "req_owned", nil, "")
	assert.ErrorIs(t, err, router.ErrForbidden)

	_, err = r.GetByRequestID(ctx, "req_owned", &stranger, model.RoleAdmin)
	assert.NoError(t, err)

	_, err = r.GetByRequestID(ctx, "req_anon", nil, "")
	assert.NoError(t, err)

	_, err = r.GetByRequestID(ctx, "req_missing", &owner, model.RoleUser)
	assert.ErrorIs(t, err, router.ErrNotFound)
}
