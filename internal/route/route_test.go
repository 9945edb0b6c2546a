package route

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanashi-ai/hanashi/internal/agents"
	"github.com/hanashi-ai/hanashi/internal/catalog"
	"github.com/hanashi-ai/hanashi/internal/dispatch"
	"github.com/hanashi-ai/hanashi/internal/intent"
	"github.com/hanashi-ai/hanashi/internal/model"
)

type fakeSource struct {
	entities []model.Entity
}

func (f *fakeSource) ListEntities(_ context.Context) ([]model.Entity, error) {
	return f.entities, nil
}

type fakeCaller struct {
	mu    sync.Mutex
	calls []model.ServiceCall
	err   error
}

func (f *fakeCaller) CallService(_ context.Context, call model.ServiceCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeCaller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeAgent struct {
	name   string
	answer string
	err    error
	calls  int
}

func (f *fakeAgent) Name() string { return f.name }

func (f *fakeAgent) Process(_ context.Context, _ model.Turn) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testEntities() []model.Entity {
	return []model.Entity{
		{ID: "light.office_light", Domain: "light", Name: "Office Light", Aliases: []string{"office light"}},
		{ID: "fan.great_room_fan", Domain: "fan", Name: "Great Room Fan", Aliases: []string{"great room fan"}},
	}
}

func newTestRouter(t *testing.T, caller dispatch.Caller, primary, fallback agents.Agent, debug model.DebugLevel) *Router {
	t.Helper()
	cat := catalog.New(&fakeSource{entities: testEntities()}, time.Minute, nil, testLogger())
	_, err := cat.Refresh(context.Background())
	require.NoError(t, err)

	return New(Config{
		Catalog:    cat,
		Extractor:  intent.New(nil),
		Dispatcher: dispatch.New(caller, 0.88, 0.06, testLogger()),
		Primary:    primary,
		Fallback:   fallback,
		Debug:      debug,
		Logger:     testLogger(),
	})
}

func newTurn(text string) model.Turn {
	return model.Turn{ID: uuid.New(), ConversationID: uuid.New(), Text: text, ReceivedAt: time.Now()}
}

func TestRouteDeterministicSuccess(t *testing.T) {
	caller := &fakeCaller{}
	primary := &fakeAgent{name: "primary", answer: "should not be called"}
	r := newTestRouter(t, caller, primary, agents.Noop{}, model.DebugNone)

	decision, err := r.Route(context.Background(), newTurn("turn off the office line"))
	require.NoError(t, err)
	assert.Equal(t, model.StageDeterministic, decision.Stage)
	assert.Equal(t, model.OutcomeSuccess, decision.Outcome)
	require.NotNil(t, decision.Executed)
	assert.Equal(t, "light.office_light", decision.Executed.EntityID)
	assert.Equal(t, "turn_off", decision.Executed.Service)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, 1, caller.count())
}

func TestRouteConfusionPhrase(t *testing.T) {
	caller := &fakeCaller{}
	r := newTestRouter(t, caller, agents.Noop{}, agents.Noop{}, model.DebugNone)

	decision, err := r.Route(context.Background(), newTurn("turn on the grape room fan"))
	require.NoError(t, err)
	assert.Equal(t, model.StageDeterministic, decision.Stage)
	require.NotNil(t, decision.Executed)
	assert.Equal(t, "fan.great_room_fan", decision.Executed.EntityID)
	assert.Equal(t, "turn_on", decision.Executed.Service)
}

func TestRouteIgnoresSensorShadowingLight(t *testing.T) {
	// A diagnostic sensor named after the light it monitors must not tie
	// with the light and turn the command into a miss.
	caller := &fakeCaller{}
	cat := catalog.New(&fakeSource{entities: []model.Entity{
		{ID: "light.office_light", Domain: "light", Name: "Office Light"},
		{ID: "sensor.office_light", Domain: "sensor", Name: "Office Light"},
	}}, time.Minute, nil, testLogger())
	_, err := cat.Refresh(context.Background())
	require.NoError(t, err)

	r := New(Config{
		Catalog:    cat,
		Extractor:  intent.New(nil),
		Dispatcher: dispatch.New(caller, 0.88, 0.06, testLogger()),
		Primary:    agents.Noop{},
		Fallback:   agents.Noop{},
		Debug:      model.DebugNone,
		Logger:     testLogger(),
	})

	decision, err := r.Route(context.Background(), newTurn("turn off the office light"))
	require.NoError(t, err)
	assert.Equal(t, model.StageDeterministic, decision.Stage)
	assert.Equal(t, model.OutcomeSuccess, decision.Outcome)
	require.NotNil(t, decision.Executed)
	assert.Equal(t, "light.office_light", decision.Executed.EntityID)
	assert.Equal(t, "turn_off", decision.Executed.Service)
	assert.Equal(t, 1, caller.count())
}

func TestRouteUnknownVerbFallsThroughToPrimary(t *testing.T) {
	caller := &fakeCaller{}
	primary := &fakeAgent{name: "primary", answer: "It is sunny today."}
	r := newTestRouter(t, caller, primary, agents.Noop{}, model.DebugNone)

	decision, err := r.Route(context.Background(), newTurn("what's the weather"))
	require.NoError(t, err)
	assert.Equal(t, model.StagePrimary, decision.Stage)
	assert.Equal(t, model.OutcomeSuccess, decision.Outcome)
	assert.Equal(t, "It is sunny today.", decision.Response)
	assert.Equal(t, 0, caller.count())
}

func TestRoutePrimaryFailureReachesFallback(t *testing.T) {
	caller := &fakeCaller{}
	primary := &fakeAgent{name: "primary", err: model.ErrAgentUnavailable}
	fallback := &fakeAgent{name: "fallback", answer: "The weather is mild."}
	r := newTestRouter(t, caller, primary, fallback, model.DebugNone)

	decision, err := r.Route(context.Background(), newTurn("what's the weather"))
	require.NoError(t, err)
	assert.Equal(t, model.StageFallback, decision.Stage)
	assert.Equal(t, "The weather is mild.", decision.Response)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestRouteCompleteFailure(t *testing.T) {
	primary := &fakeAgent{name: "primary", err: errors.New("timeout")}
	fallback := &fakeAgent{name: "fallback", err: errors.New("api key invalid")}
	r := newTestRouter(t, &fakeCaller{}, primary, fallback, model.DebugNone)

	decision, err := r.Route(context.Background(), newTurn("what's the weather"))
	require.ErrorIs(t, err, model.ErrNoFallback)
	assert.Equal(t, model.StageFallback, decision.Stage)
	assert.Equal(t, model.OutcomeError, decision.Outcome)
	assert.Equal(t, "Sorry, I couldn't handle that.", decision.Response)

	// Each stage attempted exactly once.
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	require.Len(t, decision.Attempts, 3)
	assert.Equal(t, model.StageDeterministic, decision.Attempts[0].Stage)
	assert.Equal(t, model.StagePrimary, decision.Attempts[1].Stage)
	assert.Equal(t, model.StageFallback, decision.Attempts[2].Stage)
}

func TestRouteExecutionErrorAdvancesWithTraceRecord(t *testing.T) {
	caller := &fakeCaller{err: errors.New("service unavailable")}
	primary := &fakeAgent{name: "primary", answer: "I noted the light is stuck."}
	r := newTestRouter(t, caller, primary, agents.Noop{}, model.DebugNone)

	decision, err := r.Route(context.Background(), newTurn("turn off the office light"))
	require.NoError(t, err)
	assert.Equal(t, model.StagePrimary, decision.Stage)

	// The failed call stays on the decision and in the trace.
	require.NotNil(t, decision.Executed)
	assert.Equal(t, "light.office_light", decision.Executed.EntityID)
	require.NotEmpty(t, decision.Attempts)
	assert.Equal(t, model.OutcomeError, decision.Attempts[0].Outcome)

	// The side effect was attempted exactly once; no retry.
	assert.Equal(t, 1, caller.count())
}

func TestRouteAtMostOneServiceCall(t *testing.T) {
	caller := &fakeCaller{}
	r := newTestRouter(t, caller, agents.Noop{}, agents.Noop{}, model.DebugNone)

	for _, text := range []string{
		"turn off the office light",
		"turn on the great room fan",
		"what's the weather",
		"turn on the nonexistent thing",
	} {
		caller.mu.Lock()
		caller.calls = nil
		caller.mu.Unlock()
		_, _ = r.Route(context.Background(), newTurn(text))
		assert.LessOrEqual(t, caller.count(), 1, "utterance %q", text)
	}
}

func TestRouteDebugLevels(t *testing.T) {
	t.Run("none appends nothing", func(t *testing.T) {
		r := newTestRouter(t, &fakeCaller{}, &fakeAgent{name: "p", answer: "Hi."}, agents.Noop{}, model.DebugNone)
		decision, err := r.Route(context.Background(), newTurn("what's up"))
		require.NoError(t, err)
		assert.Equal(t, "Hi.", decision.Response)
	})

	t.Run("low names the answering stage", func(t *testing.T) {
		r := newTestRouter(t, &fakeCaller{}, &fakeAgent{name: "p", answer: "Hi."}, agents.Noop{}, model.DebugLow)
		decision, err := r.Route(context.Background(), newTurn("what's up"))
		require.NoError(t, err)
		assert.Contains(t, decision.Response, "[primary: success]")
	})

	t.Run("verbose lists all attempts", func(t *testing.T) {
		primary := &fakeAgent{name: "p", err: errors.New("down")}
		fallback := &fakeAgent{name: "f", answer: "Hello."}
		r := newTestRouter(t, &fakeCaller{}, primary, fallback, model.DebugVerbose)
		decision, err := r.Route(context.Background(), newTurn("what's up"))
		require.NoError(t, err)
		assert.Contains(t, decision.Response, "deterministic: miss")
		assert.Contains(t, decision.Response, "primary: error")
		assert.Contains(t, decision.Response, "fallback: success")
	})
}

func TestRouteHooksObserveDecision(t *testing.T) {
	got := make(chan model.RoutingDecision, 1)
	hook := hookFunc(func(_ context.Context, d model.RoutingDecision) { got <- d })

	cat := catalog.New(&fakeSource{entities: testEntities()}, time.Minute, nil, testLogger())
	_, err := cat.Refresh(context.Background())
	require.NoError(t, err)

	r := New(Config{
		Catalog:    cat,
		Extractor:  intent.New(nil),
		Dispatcher: dispatch.New(&fakeCaller{}, 0.88, 0.06, testLogger()),
		Primary:    &fakeAgent{name: "p", answer: "Hi."},
		Fallback:   agents.Noop{},
		Debug:      model.DebugNone,
		Logger:     testLogger(),
		Hooks:      []Hook{hook},
	})

	turn := newTurn("what's up")
	_, err = r.Route(context.Background(), turn)
	require.NoError(t, err)

	select {
	case d := <-got:
		assert.Equal(t, turn.ID, d.TurnID)
		assert.Equal(t, model.StagePrimary, d.Stage)
	case <-time.After(2 * time.Second):
		t.Fatal("hook was not invoked")
	}
}

type hookFunc func(ctx context.Context, decision model.RoutingDecision)

func (f hookFunc) OnDecision(ctx context.Context, decision model.RoutingDecision) { f(ctx, decision) }

func TestTraceRender(t *testing.T) {
	tr := &Trace{}
	tr.Record(model.StageDeterministic, model.OutcomeMiss, "score 0.52 below threshold")
	tr.Record(model.StagePrimary, model.OutcomeSuccess, "primary")

	assert.Equal(t, "", tr.Render(model.DebugNone))
	assert.Equal(t, " [primary: success]", tr.Render(model.DebugLow))

	verbose := tr.Render(model.DebugVerbose)
	assert.Contains(t, verbose, "deterministic: miss (score 0.52 below threshold)")
	assert.Contains(t, verbose, "primary: success")
}

func TestTraceRenderEmpty(t *testing.T) {
	tr := &Trace{}
	for _, level := range []model.DebugLevel{model.DebugNone, model.DebugLow, model.DebugVerbose} {
		assert.Equal(t, "", tr.Render(level), fmt.Sprintf("level %s", level))
	}
}
