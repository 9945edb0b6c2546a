package hanashi

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySource struct {
	entities []Entity
}

func (m *memorySource) ListEntities(_ context.Context) ([]Entity, error) {
	return m.entities, nil
}

type memoryCaller struct {
	mu    sync.Mutex
	calls []ServiceCall
}

func (m *memoryCaller) CallService(_ context.Context, call ServiceCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return nil
}

func (m *memoryCaller) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type echoAgent struct {
	name   string
	answer string
}

func (e *echoAgent) Name() string { return e.name }

func (e *echoAgent) Process(_ context.Context, _ Turn) (string, error) {
	return e.answer, nil
}

type recordingHook struct {
	ch chan RoutingDecision
}

func (r *recordingHook) OnTurnRouted(_ context.Context, d RoutingDecision) error {
	r.ch <- d
	return nil
}

func newTestApp(t *testing.T, extra ...Option) (*App, *memoryCaller) {
	t.Helper()
	t.Setenv("HANASHI_HISTORY_PATH", ":memory:")
	t.Setenv("HANASHI_RATE_LIMIT_ENABLED", "false")

	caller := &memoryCaller{}
	opts := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithEntitySource(&memorySource{entities: []Entity{
			{ID: "light.office_light", Domain: "light", Name: "Office Light"},
			{ID: "fan.great_room_fan", Domain: "fan", Name: "Great Room Fan", Aliases: []string{"big fan"}},
		}}),
		WithServiceCaller(caller),
		WithPrimaryAgent(&echoAgent{name: "primary", answer: "It is sunny today."}),
		WithFallbackAgent(&echoAgent{name: "fallback", answer: "Let me think about that."}),
	}
	opts = append(opts, extra...)

	app, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app, caller
}

func TestProcessTurnDeterministic(t *testing.T) {
	app, caller := newTestApp(t)

	decision, err := app.ProcessTurn(context.Background(), Turn{Text: "turn off the office light"})
	require.NoError(t, err)

	assert.Equal(t, StageDeterministic, decision.Stage)
	assert.Equal(t, OutcomeSuccess, decision.Outcome)
	require.NotNil(t, decision.Executed)
	assert.Equal(t, "light.office_light", decision.Executed.EntityID)
	assert.Equal(t, "turn_off", decision.Executed.Service)
	assert.Equal(t, 1, caller.count())
	assert.NotEqual(t, uuid.Nil, decision.TurnID)
	assert.NotEqual(t, uuid.Nil, decision.ConversationID)
}

func TestProcessTurnAlias(t *testing.T) {
	app, _ := newTestApp(t)

	decision, err := app.ProcessTurn(context.Background(), Turn{Text: "turn on the big fan"})
	require.NoError(t, err)
	require.NotNil(t, decision.Executed)
	assert.Equal(t, "fan.great_room_fan", decision.Executed.EntityID)
}

func TestProcessTurnAgentAnswer(t *testing.T) {
	app, caller := newTestApp(t)

	decision, err := app.ProcessTurn(context.Background(), Turn{Text: "what's the weather like today"})
	require.NoError(t, err)

	assert.Equal(t, StagePrimary, decision.Stage)
	assert.Equal(t, "It is sunny today.", decision.Response)
	assert.Equal(t, 0, caller.count())
}

func TestProcessTurnValidation(t *testing.T) {
	app, _ := newTestApp(t)

	_, err := app.ProcessTurn(context.Background(), Turn{Text: ""})
	require.Error(t, err)
}

func TestProcessTurnKeepsIDs(t *testing.T) {
	app, _ := newTestApp(t)
	turnID := uuid.New()
	convID := uuid.New()

	decision, err := app.ProcessTurn(context.Background(), Turn{
		ID:             turnID,
		ConversationID: convID,
		Text:           "turn on the office light",
	})
	require.NoError(t, err)
	assert.Equal(t, turnID, decision.TurnID)
	assert.Equal(t, convID, decision.ConversationID)
}

func TestTurnHookObservesDecision(t *testing.T) {
	hook := &recordingHook{ch: make(chan RoutingDecision, 1)}
	app, _ := newTestApp(t, WithTurnHook(hook))

	_, err := app.ProcessTurn(context.Background(), Turn{Text: "turn on the office light"})
	require.NoError(t, err)

	select {
	case d := <-hook.ch:
		assert.Equal(t, StageDeterministic, d.Stage)
		assert.Equal(t, "turn on the office light", d.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("turn hook was not called")
	}
}

func TestRefreshCatalog(t *testing.T) {
	app, _ := newTestApp(t)
	require.NoError(t, app.RefreshCatalog(context.Background()))
}

func TestReloadConfigSwapsThreshold(t *testing.T) {
	app, caller := newTestApp(t)

	// "office lights" scores ~0.76 against "Office Light": below the default
	// 0.88 threshold the deterministic layer declines.
	decision, err := app.ProcessTurn(context.Background(), Turn{Text: "turn on the office lights"})
	require.NoError(t, err)
	assert.Equal(t, StagePrimary, decision.Stage)
	assert.Equal(t, 0, caller.count())

	t.Setenv("HANASHI_CONFIDENCE_THRESHOLD", "0.70")
	require.NoError(t, app.ReloadConfig())

	decision, err = app.ProcessTurn(context.Background(), Turn{Text: "turn on the office lights"})
	require.NoError(t, err)
	assert.Equal(t, StageDeterministic, decision.Stage)
	assert.Equal(t, 1, caller.count())
}

func TestReloadConfigRejectsInvalid(t *testing.T) {
	app, _ := newTestApp(t)

	t.Setenv("HANASHI_CONFIDENCE_THRESHOLD", "3.5")
	require.Error(t, app.ReloadConfig())

	// The previous chain keeps working.
	decision, err := app.ProcessTurn(context.Background(), Turn{Text: "turn on the office light"})
	require.NoError(t, err)
	assert.Equal(t, StageDeterministic, decision.Stage)
}
