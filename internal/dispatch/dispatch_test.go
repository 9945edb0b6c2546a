package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanashi-ai/hanashi/internal/model"
)

type fakeCaller struct {
	calls []model.ServiceCall
	err   error
}

func (f *fakeCaller) CallService(_ context.Context, call model.ServiceCall) error {
	f.calls = append(f.calls, call)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func officeLight() model.Entity {
	return model.Entity{ID: "light.office_light", Domain: "light", Name: "Office Light"}
}

func TestDispatchExecutesConfidentMatch(t *testing.T) {
	caller := &fakeCaller{}
	d := New(caller, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbTurnOff, Target: "office light"}
	results := []model.MatchResult{
		{Entity: officeLight(), Score: 1.0},
		{Entity: model.Entity{ID: "light.hall", Domain: "light", Name: "Hall Light"}, Score: 0.4},
	}

	res, err := d.Dispatch(context.Background(), it, results)
	require.NoError(t, err)
	assert.Equal(t, "light.office_light", res.Call.EntityID)
	assert.Equal(t, "turn_off", res.Call.Service)
	assert.Equal(t, "Turned off Office Light.", res.Response)
	require.Len(t, caller.calls, 1)
}

func TestDispatchAcceptsScoreEqualToThreshold(t *testing.T) {
	caller := &fakeCaller{}
	d := New(caller, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbTurnOn, Target: "office light"}
	results := []model.MatchResult{{Entity: officeLight(), Score: 0.88}}

	_, err := d.Dispatch(context.Background(), it, results)
	require.NoError(t, err)
	assert.Len(t, caller.calls, 1)
}

func TestDispatchMissBelowThreshold(t *testing.T) {
	caller := &fakeCaller{}
	d := New(caller, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbTurnOn, Target: "office light"}
	results := []model.MatchResult{{Entity: officeLight(), Score: 0.8799}}

	_, err := d.Dispatch(context.Background(), it, results)
	assert.ErrorIs(t, err, model.ErrMiss)
	assert.Empty(t, caller.calls)
}

func TestDispatchMissOnAmbiguity(t *testing.T) {
	caller := &fakeCaller{}
	d := New(caller, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbTurnOn, Target: "hall light"}
	results := []model.MatchResult{
		{Entity: model.Entity{ID: "light.hall_east", Domain: "light", Name: "Hall Light"}, Score: 0.95},
		{Entity: model.Entity{ID: "light.hall_west", Domain: "light", Name: "Hall Light"}, Score: 0.93},
	}

	_, err := d.Dispatch(context.Background(), it, results)
	assert.ErrorIs(t, err, model.ErrMiss)
	assert.Empty(t, caller.calls)
}

func TestDispatchMissOnUnknownVerb(t *testing.T) {
	caller := &fakeCaller{}
	d := New(caller, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbUnknown, Target: "whats the weather"}
	results := []model.MatchResult{{Entity: officeLight(), Score: 1.0}}

	_, err := d.Dispatch(context.Background(), it, results)
	assert.ErrorIs(t, err, model.ErrMiss)
	assert.Empty(t, caller.calls)
}

func TestDispatchMissOnIncompatibleVerb(t *testing.T) {
	caller := &fakeCaller{}
	d := New(caller, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbSetLevel, Target: "coffee maker", Level: 50}
	results := []model.MatchResult{
		{Entity: model.Entity{ID: "switch.coffee_maker", Domain: "switch", Name: "Coffee Maker"}, Score: 1.0},
	}

	_, err := d.Dispatch(context.Background(), it, results)
	assert.ErrorIs(t, err, model.ErrMiss)
	assert.Empty(t, caller.calls)
}

func TestDispatchExecutionErrorIsNotMiss(t *testing.T) {
	caller := &fakeCaller{err: errors.New("service unavailable")}
	d := New(caller, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbTurnOn, Target: "office light"}
	results := []model.MatchResult{{Entity: officeLight(), Score: 1.0}}

	_, err := d.Dispatch(context.Background(), it, results)
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrMiss)

	var execErr *model.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "light.office_light", execErr.Call.EntityID)
}

func TestDispatchCancelledContextSkipsSideEffect(t *testing.T) {
	caller := &fakeCaller{}
	d := New(caller, 0.88, 0.06, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	it := model.Intent{Verb: model.VerbTurnOn, Target: "office light"}
	results := []model.MatchResult{{Entity: officeLight(), Score: 1.0}}

	_, err := d.Dispatch(ctx, it, results)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, caller.calls)
}

func TestDispatchEmptyCatalogIsMiss(t *testing.T) {
	d := New(&fakeCaller{}, 0.88, 0.06, testLogger())

	it := model.Intent{Verb: model.VerbTurnOn, Target: "office light"}
	_, err := d.Dispatch(context.Background(), it, nil)
	assert.ErrorIs(t, err, model.ErrMiss)
}
