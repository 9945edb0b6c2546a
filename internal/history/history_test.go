package history

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanashi-ai/hanashi/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDecision(text string, decidedAt time.Time) model.RoutingDecision {
	return model.RoutingDecision{
		TurnID:         uuid.New(),
		ConversationID: uuid.New(),
		Text:           text,
		Stage:          model.StageDeterministic,
		Outcome:        model.OutcomeSuccess,
		Response:       "Turned off Office Light.",
		Executed:       &model.ServiceCall{Domain: "light", Service: "turn_off", EntityID: "light.office_light"},
		Score:          0.97,
		Attempts: []model.Attempt{
			{Stage: model.StageDeterministic, Outcome: model.OutcomeSuccess, Detail: "light.office_light score 0.97"},
		},
		Duration:  42 * time.Millisecond,
		DecidedAt: decidedAt,
	}
}

func TestRecordAndRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	d := sampleDecision("turn off the office light", time.Now().UTC())
	require.NoError(t, s.Record(ctx, d))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, d.TurnID.String(), rec.TurnID)
	assert.Equal(t, "turn off the office light", rec.Text)
	assert.Equal(t, model.StageDeterministic, rec.Stage)
	assert.Equal(t, model.OutcomeSuccess, rec.Outcome)
	assert.Equal(t, "light.office_light", rec.EntityID)
	assert.InDelta(t, 0.97, rec.Score, 1e-9)
	assert.Equal(t, int64(42), rec.DurationMS)
	require.Len(t, rec.Attempts, 1)
	assert.Equal(t, model.StageDeterministic, rec.Attempts[0].Stage)
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		d := sampleDecision("utterance", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, s.Record(ctx, d))
	}

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.True(t, recs[0].DecidedAt.After(recs[1].DecidedAt))
	assert.True(t, recs[1].DecidedAt.After(recs[2].DecidedAt))
}

func TestRecentLimit(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, sampleDecision("u", time.Now().UTC())))
	}

	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	// Out-of-range limits fall back to the default rather than failing.
	recs, err = s.Recent(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}

func TestRecordIsIdempotentPerTurn(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	d := sampleDecision("turn off the office light", time.Now().UTC())
	require.NoError(t, s.Record(ctx, d))
	d.Response = "updated"
	require.NoError(t, s.Record(ctx, d))

	recs, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "updated", recs[0].Response)
}

func TestHealthy(t *testing.T) {
	s := testStore(t)
	assert.NoError(t, s.Healthy(context.Background()))
}
