package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanhoang/maildigest/internal/model"
	"github.com/lanhoang/maildigest/internal/summarizer"
)

func TestSchedulePreservesBatchOrder(t *testing.T) {
	batch := makeBatch(6)

	// Finish in roughly reverse order so completion order and batch
	// order disagree.
	summ := &stubSummarizer{fn: func(_ context.Context, rec model.MessageRecord) (string, error) {
		switch rec.ID {
		case "msg-0":
			time.Sleep(30 * time.Millisecond)
		case "msg-1":
			time.Sleep(20 * time.Millisecond)
		case "msg-2":
			time.Sleep(10 * time.Millisecond)
		}
		return "card for " + rec.ID, nil
	}}

	sched := NewScheduler(summ, 6, time.Minute)
	results, err := sched.Schedule(context.Background(), batch)
	require.NoError(t, err)
	require.Len(t, results, len(batch))

	for i, res := range results {
		assert.Equal(t, batch[i].ID, res.SourceID)
		assert.Equal(t, i, res.Position)
		assert.Equal(t, "card for "+batch[i].ID, res.Payload)
		assert.True(t, res.Outcome.IsSuccess())
	}
}

func TestScheduleRespectsConcurrencyBound(t *testing.T) {
	const bound = 2

	var (
		mu      sync.Mutex
		active  int
		highest int
	)
	summ := &stubSummarizer{fn: func(_ context.Context, _ model.MessageRecord) (string, error) {
		mu.Lock()
		active++
		if active > highest {
			highest = active
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return "card", nil
	}}

	sched := NewScheduler(summ, bound, time.Minute)
	results, err := sched.Schedule(context.Background(), makeBatch(8))
	require.NoError(t, err)
	require.Len(t, results, 8)

	assert.LessOrEqual(t, highest, bound)
}

func TestScheduleDeadlineTruncatesBatch(t *testing.T) {
	const deadline = 50 * time.Millisecond

	summ := &stubSummarizer{fn: func(ctx context.Context, rec model.MessageRecord) (string, error) {
		if rec.ID == "msg-0" {
			return "fast card", nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	}}

	sched := NewScheduler(summ, 4, deadline)

	start := time.Now()
	results, err := sched.Schedule(context.Background(), makeBatch(4))
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrRunTimeout)
	require.Len(t, results, 4)
	assert.Less(t, elapsed, deadline+200*time.Millisecond)

	assert.True(t, results[0].Outcome.IsSuccess())
	for _, res := range results[1:] {
		assert.Equal(t, model.OutcomeFailed, res.Outcome.State)
		assert.Equal(t, model.KindNetworkTimeout, res.Outcome.Kind)
	}
}

func TestScheduleFatalFailureShortCircuits(t *testing.T) {
	batch := makeBatch(6)

	authErr := &summarizer.Error{
		Kind: model.KindAuth, StatusCode: 401, Message: "invalid key",
	}
	summ := &stubSummarizer{fn: func(ctx context.Context, rec model.MessageRecord) (string, error) {
		if rec.ID == "msg-0" {
			return "", authErr
		}
		<-ctx.Done()
		return "", ctx.Err()
	}}

	sched := NewScheduler(summ, len(batch), time.Minute)
	results, err := sched.Schedule(context.Background(), batch)

	require.Error(t, err)
	assert.Equal(t, model.KindAuth, model.ClassifyError(err))
	require.Len(t, results, len(batch))

	assert.Equal(t, model.KindAuth, results[0].Outcome.Kind)
	for _, res := range results {
		assert.Equal(t, model.OutcomeFailed, res.Outcome.State)
	}
}

func TestScheduleIsolatesTransientFailures(t *testing.T) {
	batch := makeBatch(4)

	rateErr := &summarizer.Error{
		Kind: model.KindRateLimited, StatusCode: 429, Message: "slow down",
	}
	summ := &stubSummarizer{fn: func(_ context.Context, rec model.MessageRecord) (string, error) {
		if rec.ID == "msg-2" {
			return "", rateErr
		}
		return "card for " + rec.ID, nil
	}}

	sched := NewScheduler(summ, 2, time.Minute)
	results, err := sched.Schedule(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFailed, results[2].Outcome.State)
	assert.Equal(t, model.KindRateLimited, results[2].Outcome.Kind)
	for i, res := range results {
		if i == 2 {
			continue
		}
		assert.True(t, res.Outcome.IsSuccess(), "position %d", i)
	}
}

func TestScheduleEmptyPayloadIsFailure(t *testing.T) {
	summ := &stubSummarizer{fn: func(_ context.Context, _ model.MessageRecord) (string, error) {
		return "", nil
	}}

	sched := NewScheduler(summ, 1, time.Minute)
	results, err := sched.Schedule(context.Background(), makeBatch(1))
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeFailed, results[0].Outcome.State)
	assert.Equal(t, model.KindUnknown, results[0].Outcome.Kind)
}

func TestScheduleCallerCancellation(t *testing.T) {
	summ := &stubSummarizer{fn: func(ctx context.Context, _ model.MessageRecord) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	sched := NewScheduler(summ, 2, time.Minute)
	results, err := sched.Schedule(ctx, makeBatch(3))

	require.ErrorIs(t, err, ErrInterrupted)
	for _, res := range results {
		assert.Equal(t, model.OutcomeFailed, res.Outcome.State)
	}
}

func TestScheduleReportsProgress(t *testing.T) {
	summ := &stubSummarizer{fn: func(_ context.Context, rec model.MessageRecord) (string, error) {
		return "card for " + rec.ID, nil
	}}

	sched := NewScheduler(summ, 2, time.Minute)

	var mu sync.Mutex
	var seen []int
	sched.SetProgress(func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 5, total)
		seen = append(seen, completed)
	})

	_, err := sched.Schedule(context.Background(), makeBatch(5))
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4, 5}, seen)
}

func TestScheduleEmptyBatch(t *testing.T) {
	summ := &stubSummarizer{fn: func(_ context.Context, _ model.MessageRecord) (string, error) {
		t.Fatal("summarizer must not be called")
		return "", nil
	}}

	sched := NewScheduler(summ, 4, time.Minute)
	results, err := sched.Schedule(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, summ.callCount())
}
