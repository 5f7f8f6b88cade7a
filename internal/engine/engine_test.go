package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Slowpokess/euro-lottery/internal/draw"
	"github.com/Slowpokess/euro-lottery/internal/events"
	"github.com/Slowpokess/euro-lottery/internal/rng"
	"github.com/Slowpokess/euro-lottery/internal/store"
	"github.com/Slowpokess/euro-lottery/internal/verify"
)

// stubSource returns fixed winning numbers so classification outcomes are
// deterministic. It distinguishes the main and extra request by count.
type stubSource struct {
	mu    sync.Mutex
	main  []int
	extra []int
	fail  error
}

func (s *stubSource) Generate(_ context.Context, count, _ int, _ []int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if count == len(s.main) {
		return append([]int(nil), s.main...), nil
	}
	return append([]int(nil), s.extra...), nil
}

func (s *stubSource) Info() rng.ProviderInfo {
	return rng.ProviderInfo{
		Name:           "stub",
		Type:           "deterministic",
		Description:    "fixed numbers for tests",
		SecurityRating: "low",
	}
}

type capturedEvent struct {
	Type      string
	LotteryID string
}

type stubEmitter struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (s *stubEmitter) Emit(eventType, lotteryID string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, capturedEvent{Type: eventType, LotteryID: lotteryID})
	return nil
}

func (s *stubEmitter) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Type
	}
	return out
}

func testTiers() []draw.PrizeTier {
	return []draw.PrizeTier{
		{Name: "Match 5+2", MainMatches: 5, ExtraMatches: 2, Kind: draw.PayoutFixed, FixedAmount: decimal.RequireFromString("100000")},
		{Name: "Match 5+1", MainMatches: 5, ExtraMatches: 1, Kind: draw.PayoutFixed, FixedAmount: decimal.RequireFromString("50000")},
		{Name: "Match 2+1", MainMatches: 2, ExtraMatches: 1, Kind: draw.PayoutFixed, FixedAmount: decimal.RequireFromString("8")},
	}
}

func testSpec() draw.Spec {
	return draw.Spec{
		LotteryID:   "euromillions",
		LotteryName: "EuroMillions",
		DrawNumber:  42,
		MainCount:   5,
		MainRange:   20,
		ExtraCount:  2,
		ExtraRange:  10,
	}
}

func testTickets() []draw.TicketSelection {
	return []draw.TicketSelection{
		{TicketID: "ticket-a", MainNumbers: []int{1, 2, 3, 4, 5}, ExtraNumbers: []int{1, 2}},
		{TicketID: "ticket-b", MainNumbers: []int{1, 2, 3, 4, 5}, ExtraNumbers: []int{1, 9}},
		{TicketID: "ticket-c", MainNumbers: []int{1, 2, 10, 11, 12}, ExtraNumbers: []int{1, 10}},
		{TicketID: "ticket-d", MainNumbers: []int{6, 7, 8, 9, 10}, ExtraNumbers: []int{3, 4}},
	}
}

func newTestEngine(t *testing.T, source rng.Source, emitter Emitter) (*Engine, store.DrawStore) {
	t.Helper()
	drawStore := store.NewMemoryStore()
	t.Cleanup(func() { drawStore.Close() })
	eng := New(Config{
		Store:    drawStore,
		Source:   source,
		Verifier: verify.New(verify.Config{Secret: "engine-test-secret", BaseURL: "https://lottery.example"}),
		Emitter:  emitter,
		Tiers:    map[string][]draw.PrizeTier{"euromillions": testTiers()},
		Workers:  4,
	})
	return eng, drawStore
}

func TestConductDrawEndToEnd(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	emitter := &stubEmitter{}
	eng, drawStore := newTestEngine(t, source, emitter)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	state, err := eng.ConductDraw(context.Background(), spec, testTickets())
	require.NoError(t, err)

	assert.Equal(t, draw.StatusCompleted, state.Status)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, state.MainNumbers)
	assert.Equal(t, []int{1, 2}, state.ExtraNumbers)
	assert.Equal(t, "stub", state.Provider)
	assert.Equal(t, int64(4), state.TicketCount)
	assert.True(t, state.Sealed())
	assert.NotEmpty(t, state.VerificationHash)
	assert.Equal(t, "/api/lottery/draws/euromillions/42/verify", state.PublicProofURL)

	wantAmounts := map[string]string{
		"ticket-a": "100000",
		"ticket-b": "50000",
		"ticket-c": "8",
	}
	wantTiers := map[string]string{
		"ticket-a": "Match 5+2",
		"ticket-b": "Match 5+1",
		"ticket-c": "Match 2+1",
	}
	assignments, err := drawStore.ListAssignments(spec.Key())
	require.NoError(t, err)
	require.Len(t, assignments, 3)
	for _, assignment := range assignments {
		assert.Equal(t, wantTiers[assignment.TicketID], assignment.TierName)
		assert.True(t, assignment.Amount.Equal(decimal.RequireFromString(wantAmounts[assignment.TicketID])),
			"ticket %s amount %s", assignment.TicketID, assignment.Amount)
	}

	_, err = drawStore.GetAssignment(spec.Key(), "ticket-d")
	assert.ErrorIs(t, err, store.ErrNotFound)

	results, err := drawStore.ListTierResults(spec.Key())
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, result := range results {
		assert.Equal(t, 1, result.WinnersCount, result.TierName)
	}

	assert.Equal(t, []string{events.TypeDrawCompleted}, emitter.types())
}

func TestConductDrawRequiresScheduled(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	eng, drawStore := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)
	_, err = eng.ConductDraw(context.Background(), spec, nil)
	require.NoError(t, err)

	// A completed draw cannot be conducted again and keeps its state.
	before, err := drawStore.GetState(spec.Key())
	require.NoError(t, err)

	_, err = eng.ConductDraw(context.Background(), spec, nil)
	var stateErr *draw.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, draw.StatusCompleted, stateErr.Actual)

	after, err := drawStore.GetState(spec.Key())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestScheduleRejectsDuplicate(t *testing.T) {
	eng, _ := newTestEngine(t, &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	_, err = eng.Schedule(spec)
	var stateErr *draw.InvalidStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestConductDrawRollsBackOnProviderFailure(t *testing.T) {
	providerErr := &rng.ProviderUnavailableError{Provider: "stub", Err: errors.New("unreachable")}
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}, fail: providerErr}
	eng, drawStore := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	_, err = eng.ConductDraw(context.Background(), spec, testTickets())
	require.Error(t, err)
	var unavailable *rng.ProviderUnavailableError
	assert.ErrorAs(t, err, &unavailable)

	state, err := drawStore.GetState(spec.Key())
	require.NoError(t, err)
	assert.Equal(t, draw.StatusScheduled, state.Status, "failed draw stays retryable")
	assert.Empty(t, state.MainNumbers)

	// The retry after the provider recovers succeeds.
	source.mu.Lock()
	source.fail = nil
	source.mu.Unlock()

	state, err = eng.ConductDraw(context.Background(), spec, testTickets())
	require.NoError(t, err)
	assert.Equal(t, draw.StatusCompleted, state.Status)
}

func TestConcurrentConductExactlyOneSucceeds(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	eng, _ := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	const callers = 4
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.ConductDraw(context.Background(), spec, testTickets())
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var stateErr *draw.InvalidStateError
		assert.ErrorAs(t, err, &stateErr)
	}
	assert.Equal(t, 1, succeeded)
}

func TestClassificationIdempotent(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	eng, drawStore := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	// Simulate a partially classified earlier attempt: ticket-a already has
	// its assignment on record.
	existing := &draw.WinAssignment{
		TicketID: "ticket-a",
		TierName: "Match 5+2",
		Amount:   decimal.RequireFromString("100000"),
	}
	require.NoError(t, drawStore.PutAssignment(spec.Key(), existing))

	_, err = eng.ConductDraw(context.Background(), spec, testTickets())
	require.NoError(t, err)

	assignments, err := drawStore.ListAssignments(spec.Key())
	require.NoError(t, err)
	assert.Len(t, assignments, 3, "re-classification must not duplicate assignments")

	results, err := drawStore.ListTierResults(spec.Key())
	require.NoError(t, err)
	counts := map[string]int{}
	for _, result := range results {
		counts[result.TierName] = result.WinnersCount
	}
	assert.Equal(t, map[string]int{"Match 5+2": 1, "Match 5+1": 1, "Match 2+1": 1}, counts)
}

func TestSameTierMultipleWinners(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	eng, drawStore := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	tickets := []draw.TicketSelection{
		{TicketID: "jackpot-1", MainNumbers: []int{1, 2, 3, 4, 5}, ExtraNumbers: []int{1, 2}},
		{TicketID: "jackpot-2", MainNumbers: []int{5, 4, 3, 2, 1}, ExtraNumbers: []int{2, 1}},
	}
	_, err = eng.ConductDraw(context.Background(), spec, tickets)
	require.NoError(t, err)

	results, err := drawStore.ListTierResults(spec.Key())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Match 5+2", results[0].TierName)
	assert.Equal(t, 2, results[0].WinnersCount)
	assert.True(t, results[0].TotalPayout().Equal(decimal.RequireFromString("200000")))
}

func TestCancelOnlyScheduledDraws(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	emitter := &stubEmitter{}
	eng, _ := newTestEngine(t, source, emitter)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	state, err := eng.Cancel(spec)
	require.NoError(t, err)
	assert.Equal(t, draw.StatusCancelled, state.Status)
	assert.Equal(t, []string{events.TypeDrawCancelled}, emitter.types())

	// Cancelled draws cannot be conducted or cancelled again.
	_, err = eng.ConductDraw(context.Background(), spec, nil)
	var stateErr *draw.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, draw.StatusCancelled, stateErr.Actual)

	_, err = eng.Cancel(spec)
	assert.ErrorAs(t, err, &stateErr)
}

func TestVerifyDraw(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	emitter := &stubEmitter{}
	eng, drawStore := newTestEngine(t, source, emitter)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)
	_, err = eng.ConductDraw(context.Background(), spec, testTickets())
	require.NoError(t, err)

	result, err := eng.VerifyDraw(spec)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Equal(t, spec.Key(), result.DrawID)

	state, err := drawStore.GetState(spec.Key())
	require.NoError(t, err)
	assert.Equal(t, draw.StatusVerified, state.Status)
	assert.Contains(t, emitter.types(), events.TypeDrawVerified)

	// Verifying a verified draw is fine and does not transition again.
	result, err = eng.VerifyDraw(spec)
	require.NoError(t, err)
	assert.True(t, result.IsValid)
}

func TestVerifyDrawDetectsTamperedNumbers(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	eng, drawStore := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)
	_, err = eng.ConductDraw(context.Background(), spec, testTickets())
	require.NoError(t, err)

	state, err := drawStore.GetState(spec.Key())
	require.NoError(t, err)
	state.MainNumbers = []int{1, 2, 3, 4, 6}
	require.NoError(t, drawStore.PutState(spec.Key(), state))

	result, err := eng.VerifyDraw(spec)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Equal(t, "winning numbers do not match sealed record", result.Reason)
}

func TestVerifyDrawDetectsTamperedRecord(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	eng, drawStore := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)
	_, err = eng.ConductDraw(context.Background(), spec, testTickets())
	require.NoError(t, err)

	state, err := drawStore.GetState(spec.Key())
	require.NoError(t, err)
	state.Verification.DrawData["ticket_count"] = 9999
	require.NoError(t, drawStore.PutState(spec.Key(), state))

	result, err := eng.VerifyDraw(spec)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
}

func TestVerifyDrawRequiresCompleted(t *testing.T) {
	eng, _ := newTestEngine(t, &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	_, err = eng.VerifyDraw(spec)
	var stateErr *draw.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, draw.StatusScheduled, stateErr.Actual)
}

func TestPublicProof(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	eng, _ := newTestEngine(t, source, nil)

	spec := testSpec()
	_, err := eng.Schedule(spec)
	require.NoError(t, err)
	_, err = eng.ConductDraw(context.Background(), spec, testTickets())
	require.NoError(t, err)

	proof, err := eng.PublicProof(spec)
	require.NoError(t, err)
	assert.Equal(t, spec.Key(), proof.DrawID)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, proof.WinningNumbers)
	assert.NotEmpty(t, proof.VerificationToken)
}

func TestPercentagePayoutUsesTicketRevenue(t *testing.T) {
	source := &stubSource{main: []int{1, 2, 3, 4, 5}, extra: []int{1, 2}}
	drawStore := store.NewMemoryStore()
	t.Cleanup(func() { drawStore.Close() })

	spec := testSpec()
	spec.TicketPrice = decimal.RequireFromString("2.50")
	spec.PoolShare = decimal.RequireFromString("0.5")

	tiers := []draw.PrizeTier{
		{Name: "Match 3+0", MainMatches: 3, ExtraMatches: 0, Kind: draw.PayoutPercentage, PoolPercent: decimal.RequireFromString("10")},
	}
	eng := New(Config{
		Store:    drawStore,
		Source:   source,
		Verifier: verify.New(verify.Config{Secret: "engine-test-secret"}),
		Tiers:    map[string][]draw.PrizeTier{"euromillions": tiers},
	})

	_, err := eng.Schedule(spec)
	require.NoError(t, err)

	// 4 tickets at 2.50 with a 0.5 pool share fund a 5.00 pool; 10% of it
	// is 0.50 per winner.
	tickets := []draw.TicketSelection{
		{TicketID: "ticket-a", MainNumbers: []int{1, 2, 3, 10, 11}, ExtraNumbers: []int{5, 6}},
		{TicketID: "ticket-b", MainNumbers: []int{13, 14, 15, 16, 17}, ExtraNumbers: []int{5, 6}},
		{TicketID: "ticket-c", MainNumbers: []int{6, 7, 8, 9, 12}, ExtraNumbers: []int{5, 6}},
		{TicketID: "ticket-d", MainNumbers: []int{10, 16, 18, 19, 20}, ExtraNumbers: []int{5, 6}},
	}
	_, err = eng.ConductDraw(context.Background(), spec, tickets)
	require.NoError(t, err)

	assignment, err := drawStore.GetAssignment(spec.Key(), "ticket-a")
	require.NoError(t, err)
	assert.True(t, assignment.Amount.Equal(decimal.RequireFromString("0.5")), "amount %s", assignment.Amount)
}
