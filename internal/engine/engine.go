// Package engine orchestrates draw execution: number generation, sealing,
// prize resolution and the draw status state machine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Slowpokess/euro-lottery/internal/draw"
	"github.com/Slowpokess/euro-lottery/internal/events"
	"github.com/Slowpokess/euro-lottery/internal/prize"
	"github.com/Slowpokess/euro-lottery/internal/rng"
	"github.com/Slowpokess/euro-lottery/internal/store"
	"github.com/Slowpokess/euro-lottery/internal/verify"
)

// Emitter publishes draw lifecycle events. Publish failures never fail a
// draw; they are logged only.
type Emitter interface {
	Emit(eventType, lotteryID string, data any) error
}

// Config wires the engine's collaborators. Tiers maps a lottery id to its
// configured prize tiers.
type Config struct {
	Store    store.DrawStore
	Source   rng.Source
	Verifier *verify.Service
	Emitter  Emitter
	Tiers    map[string][]draw.PrizeTier
	// Workers bounds the ticket classification fan-out. Defaults to 8.
	Workers int
}

type Engine struct {
	store    store.DrawStore
	source   rng.Source
	verifier *verify.Service
	emitter  Emitter
	tiers    map[string][]draw.PrizeTier
	workers  int
	log      *slog.Logger
	now      func() time.Time
}

func New(cfg Config) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	return &Engine{
		store:    cfg.Store,
		source:   cfg.Source,
		verifier: cfg.Verifier,
		emitter:  cfg.Emitter,
		tiers:    cfg.Tiers,
		workers:  workers,
		log:      slog.Default(),
		now:      time.Now,
	}
}

// Schedule registers a draw in scheduled status. Scheduling an already
// known draw is an InvalidStateError.
func (e *Engine) Schedule(spec draw.Spec) (*draw.State, error) {
	key := spec.Key()
	if existing, err := e.store.GetState(key); err == nil {
		return nil, &draw.InvalidStateError{Expected: draw.StatusScheduled, Actual: existing.Status}
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := e.now().UTC()
	state := &draw.State{
		LotteryID:  spec.LotteryID,
		DrawNumber: spec.DrawNumber,
		Status:     draw.StatusScheduled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := e.store.PutState(key, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Cancel marks a draw cancelled. Only scheduled draws may be cancelled;
// once in progress a draw runs to completion or rolls back.
func (e *Engine) Cancel(spec draw.Spec) (*draw.State, error) {
	state, err := e.store.TransitionStatus(spec.Key(), draw.StatusScheduled, draw.StatusCancelled)
	if err != nil {
		return nil, err
	}
	e.emit(events.TypeDrawCancelled, spec.LotteryID, map[string]any{
		"draw_id": spec.Key(),
	})
	return state, nil
}

// ConductDraw executes one draw end to end: it generates the winning
// numbers, seals them into a verification record, classifies every ticket
// and aggregates per-tier results.
//
// The draw must be in scheduled status; the scheduled -> in_progress
// transition is a single transactional write, so a concurrent second caller
// observes in_progress and fails fast. On any failure the status rolls back
// to scheduled so the draw stays retryable.
func (e *Engine) ConductDraw(ctx context.Context, spec draw.Spec, tickets []draw.TicketSelection) (*draw.State, error) {
	key := spec.Key()

	state, err := e.store.TransitionStatus(key, draw.StatusScheduled, draw.StatusInProgress)
	if err != nil {
		return nil, err
	}

	completed, err := e.run(ctx, spec, state, tickets)
	if err != nil {
		if _, rbErr := e.store.TransitionStatus(key, draw.StatusInProgress, draw.StatusScheduled); rbErr != nil {
			e.log.Error("draw rollback failed", "draw_id", key, "err", rbErr)
		}
		e.log.Error("draw failed", "draw_id", key, "err", err)
		return nil, err
	}

	e.log.Info("draw completed",
		"draw_id", key,
		"main_numbers", completed.MainNumbers,
		"extra_numbers", completed.ExtraNumbers,
		"provider", completed.Provider,
		"ticket_count", completed.TicketCount,
	)
	e.emit(events.TypeDrawCompleted, spec.LotteryID, map[string]any{
		"draw_id":       key,
		"main_numbers":  completed.MainNumbers,
		"extra_numbers": completed.ExtraNumbers,
		"ticket_count":  completed.TicketCount,
	})

	return completed, nil
}

func (e *Engine) run(ctx context.Context, spec draw.Spec, state *draw.State, tickets []draw.TicketSelection) (*draw.State, error) {
	key := spec.Key()

	mainNumbers, err := e.source.Generate(ctx, spec.MainCount, spec.MainRange, nil)
	if err != nil {
		return nil, fmt.Errorf("generate main numbers: %w", err)
	}

	extraNumbers := []int{}
	if spec.ExtraCount > 0 {
		extraNumbers, err = e.source.Generate(ctx, spec.ExtraCount, spec.ExtraRange, nil)
		if err != nil {
			return nil, fmt.Errorf("generate extra numbers: %w", err)
		}
	}

	info := e.source.Info()
	drawData := map[string]any{
		"draw_id":       key,
		"draw_number":   spec.DrawNumber,
		"lottery_id":    spec.LotteryID,
		"lottery_name":  spec.LotteryName,
		"draw_date":     spec.DrawDate.UTC().Format(time.RFC3339Nano),
		"main_numbers":  mainNumbers,
		"extra_numbers": extraNumbers,
		"ticket_count":  len(tickets),
		"rng_provider":  info.Name,
		"created_at":    e.now().UTC().Format(time.RFC3339Nano),
	}

	record, err := e.verifier.Seal(drawData, info.Map())
	if err != nil {
		return nil, fmt.Errorf("seal draw data: %w", err)
	}

	if err := e.classifyTickets(ctx, spec, key, tickets, mainNumbers, extraNumbers); err != nil {
		return nil, err
	}

	if err := e.aggregateTiers(spec, key, len(tickets)); err != nil {
		return nil, err
	}

	state.MainNumbers = mainNumbers
	state.ExtraNumbers = extraNumbers
	state.Provider = info.Name
	state.TicketCount = int64(len(tickets))
	state.Verification = record
	state.VerificationHash = record.Hash
	state.PublicProofURL = fmt.Sprintf("/api/lottery/draws/%s/verify", key)
	state.Status = draw.StatusCompleted
	state.UpdatedAt = e.now().UTC()

	if err := e.store.PutState(key, state); err != nil {
		return nil, fmt.Errorf("persist draw state: %w", err)
	}
	return state, nil
}

// classifyTickets fans ticket classification out over a bounded worker
// pool. Each ticket's outcome is independent and write-once, guarded by the
// existing-assignment check.
func (e *Engine) classifyTickets(ctx context.Context, spec draw.Spec, key string, tickets []draw.TicketSelection, mainNumbers, extraNumbers []int) error {
	if len(tickets) == 0 {
		return nil
	}

	workers := e.workers
	if workers > len(tickets) {
		workers = len(tickets)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	jobs := make(chan draw.TicketSelection)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ticket := range jobs {
				if err := e.classifyTicket(spec, key, ticket, mainNumbers, extraNumbers, int64(len(tickets))); err != nil {
					fail(err)
				}
			}
		}()
	}

	for _, ticket := range tickets {
		select {
		case jobs <- ticket:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (e *Engine) classifyTicket(spec draw.Spec, key string, ticket draw.TicketSelection, mainNumbers, extraNumbers []int, ticketCount int64) error {
	// Idempotency: a ticket that already has an assignment for this draw is
	// a no-op, detected by lookup rather than re-derivation.
	if _, err := e.store.GetAssignment(key, ticket.TicketID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("lookup assignment for ticket %s: %w", ticket.TicketID, err)
	}

	mainMatches, extraMatches := prize.Classify(ticket, mainNumbers, extraNumbers)

	tier, ok := prize.ResolveTier(e.tiers[spec.LotteryID], mainMatches, extraMatches)
	if !ok {
		// Normal non-winning path.
		return nil
	}

	assignment := &draw.WinAssignment{
		TicketID:     ticket.TicketID,
		TierName:     tier.Name,
		Amount:       prize.Payout(tier, spec, ticketCount),
		MainMatches:  mainMatches,
		ExtraMatches: extraMatches,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.store.PutAssignment(key, assignment); err != nil {
		// A concurrent worker or earlier attempt already recorded the win.
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("persist assignment for ticket %s: %w", ticket.TicketID, err)
	}
	return nil
}

// aggregateTiers writes one TierResult per tier with at least one winner.
// It runs serially after all per-ticket classification completes so winner
// counts cannot race.
func (e *Engine) aggregateTiers(spec draw.Spec, key string, ticketCount int) error {
	assignments, err := e.store.ListAssignments(key)
	if err != nil {
		return fmt.Errorf("list assignments: %w", err)
	}

	winners := make(map[string]int)
	for _, assignment := range assignments {
		winners[assignment.TierName]++
	}

	for _, tier := range e.tiers[spec.LotteryID] {
		count := winners[tier.Name]
		if count == 0 {
			continue
		}
		result := &draw.TierResult{
			TierName:     tier.Name,
			WinnersCount: count,
			PrizeAmount:  prize.Payout(tier, spec, int64(ticketCount)),
			CreatedAt:    e.now().UTC(),
		}
		if err := e.store.PutTierResult(key, result); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return fmt.Errorf("persist tier result %s: %w", tier.Name, err)
		}
	}
	return nil
}

// VerifyDraw re-verifies the stored verification record of a completed
// draw. The stored winning numbers must match the sealed payload and the
// keyed hash must recompute; a passing draw moves from completed to
// verified.
func (e *Engine) VerifyDraw(spec draw.Spec) (verify.Result, error) {
	key := spec.Key()
	state, err := e.store.GetState(key)
	if err != nil {
		return verify.Result{}, err
	}
	if state.Status != draw.StatusCompleted && state.Status != draw.StatusVerified {
		return verify.Result{}, &draw.InvalidStateError{Expected: draw.StatusCompleted, Actual: state.Status}
	}
	if !state.Sealed() || state.VerificationHash == "" {
		return verify.Result{
			IsValid:          false,
			VerificationTime: e.now().UTC(),
			DrawID:           key,
			Reason:           "missing verification record",
		}, nil
	}

	// The numbers on record must equal the sealed ones; an edit after
	// sealing is tampering even before the hash check.
	if !numbersMatch(state.Verification.DrawData["main_numbers"], state.MainNumbers) ||
		!numbersMatch(state.Verification.DrawData["extra_numbers"], state.ExtraNumbers) {
		e.log.Warn("draw numbers do not match sealed record", "draw_id", key)
		return verify.Result{
			IsValid:          false,
			VerificationTime: e.now().UTC(),
			DrawID:           key,
			Reason:           "winning numbers do not match sealed record",
		}, nil
	}

	result, err := e.verifier.VerifyDrawResults(state.Verification, state.VerificationHash)
	if err != nil {
		return verify.Result{}, err
	}

	if result.IsValid && state.Status == draw.StatusCompleted {
		if _, err := e.store.TransitionStatus(key, draw.StatusCompleted, draw.StatusVerified); err != nil {
			return verify.Result{}, err
		}
		e.emit(events.TypeDrawVerified, spec.LotteryID, map[string]any{"draw_id": key})
	}
	return result, nil
}

// PublicProof returns the redacted shareable proof for a completed draw.
func (e *Engine) PublicProof(spec draw.Spec) (*verify.PublicProof, error) {
	state, err := e.store.GetState(spec.Key())
	if err != nil {
		return nil, err
	}
	if state.Status != draw.StatusCompleted && state.Status != draw.StatusVerified {
		return nil, &draw.InvalidStateError{Expected: draw.StatusCompleted, Actual: state.Status}
	}

	drawTime := spec.DrawDate
	if state.Sealed() {
		if s, ok := state.Verification.DrawData["draw_date"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
				drawTime = parsed
			}
		}
	}
	return e.verifier.GeneratePublicProof(spec.Key(), state.MainNumbers, drawTime)
}

func (e *Engine) emit(eventType, lotteryID string, data any) {
	if e.emitter == nil {
		return
	}
	if err := e.emitter.Emit(eventType, lotteryID, data); err != nil {
		e.log.Warn("event publish failed", "type", eventType, "lottery_id", lotteryID, "err", err)
	}
}

// numbersMatch compares the stored numbers against the sealed payload
// value, which round-trips through JSON as []any of float64.
func numbersMatch(sealed any, current []int) bool {
	switch v := sealed.(type) {
	case []int:
		if len(v) != len(current) {
			return false
		}
		for i, n := range v {
			if n != current[i] {
				return false
			}
		}
		return true
	case []any:
		if len(v) != len(current) {
			return false
		}
		for i, item := range v {
			f, ok := item.(float64)
			if !ok || int(f) != current[i] {
				return false
			}
		}
		return true
	case nil:
		return len(current) == 0
	default:
		return false
	}
}
