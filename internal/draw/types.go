// Package draw defines the domain types shared by the draw engine,
// prize resolver and verification service.
package draw

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a draw.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusVerified   Status = "verified"
)

// PayoutKind selects how a prize tier amount is computed.
type PayoutKind string

const (
	PayoutFixed      PayoutKind = "fixed"
	PayoutPercentage PayoutKind = "percentage"
	PayoutJackpot    PayoutKind = "jackpot"
)

// Spec is the immutable description of one draw instance. It is created by
// the scheduling collaborator before the engine runs and is read-only here.
type Spec struct {
	LotteryID     string          `json:"lottery_id"`
	LotteryName   string          `json:"lottery_name"`
	DrawNumber    int64           `json:"draw_number"`
	MainCount     int             `json:"main_count"`
	MainRange     int             `json:"main_range"`
	ExtraCount    int             `json:"extra_count"`
	ExtraRange    int             `json:"extra_range"`
	DrawDate      time.Time       `json:"draw_date"`
	JackpotAmount decimal.Decimal `json:"jackpot_amount"`
	TicketPrice   decimal.Decimal `json:"ticket_price"`
	// PoolShare is the fraction of ticket revenue that funds the prize pool.
	PoolShare decimal.Decimal `json:"pool_share"`
}

// Key identifies a draw in storage.
func (s Spec) Key() string {
	return fmt.Sprintf("%s/%d", s.LotteryID, s.DrawNumber)
}

// State is the mutable record owned by the engine during execution.
type State struct {
	LotteryID        string              `json:"lottery_id"`
	DrawNumber       int64               `json:"draw_number"`
	Status           Status              `json:"status"`
	MainNumbers      []int               `json:"main_numbers,omitempty"`
	ExtraNumbers     []int               `json:"extra_numbers,omitempty"`
	VerificationHash string              `json:"verification_hash,omitempty"`
	Verification     *VerificationRecord `json:"verification_record,omitempty"`
	Provider         string              `json:"provider,omitempty"`
	TicketCount      int64               `json:"ticket_count"`
	PublicProofURL   string              `json:"public_proof_url,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

// Sealed reports whether the draw carries a verification record. Once sealed,
// the winning numbers must never change without invalidating the stored hash.
func (s *State) Sealed() bool {
	return s.Verification != nil
}

// TicketSelection is the caller-supplied numbers for one ticket. Immutable
// once submitted.
type TicketSelection struct {
	TicketID     string `json:"ticket_id"`
	MainNumbers  []int  `json:"main_numbers"`
	ExtraNumbers []int  `json:"extra_numbers"`
}

// PrizeTier is static per-lottery configuration matched by the exact
// (main matches, extra matches) pair.
type PrizeTier struct {
	Name         string          `json:"name"`
	MainMatches  int             `json:"main_matches"`
	ExtraMatches int             `json:"extra_matches"`
	Kind         PayoutKind      `json:"kind"`
	FixedAmount  decimal.Decimal `json:"fixed_amount"`
	PoolPercent  decimal.Decimal `json:"pool_percent"`
	Odds         string          `json:"odds,omitempty"`
}

// WinAssignment records one winning ticket. Created at most once per ticket
// within a draw.
type WinAssignment struct {
	TicketID     string          `json:"ticket_id"`
	TierName     string          `json:"tier_name"`
	Amount       decimal.Decimal `json:"amount"`
	MainMatches  int             `json:"main_matches"`
	ExtraMatches int             `json:"extra_matches"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TierResult aggregates winners for one tier of one draw. Written once per
// (draw, tier) pair after all tickets are classified.
type TierResult struct {
	TierName     string          `json:"tier_name"`
	WinnersCount int             `json:"winners_count"`
	PrizeAmount  decimal.Decimal `json:"prize_amount"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TotalPayout is the per-winner amount times the winner count.
func (r TierResult) TotalPayout() decimal.Decimal {
	return r.PrizeAmount.Mul(decimal.NewFromInt(int64(r.WinnersCount)))
}

// VerificationRecord is the opaque envelope produced at seal time. Any edit
// invalidates the hash.
type VerificationRecord struct {
	VerificationID string         `json:"verification_id"`
	Timestamp      string         `json:"timestamp"`
	DrawData       map[string]any `json:"draw_data"`
	ProviderInfo   map[string]any `json:"provider_info"`
	Hash           string         `json:"hash"`
}

// InvalidStateError reports a draw that is not in the status an operation
// requires. Callers decide whether to retry later.
type InvalidStateError struct {
	Expected Status
	Actual   Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("draw status is %q, want %q", e.Actual, e.Expected)
}
