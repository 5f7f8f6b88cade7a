// Package prize classifies tickets against winning numbers and computes
// tier payouts.
package prize

import (
	"github.com/shopspring/decimal"

	"github.com/Slowpokess/euro-lottery/internal/draw"
)

var hundred = decimal.NewFromInt(100)

// Classify counts how many of the ticket's main and extra numbers appear in
// the winning sets. Input ordering is irrelevant on both sides.
func Classify(ticket draw.TicketSelection, winningMain, winningExtra []int) (mainMatches, extraMatches int) {
	return intersectionSize(ticket.MainNumbers, winningMain),
		intersectionSize(ticket.ExtraNumbers, winningExtra)
}

func intersectionSize(a, b []int) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[int]struct{}, len(b))
	for _, n := range b {
		set[n] = struct{}{}
	}
	count := 0
	for _, n := range a {
		if _, ok := set[n]; ok {
			count++
		}
	}
	return count
}

// ResolveTier looks up the tier matching the exact (main, extra) pair.
// A missing tier is the normal non-winning path, not an error.
func ResolveTier(tiers []draw.PrizeTier, mainMatches, extraMatches int) (draw.PrizeTier, bool) {
	for _, tier := range tiers {
		if tier.MainMatches == mainMatches && tier.ExtraMatches == extraMatches {
			return tier, true
		}
	}
	return draw.PrizeTier{}, false
}

// Payout computes the amount a single winner of the tier receives.
//
// Fixed tiers pay the configured constant. Percentage tiers pay a share of
// the prize pool: ticket revenue times the pool share, times the tier
// percentage. Jackpot tiers pay the draw's jackpot at stake; rollover of an
// unclaimed jackpot into the next draw is the scheduler's concern.
func Payout(tier draw.PrizeTier, spec draw.Spec, ticketCount int64) decimal.Decimal {
	switch tier.Kind {
	case draw.PayoutFixed:
		return tier.FixedAmount
	case draw.PayoutPercentage:
		revenue := spec.TicketPrice.Mul(decimal.NewFromInt(ticketCount))
		pool := revenue.Mul(spec.PoolShare)
		return pool.Mul(tier.PoolPercent).Div(hundred)
	case draw.PayoutJackpot:
		return spec.JackpotAmount
	default:
		return decimal.Zero
	}
}
