package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Slowpokess/euro-lottery/internal/draw"
)

// Tiers converts the configured prize tiers into domain tiers, parsing the
// decimal amounts.
func (l LotteryConfig) Tiers() ([]draw.PrizeTier, error) {
	tiers := make([]draw.PrizeTier, 0, len(l.PrizeTiers))
	for _, tc := range l.PrizeTiers {
		tier := draw.PrizeTier{
			Name:         tc.Name,
			MainMatches:  tc.MainMatches,
			ExtraMatches: tc.ExtraMatches,
			Kind:         draw.PayoutKind(tc.Kind),
			Odds:         tc.Odds,
		}
		switch tier.Kind {
		case draw.PayoutFixed:
			amount, err := decimal.NewFromString(tc.FixedAmount)
			if err != nil {
				return nil, fmt.Errorf("tier %q: invalid fixed_amount %q: %w", tc.Name, tc.FixedAmount, err)
			}
			tier.FixedAmount = amount
		case draw.PayoutPercentage:
			percent, err := decimal.NewFromString(tc.PoolPercent)
			if err != nil {
				return nil, fmt.Errorf("tier %q: invalid pool_percent %q: %w", tc.Name, tc.PoolPercent, err)
			}
			tier.PoolPercent = percent
		case draw.PayoutJackpot:
			// Amount comes from the draw's jackpot at stake.
		default:
			return nil, fmt.Errorf("tier %q: unknown payout kind %q", tc.Name, tc.Kind)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
}

// Price returns the parsed ticket price.
func (l LotteryConfig) Price() (decimal.Decimal, error) {
	price, err := decimal.NewFromString(l.TicketPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid ticket_price %q: %w", l.TicketPrice, err)
	}
	return price, nil
}

// Pool returns the parsed prize pool share of ticket revenue.
func (l LotteryConfig) Pool() (decimal.Decimal, error) {
	share, err := decimal.NewFromString(l.PoolShare)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid pool_share %q: %w", l.PoolShare, err)
	}
	return share, nil
}

// Jackpot returns the parsed base jackpot.
func (l LotteryConfig) Jackpot() (decimal.Decimal, error) {
	jackpot, err := decimal.NewFromString(l.BaseJackpot)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base_jackpot %q: %w", l.BaseJackpot, err)
	}
	return jackpot, nil
}
