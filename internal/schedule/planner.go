// Package schedule plans upcoming draws: the next draw date from the
// lottery's configured draw days, the next sequence number and the jackpot
// carried into it.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Slowpokess/euro-lottery/internal/config"
	"github.com/Slowpokess/euro-lottery/internal/draw"
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

type Planner struct {
	now func() time.Time
}

func NewPlanner() *Planner {
	return &Planner{now: time.Now}
}

// NextDrawDate returns the first configured draw day/time strictly after
// the current time. Draw times are UTC.
func (p *Planner) NextDrawDate(drawDays []string, drawTime string) (time.Time, error) {
	if len(drawDays) == 0 {
		return time.Time{}, fmt.Errorf("no draw days configured")
	}

	at, err := time.Parse("15:04", drawTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid draw_time %q: %w", drawTime, err)
	}

	days := make(map[time.Weekday]bool, len(drawDays))
	for _, name := range drawDays {
		day, ok := weekdays[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return time.Time{}, fmt.Errorf("invalid draw day %q", name)
		}
		days[day] = true
	}

	now := p.now().UTC()
	for offset := 0; offset < 8; offset++ {
		candidate := now.AddDate(0, 0, offset)
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
			at.Hour(), at.Minute(), 0, 0, time.UTC)
		if days[candidate.Weekday()] && candidate.After(now) {
			return candidate, nil
		}
	}
	return time.Time{}, fmt.Errorf("no valid draw day found")
}

// NextDraw builds the spec for the next scheduled draw of a lottery.
// lastSpec and lastResults describe the most recent completed draw and may
// be nil/empty for the first draw. An unclaimed jackpot rolls over: when
// the jackpot tier had zero winners, the previous jackpot is added to the
// base jackpot.
func (p *Planner) NextDraw(lotteryID string, cfg config.LotteryConfig, lastSpec *draw.Spec, lastResults []*draw.TierResult) (draw.Spec, error) {
	drawDate, err := p.NextDrawDate(cfg.DrawDays, cfg.DrawTime)
	if err != nil {
		return draw.Spec{}, err
	}

	price, err := cfg.Price()
	if err != nil {
		return draw.Spec{}, err
	}
	share, err := cfg.Pool()
	if err != nil {
		return draw.Spec{}, err
	}
	jackpot, err := p.nextJackpot(cfg, lastSpec, lastResults)
	if err != nil {
		return draw.Spec{}, err
	}

	drawNumber := int64(1)
	if lastSpec != nil {
		drawNumber = lastSpec.DrawNumber + 1
	}

	return draw.Spec{
		LotteryID:     lotteryID,
		LotteryName:   cfg.Name,
		DrawNumber:    drawNumber,
		MainCount:     cfg.MainCount,
		MainRange:     cfg.MainRange,
		ExtraCount:    cfg.ExtraCount,
		ExtraRange:    cfg.ExtraRange,
		DrawDate:      drawDate,
		JackpotAmount: jackpot,
		TicketPrice:   price,
		PoolShare:     share,
	}, nil
}

func (p *Planner) nextJackpot(cfg config.LotteryConfig, lastSpec *draw.Spec, lastResults []*draw.TierResult) (decimal.Decimal, error) {
	base, err := cfg.Jackpot()
	if err != nil {
		return decimal.Zero, err
	}
	if lastSpec == nil {
		return base, nil
	}

	jackpotTier := ""
	for _, tier := range cfg.PrizeTiers {
		if draw.PayoutKind(tier.Kind) == draw.PayoutJackpot {
			jackpotTier = tier.Name
			break
		}
	}
	if jackpotTier == "" {
		return base, nil
	}

	for _, result := range lastResults {
		if result.TierName == jackpotTier && result.WinnersCount > 0 {
			// Jackpot was won; next draw starts from the base amount.
			return base, nil
		}
	}
	return base.Add(lastSpec.JackpotAmount), nil
}
