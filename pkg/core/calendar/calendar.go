package calendar

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
)

// anchor is used as DTSTART for rules that do not carry one (a Monday)
var anchor = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Override changes the capacity of, or closes, the slots on the dates an
// rrule produces. An empty Period applies to both shifts.
type Override struct {
	RRule    string
	Period   model.Period
	Capacity *int
	Closed   bool
}

// SlotRule is the effective rule for one slot
type SlotRule struct {
	Capacity int  `json:"capacity"`
	Closed   bool `json:"closed"`
}

type compiledOverride struct {
	Override
	rule *rrule.RRule
}

// Calendar resolves slot capacity and closures over civil dates
type Calendar struct {
	threshold int
	overrides []compiledOverride
	loc       *time.Location
	logger    *zap.Logger
}

// New compiles the overrides. loc is the shelter's time zone, used for Today.
func New(threshold int, overrides []Override, loc *time.Location, logger *zap.Logger) (*Calendar, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("capacity threshold must be at least 1, got %d", threshold)
	}
	if loc == nil {
		loc = time.UTC
	}

	compiled := make([]compiledOverride, 0, len(overrides))
	for i, o := range overrides {
		rule, err := ParseRule(o.RRule)
		if err != nil {
			return nil, fmt.Errorf("failed to parse rrule for override %d: %w", i, err)
		}
		if o.Period != "" && !o.Period.IsValid() {
			return nil, fmt.Errorf("invalid period %q for override %d", o.Period, i)
		}
		compiled = append(compiled, compiledOverride{Override: o, rule: rule})

		logger.Debug("Compiled shift override",
			zap.Int("index", i),
			zap.String("rrule", o.RRule),
			zap.String("period", string(o.Period)),
			zap.Bool("closed", o.Closed),
			zap.Bool("has_capacity", o.Capacity != nil))
	}

	return &Calendar{threshold: threshold, overrides: compiled, loc: loc, logger: logger}, nil
}

// ParseRule parses an RRULE string, anchoring it to a fixed Monday when no
// DTSTART is given so that weekly rules are stable.
func ParseRule(s string) (*rrule.RRule, error) {
	opt, err := rrule.StrToROption(s)
	if err != nil {
		return nil, err
	}
	if opt.Dtstart.IsZero() {
		opt.Dtstart = anchor
	}
	return rrule.NewRRule(*opt)
}

// Threshold returns the default capacity
func (c *Calendar) Threshold() int {
	return c.threshold
}

// Today returns the current civil date in the shelter's time zone, as UTC midnight
func (c *Calendar) Today(now time.Time) time.Time {
	y, m, d := now.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Rules resolves every slot between from and to (inclusive civil dates).
// Later overrides win over earlier ones; a closure always sticks.
func (c *Calendar) Rules(from, to time.Time) map[model.SlotKey]SlotRule {
	keys := Keys(from, to)
	rules := make(map[model.SlotKey]SlotRule, len(keys))
	for _, key := range keys {
		rules[key] = SlotRule{Capacity: c.threshold}
	}
	if len(keys) == 0 {
		return rules
	}

	start := civil(from)
	end := civil(to).Add(24*time.Hour - time.Second)

	for _, o := range c.overrides {
		for _, occ := range o.rule.Between(start, end, true) {
			date := occ.Format(model.DateLayout)
			for _, p := range model.Periods {
				if o.Period != "" && o.Period != p {
					continue
				}
				key := model.SlotKey{Date: date, Period: p}
				r, ok := rules[key]
				if !ok {
					continue
				}
				if o.Capacity != nil {
					r.Capacity = *o.Capacity
				}
				if o.Closed {
					r.Closed = true
				}
				rules[key] = r
			}
		}
	}

	return rules
}

// Rule resolves a single slot
func (c *Calendar) Rule(key model.SlotKey) (SlotRule, error) {
	day, err := key.Time()
	if err != nil {
		return SlotRule{}, err
	}
	return c.Rules(day, day)[key], nil
}

// Days lists the civil dates between from and to inclusive
func Days(from, to time.Time) []string {
	start, end := civil(from), civil(to)
	var days []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(model.DateLayout))
	}
	return days
}

// Keys lists every slot between from and to inclusive, morning first
func Keys(from, to time.Time) []model.SlotKey {
	days := Days(from, to)
	keys := make([]model.SlotKey, 0, len(days)*len(model.Periods))
	for _, d := range days {
		for _, p := range model.Periods {
			keys = append(keys, model.SlotKey{Date: d, Period: p})
		}
	}
	return keys
}

// ParseRange parses two YYYY-MM-DD dates and checks their order
func ParseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(model.DateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse(model.DateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date %s is before from date %s", to, from)
	}
	return start, end, nil
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
