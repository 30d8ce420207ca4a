// Package scheduling generates the clinic's fixed appointment grid: weekday
// slots of equal length between opening and closing time.
package scheduling

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrOutsideHours = errors.New("time is outside clinic hours")
	ErrWeekend      = errors.New("clinic is closed on weekends")
	ErrMisaligned   = errors.New("time does not start a slot")
)

// GridOptions configures a Grid. Zero values take the clinic defaults:
// 09:00 to 17:00, 45 minute slots, weekends closed.
type GridOptions struct {
	Open         string
	Close        string
	SlotMinutes  int
	OpenWeekends bool
	Location     *time.Location
}

// Slot is one bookable interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Grid is safe for concurrent use; it holds no mutable state.
type Grid struct {
	open, close  time.Duration
	slot         time.Duration
	openWeekends bool
	loc          *time.Location
}

func NewGrid(opts GridOptions) (*Grid, error) {
	if opts.Open == "" {
		opts.Open = "09:00"
	}
	if opts.Close == "" {
		opts.Close = "17:00"
	}
	if opts.SlotMinutes <= 0 {
		opts.SlotMinutes = 45
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	open, err := parseClock(opts.Open)
	if err != nil {
		return nil, fmt.Errorf("opening time: %w", err)
	}
	closeAt, err := parseClock(opts.Close)
	if err != nil {
		return nil, fmt.Errorf("closing time: %w", err)
	}
	slot := time.Duration(opts.SlotMinutes) * time.Minute
	if closeAt-open < slot {
		return nil, fmt.Errorf("clinic day %s-%s is shorter than one slot", opts.Open, opts.Close)
	}

	return &Grid{open: open, close: closeAt, slot: slot, openWeekends: opts.OpenWeekends, loc: opts.Location}, nil
}

// SlotLength returns the duration of one slot.
func (g *Grid) SlotLength() time.Duration { return g.slot }

// IsOpen reports whether the clinic opens on the given day.
func (g *Grid) IsOpen(day time.Time) bool {
	if g.openWeekends {
		return true
	}
	wd := day.In(g.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// DaySlots returns every slot of the given day, or nil on a closed day.
func (g *Grid) DaySlots(day time.Time) []Slot {
	if !g.IsOpen(day) {
		return nil
	}
	midnight := startOfDay(day.In(g.loc))
	var slots []Slot
	for t := g.open; t+g.slot <= g.close; t += g.slot {
		start := midnight.Add(t)
		slots = append(slots, Slot{Start: start, End: start.Add(g.slot)})
	}
	return slots
}

// Available returns the free slots starting in [from, to], skipping any
// slot whose start is in busy.
func (g *Grid) Available(from, to time.Time, busy []time.Time) []Slot {
	taken := make(map[int64]struct{}, len(busy))
	for _, b := range busy {
		taken[b.Unix()] = struct{}{}
	}

	var out []Slot
	for day := startOfDay(from.In(g.loc)); !day.After(to); day = day.AddDate(0, 0, 1) {
		for _, s := range g.DaySlots(day) {
			if s.Start.Before(from) || s.Start.After(to) {
				continue
			}
			if _, ok := taken[s.Start.Unix()]; ok {
				continue
			}
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// NextAvailable finds the first free slot on or after the day of from,
// searching up to a week ahead. A slot at the preferred clock time ("10:00")
// on the earliest open day wins over an earlier slot that day.
func (g *Grid) NextAvailable(from time.Time, busy []time.Time, preferred string) (Slot, bool) {
	want, prefErr := parseClock(preferred)
	day := startOfDay(from.In(g.loc))
	end := day.AddDate(0, 0, 7)

	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		nextDay := day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		free := g.Available(maxTime(day, from), nextDay, busy)
		if len(free) == 0 {
			continue
		}
		if prefErr == nil {
			for _, s := range free {
				if s.Start.Sub(day) == want {
					return s, true
				}
			}
		}
		return free[0], true
	}
	return Slot{}, false
}

// Validate checks that t starts a slot on the grid.
func (g *Grid) Validate(t time.Time) error {
	local := t.In(g.loc)
	if !g.IsOpen(local) {
		return ErrWeekend
	}
	offset := local.Sub(startOfDay(local))
	if offset < g.open || offset+g.slot > g.close {
		return ErrOutsideHours
	}
	if (offset-g.open)%g.slot != 0 {
		return ErrMisaligned
	}
	return nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// Location returns the clinic's time zone.
func (g *Grid) Location() *time.Location { return g.loc }

// CalendarDays counts clinic-local calendar days from a to b; negative when
// b is before a.
func (g *Grid) CalendarDays(a, b time.Time) int {
	da := startOfDay(a.In(g.loc))
	db := startOfDay(b.In(g.loc))
	y1, m1, d1 := da.Date()
	y2, m2, d2 := db.Date()
	u1 := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	u2 := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(u2.Sub(u1).Hours() / 24)
}
