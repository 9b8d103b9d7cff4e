package detect

import (
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// BackflushParams tunes the filter backflush detector.
type BackflushParams struct {
	WindowStart time.Duration // time of day, default 00:00
	WindowEnd   time.Duration // time of day, default 04:30
	MinLoss     float64       // gallons, default 50
	Span        int           // snapshot intervals the loss must occur in, default 3
	Location    *time.Location
}

// DefaultBackflushParams returns the production defaults.
func DefaultBackflushParams() BackflushParams {
	return BackflushParams{
		WindowEnd: 4*time.Hour + 30*time.Minute,
		MinLoss:   50,
		Span:      3,
		Location:  time.Local,
	}
}

// Backflush reports a large decline that begins inside the daily filter
// cleaning window. The decline is the strictly falling run ending at the
// newest snapshot; its first point is the anchor, which does not move while
// the run continues. The first Span intervals of the run must lose MinLoss.
//
// Call this on every tick: the physical event lasts 10-30 minutes.
func Backflush(snaps []logic.Snapshot, p BackflushParams) (Event, bool) {
	pts := readable(snaps)
	if len(pts) < 2 {
		return Event{}, false
	}
	last := len(pts) - 1
	start := last
	for start > 0 && pts[start-1].g > pts[start].g {
		start--
	}
	if start == last {
		return Event{}, false
	}
	if !inDailyWindow(pts[start].t, p) {
		return Event{}, false
	}

	span := p.Span
	if span < 1 {
		span = 1
	}
	end := start + span
	if end > last {
		end = last
	}
	if pts[start].g-pts[end].g < p.MinLoss {
		return Event{}, false
	}
	return Event{Kind: KindBackflush, Anchor: pts[start].t, Magnitude: pts[start].g - pts[last].g}, true
}

func inDailyWindow(t time.Time, p BackflushParams) bool {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	tod := time.Duration(lt.Hour())*time.Hour + time.Duration(lt.Minute())*time.Minute + time.Duration(lt.Second())*time.Second
	if p.WindowStart <= p.WindowEnd {
		return tod >= p.WindowStart && tod <= p.WindowEnd
	}
	// Window wraps midnight, e.g. 23:00-02:00.
	return tod >= p.WindowStart || tod <= p.WindowEnd
}
