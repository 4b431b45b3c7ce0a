// ABOUTME: Present projects visible messages into day-grouped display units
// ABOUTME: Pure function: same input always yields the same grouped output

package chat

import "time"

// MessageKind classifies a message for the viewer.
type MessageKind int

const (
	KindOwn MessageKind = iota // authored by the viewer
	KindBot
	KindOtherUser
)

func (k MessageKind) String() string {
	switch k {
	case KindOwn:
		return "own"
	case KindBot:
		return "bot"
	case KindOtherUser:
		return "other-user"
	default:
		return "unknown"
	}
}

// ViewMessage is a message annotated for rendering.
type ViewMessage struct {
	Message
	Kind MessageKind
}

// DayGroup is one calendar day's worth of messages.
type DayGroup struct {
	Day      time.Time // midnight of the bucket's day in the presentation location
	Label    string    // "Today", "Yesterday", a weekday name, or a date
	Messages []ViewMessage
}

// Present groups messages into ascending calendar-day buckets and classifies
// each message relative to viewerID. messages must already be in the
// (CreatedAt, ID) total order, as VisibleMessages returns them; within each
// bucket that order is preserved.
//
// Present holds no state and reads no clocks: now is passed in so the
// projection is idempotent and trivially re-runnable on every store change.
func Present(messages []Message, viewerID string, now time.Time, loc *time.Location) []DayGroup {
	if loc == nil {
		loc = time.Local
	}

	var groups []DayGroup
	for _, m := range messages {
		day := startOfDay(m.CreatedAt.In(loc))
		if len(groups) == 0 || !groups[len(groups)-1].Day.Equal(day) {
			groups = append(groups, DayGroup{
				Day:   day,
				Label: dayLabel(day, startOfDay(now.In(loc))),
			})
		}
		g := &groups[len(groups)-1]
		g.Messages = append(g.Messages, ViewMessage{
			Message: m,
			Kind:    classify(m, viewerID),
		})
	}
	return groups
}

// classify maps a message to own/bot/other-user relative to the viewer.
func classify(m Message, viewerID string) MessageKind {
	switch {
	case m.AuthorKind == AuthorBot:
		return KindBot
	case m.AuthorID == viewerID:
		return KindOwn
	default:
		return KindOtherUser
	}
}

// startOfDay truncates t to midnight in its own location.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dayLabel renders a bucket header the way the sidebar does: Today,
// Yesterday, a weekday name within the last week, then a full date.
func dayLabel(day, today time.Time) string {
	switch age := today.Sub(day); {
	case age <= 0:
		return "Today"
	case age <= 24*time.Hour:
		return "Yesterday"
	case age <= 6*24*time.Hour:
		return day.Weekday().String()
	default:
		return day.Format("January 2, 2006")
	}
}
