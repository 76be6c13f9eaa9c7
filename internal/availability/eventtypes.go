package availability

import (
	"strconv"

	"github.com/jw6ventures/bookings/internal/store"
)

// EventTypeOption is one entry of the event type selector.
type EventTypeOption struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Selected bool   `json:"selected"`
}

// EventTypeGroup collects the event types of one team or one user.
type EventTypeGroup struct {
	Key     string            `json:"key"`
	Label   string            `json:"label"`
	TeamID  *int64            `json:"teamId,omitempty"`
	Options []EventTypeOption `json:"options"`
}

// GroupEventTypes groups team event types by team and personal ones by
// owner. Groups keep first-seen order and members keep input order.
func GroupEventTypes(eventTypes []store.EventType, scheduleID int64) []EventTypeGroup {
	groups := []EventTypeGroup{}
	index := make(map[string]int)

	for _, et := range eventTypes {
		key, label := groupOf(et)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, EventTypeGroup{Key: key, Label: label, TeamID: et.TeamID})
		}
		groups[i].Options = append(groups[i].Options, EventTypeOption{
			ID:       et.ID,
			Title:    et.Title,
			Selected: et.ScheduleID != nil && *et.ScheduleID == scheduleID,
		})
	}
	return groups
}

func groupOf(et store.EventType) (key, label string) {
	if et.TeamID != nil {
		return "team:" + strconv.FormatInt(*et.TeamID, 10), et.TeamName
	}
	if et.UserID != nil {
		return "user:" + strconv.FormatInt(*et.UserID, 10), et.OwnerName
	}
	return "user:", et.OwnerName
}
