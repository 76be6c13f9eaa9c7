package ui

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jw6ventures/bookings/internal/auth"
	"github.com/jw6ventures/bookings/internal/availability"
	"github.com/jw6ventures/bookings/internal/http/errors"
	"github.com/jw6ventures/bookings/internal/i18n"
)

type rangeView struct {
	Start string
	End   string
}

type dayView struct {
	Index  int
	Name   string
	Ranges []rangeView
}

// editorView is what availability_edit.html renders: either the stored
// schedule or the values the user just submitted.
type editorView struct {
	ID        int64
	Name      string
	TimeZone  string
	IsDefault bool
	Days      []dayView
	Groups    []availability.EventTypeGroup
	Fields    map[string]string
}

// Availability lists the user's schedules.
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	schedules, err := h.availability.List(r.Context(), user.ID)
	if err != nil {
		errors.InternalError(w, r, err, "failed to load schedules")
		return
	}
	data := h.withFlash(r, map[string]any{
		"Title":     "Availability",
		"User":      user,
		"Schedules": schedules,
	})
	h.render(w, r, "availability.html", data)
}

// EditSchedule renders the editor for one schedule.
func (h *Handler) EditSchedule(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := availability.ParseScheduleID(chi.URLParam(r, "schedule"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	form, err := h.availability.Load(r.Context(), user.ID, id)
	if err != nil {
		if status, ok := errors.StatusOf(err); ok && status == http.StatusNotFound {
			http.NotFound(w, r)
			return
		}
		errors.InternalError(w, r, err, "failed to load schedule")
		return
	}
	groups, err := h.availability.EventTypes(r.Context(), user.ID, id)
	if err != nil {
		errors.InternalError(w, r, err, "failed to load event types")
		return
	}

	h.renderEditor(w, r, http.StatusOK, newEditorView(form, groups, nil), "")
}

// UpdateSchedule saves the submitted editor form. Success returns to the
// list with a notice naming the schedule; failures re-render the editor with
// the submitted values.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id, ok := availability.ParseScheduleID(chi.URLParam(r, "schedule"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	tr := translator(r)

	in, err := parseScheduleForm(r, id)
	if err == nil {
		var form *availability.Form
		form, err = h.availability.Update(r.Context(), user.ID, in)
		if err == nil {
			h.redirect(w, r, "/availability", map[string]string{"status": tr.T(i18n.ScheduleUpdated, form.Name)})
			return
		}
	}

	status, classified := errors.StatusOf(err)
	if classified && status == http.StatusNotFound {
		http.NotFound(w, r)
		return
	}

	var flash string
	var fields map[string]string
	if classified {
		e := errors.As(err)
		flash = fmt.Sprintf("%d: %s", status, e.Message)
		fields = e.Fields
	} else {
		errors.LogError(r, "failed to update schedule", err)
		status = http.StatusInternalServerError
		flash = tr.T(i18n.SomethingWentWrong)
	}

	groups, gerr := h.availability.EventTypes(r.Context(), user.ID, id)
	if gerr != nil {
		errors.LogError(r, "failed to load event types", gerr)
	}
	submitted := &availability.Form{
		ID:        id,
		Name:      in.Name,
		TimeZone:  in.TimeZone,
		IsDefault: in.IsDefault,
		Schedule:  in.Schedule,
	}
	if in.EventTypeIDs != nil {
		submitted.EventTypeIDs = *in.EventTypeIDs
	} else {
		submitted.EventTypeIDs = selectedIn(groups)
	}
	h.renderEditor(w, r, status, newEditorView(submitted, groups, fields), flash)
}

func (h *Handler) renderEditor(w http.ResponseWriter, r *http.Request, status int, view editorView, flashError string) {
	user, _ := auth.UserFromContext(r.Context())
	data := h.withFlash(r, map[string]any{
		"Title":     view.Name,
		"User":      user,
		"Schedule":  view,
		"TimeZones": timeZones,
	})
	if flashError != "" {
		data["FlashError"] = flashError
	}
	h.renderStatus(w, r, status, "availability_edit.html", data)
}

func newEditorView(form *availability.Form, groups []availability.EventTypeGroup, fields map[string]string) editorView {
	view := editorView{
		ID:        form.ID,
		Name:      form.Name,
		TimeZone:  form.TimeZone,
		IsDefault: form.IsDefault,
		Fields:    fields,
	}
	for d := 0; d < availability.DaysPerWeek; d++ {
		day := dayView{Index: d, Name: time.Weekday(d).String()}
		if d < len(form.Schedule) {
			for _, tr := range form.Schedule[d] {
				day.Ranges = append(day.Ranges, rangeView{
					Start: availability.FormatClock(tr.Start),
					End:   availability.FormatClock(tr.End),
				})
			}
		}
		view.Days = append(view.Days, day)
	}

	selected := make(map[int64]bool, len(form.EventTypeIDs))
	for _, id := range form.EventTypeIDs {
		selected[id] = true
	}
	for _, g := range groups {
		opts := make([]availability.EventTypeOption, len(g.Options))
		for i, o := range g.Options {
			o.Selected = selected[o.ID]
			opts[i] = o
		}
		g.Options = opts
		view.Groups = append(view.Groups, g)
	}
	return view
}

func selectedIn(groups []availability.EventTypeGroup) []int64 {
	var ids []int64
	for _, g := range groups {
		for _, o := range g.Options {
			if o.Selected {
				ids = append(ids, o.ID)
			}
		}
	}
	return ids
}

// parseScheduleForm reads the editor form. Each day posts parallel
// day_<n>_start and day_<n>_end values in HH:MM; rows left blank are
// skipped. The event type selection is only applied when event_types_sync
// is posted.
func parseScheduleForm(r *http.Request, id int64) (availability.UpdateInput, error) {
	in := availability.UpdateInput{ScheduleID: id}
	if err := r.ParseForm(); err != nil {
		return in, errors.Validation("invalid form")
	}

	in.Name = r.PostFormValue("name")
	in.TimeZone = r.PostFormValue("time_zone")
	in.IsDefault = r.PostFormValue("is_default") != ""

	verr := errors.Validation("invalid schedule")
	in.Schedule = make([][]availability.TimeRange, availability.DaysPerWeek)
	for d := range in.Schedule {
		in.Schedule[d] = []availability.TimeRange{}
		starts := r.PostForm[fmt.Sprintf("day_%d_start", d)]
		ends := r.PostForm[fmt.Sprintf("day_%d_end", d)]
		if len(starts) != len(ends) {
			verr.WithField(fmt.Sprintf("schedule[%d]", d), "every row needs a start and an end")
			continue
		}
		for i := range starts {
			if strings.TrimSpace(starts[i]) == "" && strings.TrimSpace(ends[i]) == "" {
				continue
			}
			start, serr := availability.ParseClock(starts[i])
			end, eerr := availability.ParseClock(ends[i])
			if serr != nil || eerr != nil {
				verr.WithField(fmt.Sprintf("schedule[%d][%d]", d, i), "times must be HH:MM")
				continue
			}
			in.Schedule[d] = append(in.Schedule[d], availability.TimeRange{Start: start, End: end})
		}
	}

	if r.PostForm.Has("event_types_sync") {
		ids := []int64{}
		for _, raw := range r.PostForm["event_type_id"] {
			etID, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
			if err != nil || etID <= 0 {
				verr.WithField("eventTypeIds", "invalid event type")
				continue
			}
			ids = append(ids, etID)
		}
		in.EventTypeIDs = &ids
	}

	if len(verr.Fields) > 0 {
		return in, verr
	}
	return in, nil
}
