package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/planhive/backend/api/transport"
	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/internal/services/viewhub"
	"github.com/planhive/backend/internal/shard"
	"github.com/planhive/backend/pkg/httpcontext"
	eventsUC "github.com/planhive/backend/usecase/events"
	syncUC "github.com/planhive/backend/usecase/sync"
)

type EventsHandler struct {
	baseHandler
	uc  *eventsUC.UseCase
	hub *viewhub.Hub
}

func NewEventsHandler(uc *eventsUC.UseCase, hub *viewhub.Hub, adapter *httpcontext.Adapter, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		hub:         hub,
	}
}

// @Summary List a month's events
// @Tags events
// @Router /api/v1/events [get]
func (h *EventsHandler) GetMonth(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	ref, shardKey, ok := h.parseMonth(ctx)
	if !ok {
		return
	}
	sel := h.selection(ctx, userID)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	views, err := h.hub.Ensure(stdCtx, userID, sel, ref)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.hub.WaitLoaded(stdCtx, views, sel, []string{shardKey}, 0)

	events := views.EventsForMonth(sel, shardKey)
	syncUC.SortByStart(events)
	h.respondSuccess(ctx, http.StatusOK, events)
}

// @Summary List a day's events
// @Tags events
// @Router /api/v1/events/day [get]
func (h *EventsHandler) GetDay(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	day, ok := h.parseDate(ctx)
	if !ok {
		return
	}
	sel := h.selection(ctx, userID)
	showDeleted, _ := strconv.ParseBool(string(ctx.QueryArgs().Peek("showDeleted")))

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	views, err := h.hub.Ensure(stdCtx, userID, sel, day)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.hub.WaitLoaded(stdCtx, views, sel, []string{shard.Key(day)}, 0)

	events := views.EventsForDay(sel, day, showDeleted)
	syncUC.SortByStart(events)
	h.respondSuccess(ctx, http.StatusOK, events)
}

// @Summary List embedded activities
// @Tags activities
// @Router /api/v1/activities [get]
func (h *EventsHandler) GetActivities(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	sel := h.selection(ctx, userID)

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if date := string(ctx.QueryArgs().Peek("date")); date != "" {
		day, ok := h.parseDate(ctx)
		if !ok {
			return
		}
		views, err := h.hub.Ensure(stdCtx, userID, sel, day)
		if err != nil {
			h.respondError(ctx, err)
			return
		}
		h.hub.WaitLoaded(stdCtx, views, sel, []string{shard.Key(day)}, 0)
		h.respondSuccess(ctx, http.StatusOK, views.ActivitiesForDay(sel, day))
		return
	}

	if month := string(ctx.QueryArgs().Peek("month")); month != "" {
		ref, shardKey, ok := h.parseMonth(ctx)
		if !ok {
			return
		}
		views, err := h.hub.Ensure(stdCtx, userID, sel, ref)
		if err != nil {
			h.respondError(ctx, err)
			return
		}
		h.hub.WaitLoaded(stdCtx, views, sel, []string{shardKey}, 0)
		h.respondSuccess(ctx, http.StatusOK, views.ActivitiesForMonth(sel, shardKey))
		return
	}

	// No filter: everything cached so far for the caller's own entity.
	views, err := h.hub.Ensure(stdCtx, userID, sel, time.Now())
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, views.Activities.ActivitiesForEntity(userID))
}

// @Summary Create event
// @Tags events
// @Router /api/v1/events [post]
func (h *EventsHandler) Create(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	req, ok := h.parseEvent(ctx)
	if !ok {
		return
	}
	ev := req.ToDomain()

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.uc.Create(stdCtx, userID, eventsUC.TargetFor(userID, ev), ev)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusCreated, transport.NewSuccess(res.Event, reminderMeta(res)))
}

// @Summary Update event
// @Tags events
// @Router /api/v1/events/{id} [put]
func (h *EventsHandler) Update(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	req, ok := h.parseEvent(ctx)
	if !ok {
		return
	}
	ev := req.ToDomain()
	if ev.ID == "" {
		if id, ok := ctx.UserValue("id").(string); ok {
			ev.ID = id
		}
	}
	prevStart := req.PrevStartTime
	if prevStart == "" {
		prevStart = ev.StartTime
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.uc.Update(stdCtx, userID, eventsUC.TargetFor(userID, ev), prevStart, ev)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(res.Event, reminderMeta(res)))
}

// @Summary Replace an event's activities
// @Tags activities
// @Router /api/v1/events/{id}/activities [put]
func (h *EventsHandler) UpdateActivities(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	eventID, _ := ctx.UserValue("id").(string)
	if eventID == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "missing event id", nil))
		return
	}

	var req transport.ActivitiesRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return
	}

	target, ok := h.target(ctx, userID)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.uc.UpdateActivities(stdCtx, userID, target, eventID, req.StartTime, req.Activities)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(res.Event, reminderMeta(res)))
}

// @Summary Delete event
// @Tags events
// @Router /api/v1/events/{id} [delete]
func (h *EventsHandler) Delete(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	eventID, _ := ctx.UserValue("id").(string)
	startTime := string(ctx.QueryArgs().Peek("startTime"))
	if eventID == "" || startTime == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "missing event id or startTime", nil))
		return
	}

	target, ok := h.target(ctx, userID)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Delete(stdCtx, userID, target, eventID, startTime); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusNoContent, nil)
}

// target resolves the shard family from calendarId and source query args.
// Both default to the caller's personal collection.
func (h *EventsHandler) target(ctx *fasthttp.RequestCtx, userID string) (eventsUC.Target, bool) {
	probe := &domain.Event{
		CalendarID: string(ctx.QueryArgs().Peek("calendarId")),
		Source:     domain.Source(string(ctx.QueryArgs().Peek("source"))),
	}
	if probe.IsExternal() && probe.CalendarID == "" {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "external events require calendarId", nil))
		return eventsUC.Target{}, false
	}
	return eventsUC.TargetFor(userID, probe), true
}

func (h *EventsHandler) parseEvent(ctx *fasthttp.RequestCtx) (transport.EventRequest, bool) {
	var req transport.EventRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalid), "invalid payload", nil))
		return req, false
	}
	return req, true
}

func (h *EventsHandler) parseMonth(ctx *fasthttp.RequestCtx) (time.Time, string, bool) {
	month := string(ctx.QueryArgs().Peek("month"))
	if month == "" {
		now := time.Now()
		return now, shard.Key(now), true
	}
	ref, err := time.Parse(shard.KeyLayout, month)
	if err != nil {
		h.respondJSON(ctx, http.StatusBadRequest, transport.NewError(string(domain.ErrCodeInvalidDate), "month must be YYYY-MM", nil))
		return time.Time{}, "", false
	}
	return ref, shard.Key(ref), true
}

func (h *EventsHandler) parseDate(ctx *fasthttp.RequestCtx) (time.Time, bool) {
	date := string(ctx.QueryArgs().Peek("date"))
	if date == "" {
		return time.Now(), true
	}
	day, err := domain.ParseTimestamp(date)
	if err != nil {
		h.respondError(ctx, err)
		return time.Time{}, false
	}
	return day, true
}

// selection splits the read scope by shard family: the caller's own entity
// plus any groups requested stay in the activities family, while provider
// calendars from the calendars query arg go to the calendars family.
func (h *EventsHandler) selection(ctx *fasthttp.RequestCtx, userID string) viewhub.Selection {
	sel := viewhub.Selection{Activities: []string{userID}}
	for _, group := range splitArg(ctx, "groups") {
		if group != userID {
			sel.Activities = append(sel.Activities, group)
		}
	}
	sel.Calendars = splitArg(ctx, "calendars")
	return sel
}

func splitArg(ctx *fasthttp.RequestCtx, name string) []string {
	var out []string
	for _, part := range strings.Split(string(ctx.QueryArgs().Peek(name)), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func reminderMeta(res *eventsUC.SaveResult) transport.ReminderMeta {
	meta := transport.ReminderMeta{
		Scheduled: res.Reminder.Scheduled,
		Skipped:   res.Reminder.Skipped,
		Cancelled: res.Reminder.Cancelled,
	}
	if res.ReminderWarning != nil {
		meta.Warning = res.ReminderWarning.Error()
	}
	return meta
}
