package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"go.uber.org/zap"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/internal/shard"
	"github.com/planhive/backend/repository"
)

// ICSImporter pulls an iCal feed and mirrors its events into month shards
// with source "ical". The feed is read-only origin data: events deleted
// locally stay soft-deleted and are never resurrected by a re-import.
type ICSImporter struct {
	store  repository.DocumentStore
	client *http.Client
	logger *zap.Logger
}

func NewICSImporter(store repository.DocumentStore, logger *zap.Logger) *ICSImporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ICSImporter{
		store: store,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// ImportFeed fetches, parses and shards one feed. Returns how many events
// were written. Individual unparseable VEVENTs are skipped, not fatal.
func (i *ICSImporter) ImportFeed(ctx context.Context, feedURL, calendarID string) (int, error) {
	body, err := i.fetch(ctx, feedURL)
	if err != nil {
		return 0, err
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return 0, domain.WrapError(domain.ErrCodeValidation, "ics parse failed", err)
	}

	// Group imported events by their shard month.
	byShard := make(map[string]map[string]domain.Event)
	for _, ve := range cal.Events() {
		ev, ok := i.parseVEvent(ve, calendarID)
		if !ok {
			continue
		}
		key, err := shard.KeyForTimestamp(ev.StartTime)
		if err != nil {
			continue
		}
		if byShard[key] == nil {
			byShard[key] = make(map[string]domain.Event)
		}
		byShard[key][ev.ID] = ev
	}

	written := 0
	for key, events := range byShard {
		n, err := i.writeShard(ctx, calendarID, key, events)
		if err != nil {
			return written, err
		}
		written += n
	}
	i.logger.Info("ics feed imported",
		zap.String("calendar_id", calendarID),
		zap.Int("events", written),
		zap.Int("shards", len(byShard)))
	return written, nil
}

func (i *ICSImporter) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeValidation, "bad feed url", err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "ics fetch failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewError(domain.ErrCodeTransport, "ics fetch returned "+resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "ics read failed", err)
	}
	return body, nil
}

// parseVEvent maps one VEVENT onto a domain event. The UID is the item key,
// so re-imports overwrite in place.
func (i *ICSImporter) parseVEvent(ve *ical.VEvent, calendarID string) (domain.Event, bool) {
	var ev domain.Event

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, false
	}
	start, err := ve.GetStartAt()
	if err != nil {
		i.logger.Warn("skipping vevent without start", zap.String("uid", uid.Value), zap.Error(err))
		return ev, false
	}
	end, _ := ve.GetEndAt()

	allDay := false
	if dtStart := ve.GetProperty(ical.ComponentPropertyDtStart); dtStart != nil {
		if params := dtStart.ICalParameters; params != nil {
			if vs, ok := params["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
				allDay = true
			}
		}
		if !strings.Contains(dtStart.Value, "T") {
			allDay = true
		}
	}

	ev = domain.Event{
		ID:         uid.Value,
		CalendarID: calendarID,
		Source:     domain.SourceICal,
		IsAllDay:   allDay,
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		ev.Description = p.Value
	}
	if ev.Title == "" {
		ev.Title = "(untitled)"
	}

	if allDay {
		ev.StartTime = start.Format("2006-01-02")
		if !end.IsZero() {
			ev.EndTime = end.Format("2006-01-02")
		}
	} else {
		ev.StartTime = start.Format(time.RFC3339)
		if !end.IsZero() {
			ev.EndTime = end.Format(time.RFC3339)
		}
	}
	return ev, true
}

// writeShard merges imported events into one shard, preserving local soft
// deletes: an item the user deleted stays deleted no matter what the feed
// says.
func (i *ICSImporter) writeShard(ctx context.Context, calendarID, key string, events map[string]domain.Event) (int, error) {
	path := repository.Calendars.ShardPath(calendarID, key)

	existing, err := i.store.Get(ctx, path)
	if err != nil && !domain.IsDomainError(err, domain.ErrCodeNotFound) {
		return 0, err
	}

	partial := make(repository.Document, len(events))
	for id, ev := range events {
		if prior, ok := existing[id]; ok && isDeleted(prior) {
			continue
		}
		item, err := encodeICSItem(&ev)
		if err != nil {
			i.logger.Warn("skipping unencodable ics event", zap.String("uid", id), zap.Error(err))
			continue
		}
		partial[id] = item
	}
	if len(partial) == 0 {
		return 0, nil
	}
	if err := i.store.SetMerge(ctx, path, partial); err != nil {
		return 0, err
	}
	return len(partial), nil
}

func isDeleted(raw any) bool {
	item, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	deleted, _ := item["deleted"].(bool)
	return deleted
}

func encodeICSItem(ev *domain.Event) (map[string]any, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var item map[string]any
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, err
	}
	delete(item, "id")
	return item, nil
}
