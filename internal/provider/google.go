// Package provider holds the external calendar integrations: Google as a
// write-through backend and iCal feeds as a read-only import source.
package provider

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/planhive/backend/domain"
	"github.com/planhive/backend/repository"
)

// GoogleCalendar writes events through to the Google Calendar API. The
// event's CalendarID is the provider-side calendar id.
type GoogleCalendar struct {
	service *calendar.Service
	logger  *zap.Logger
}

var _ repository.CalendarProvider = (*GoogleCalendar)(nil)

// NewGoogleCalendar builds a client from service-account credentials.
func NewGoogleCalendar(ctx context.Context, credentialsJSON []byte, logger *zap.Logger) (*GoogleCalendar, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, calendar.CalendarEventsScope)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "invalid google credentials", err)
	}
	service, err := calendar.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeTransport, "google calendar service init failed", err)
	}
	return &GoogleCalendar{service: service, logger: logger}, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, ev *domain.Event) (string, error) {
	gev, err := toGoogleEvent(ev)
	if err != nil {
		return "", err
	}
	created, err := g.service.Events.Insert(ev.CalendarID, gev).Context(ctx).Do()
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeTransport, "google event insert failed", err)
	}
	g.logger.Debug("google event created",
		zap.String("calendar_id", ev.CalendarID),
		zap.String("external_id", created.Id))
	return created.Id, nil
}

func (g *GoogleCalendar) UpdateEvent(ctx context.Context, ev *domain.Event) error {
	if ev.ExternalID == "" {
		return domain.NewError(domain.ErrCodeValidation, "google event missing external id")
	}
	gev, err := toGoogleEvent(ev)
	if err != nil {
		return err
	}
	if _, err := g.service.Events.Update(ev.CalendarID, ev.ExternalID, gev).Context(ctx).Do(); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "google event update failed", err)
	}
	return nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, ev *domain.Event) error {
	if ev.ExternalID == "" {
		return domain.NewError(domain.ErrCodeValidation, "google event missing external id")
	}
	if err := g.service.Events.Delete(ev.CalendarID, ev.ExternalID).Context(ctx).Do(); err != nil {
		return domain.WrapError(domain.ErrCodeTransport, "google event delete failed", err)
	}
	return nil
}

func toGoogleEvent(ev *domain.Event) (*calendar.Event, error) {
	start, err := ev.Start()
	if err != nil {
		return nil, err
	}
	end := start
	if ev.EndTime != "" {
		if end, err = domain.ParseTimestamp(ev.EndTime); err != nil {
			return nil, err
		}
	}

	gev := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
	}
	if ev.IsAllDay {
		gev.Start = &calendar.EventDateTime{Date: start.Format("2006-01-02")}
		gev.End = &calendar.EventDateTime{Date: end.Format("2006-01-02")}
	} else {
		gev.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)}
		gev.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339)}
	}
	return gev, nil
}
