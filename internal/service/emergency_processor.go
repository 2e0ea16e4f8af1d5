// Package service contains the core orchestration logic of the
// emergency-alert backend: processing reported emergencies, issuing
// and consuming link invitations, and sweeping expired records. Each
// service depends on narrow store interfaces so tests can substitute
// in-memory fakes for the SQL repositories.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselink/emergency-alert-backend/internal/model"
)

// UserStore is the account lookup the processor needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (model.User, error)
}

// ContactStore lists a user's linked contacts.
type ContactStore interface {
	ListByUser(ctx context.Context, userID string) ([]model.LinkedContact, error)
}

// EmergencyStore persists the processing outcome.
type EmergencyStore interface {
	CreateEvent(ctx context.Context, ev model.EmergencyEvent) error
	MarkRequestProcessed(ctx context.Context, eventID string, ok bool, results map[string]string, errMsg string) error
}

// AlertDispatcher sends one alert to one contact.
type AlertDispatcher interface {
	Send(ctx context.Context, contact model.LinkedContact, req model.EmergencyRequest, notificationID string) error
}

// maxConcurrentSends caps the per-invocation fan-out so a very large
// contact list cannot open an unbounded number of provider calls.
const maxConcurrentSends = 8

// EmergencyProcessor handles a newly reported emergency end to end:
// load the reporter's contacts, fan the alert out to all of them
// concurrently, aggregate per-contact outcomes, persist the derived
// emergency event and terminally mark the inbound request.
type EmergencyProcessor struct {
	users       UserStore
	contacts    ContactStore
	emergencies EmergencyStore
	dispatcher  AlertDispatcher
	logger      *zap.Logger
}

// NewEmergencyProcessor wires an EmergencyProcessor from its stores.
func NewEmergencyProcessor(users UserStore, contacts ContactStore, emergencies EmergencyStore, dispatcher AlertDispatcher, logger *zap.Logger) *EmergencyProcessor {
	return &EmergencyProcessor{
		users:       users,
		contacts:    contacts,
		emergencies: emergencies,
		dispatcher:  dispatcher,
		logger:      logger,
	}
}

// Process handles one emergency request. Whatever happens, the request
// row ends up terminally marked: processed=true with the per-contact
// results map, or processed=false with the captured error message. An
// unmarked request would be a silent failure nothing downstream could
// detect, so the terminal write is the one obligation this method never
// skips. The returned error reports the processing outcome to the
// trigger transport (for logging/nack); it is already reflected in the
// stored marking.
func (p *EmergencyProcessor) Process(ctx context.Context, req model.EmergencyRequest) error {
	if _, err := p.users.GetByID(ctx, req.UserID); err != nil {
		return p.fail(ctx, req.EmergencyEventID, err)
	}

	contacts, err := p.contacts.ListByUser(ctx, req.UserID)
	if err != nil {
		return p.fail(ctx, req.EmergencyEventID, err)
	}

	// An empty contact list is not an error: the report is still
	// logged as a zero-recipient event.
	results := p.fanOut(ctx, contacts, req)

	notified := make([]string, 0, len(contacts))
	for _, c := range contacts {
		notified = append(notified, c.ContactUserID)
	}

	ev := model.EmergencyEvent{
		EmergencyEventID:   req.EmergencyEventID,
		UserID:             req.UserID,
		UserFirstName:      req.UserFirstName,
		HeartRate:          req.HeartRate,
		Severity:           req.Severity,
		Timestamp:          req.Timestamp,
		Location:           req.Location,
		ShareLocation:      req.ShareLocation,
		ContactsNotified:   notified,
		NotificationStatus: results,
	}
	if err := p.emergencies.CreateEvent(ctx, ev); err != nil {
		return p.fail(ctx, req.EmergencyEventID, err)
	}

	if err := p.emergencies.MarkRequestProcessed(ctx, req.EmergencyEventID, true, results, ""); err != nil {
		p.logger.Error("terminal marking failed after successful processing",
			zap.String("emergency_event_id", req.EmergencyEventID),
			zap.Error(err),
		)
		return err
	}

	p.logger.Info("emergency request processed",
		zap.String("emergency_event_id", req.EmergencyEventID),
		zap.Int("contacts", len(contacts)),
	)
	return nil
}

// fanOut dispatches the alert to every contact concurrently and
// independently, bounded by maxConcurrentSends, and joins on all of
// them. One contact's failure never blocks or cancels a sibling; a
// rejected delivery is recorded as data, not raised as an error.
func (p *EmergencyProcessor) fanOut(ctx context.Context, contacts []model.LinkedContact, req model.EmergencyRequest) map[string]string {
	results := make(map[string]string, len(contacts))
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, maxConcurrentSends)
	)
	for _, c := range contacts {
		wg.Add(1)
		go func(c model.LinkedContact) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := model.OutcomeSent
			if err := p.dispatcher.Send(ctx, c, req, uuid.NewString()); err != nil {
				outcome = classifyOutcome(err)
			}
			mu.Lock()
			results[c.ContactUserID] = outcome
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// classifyOutcome maps a dispatch error onto the stored outcome value.
// Deadline expiry is kept distinct from provider rejection so operators
// can tell a slow provider apart from a bad token.
func classifyOutcome(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.OutcomeTimeout
	}
	return model.OutcomeFailed
}

// fail terminally marks the request as unprocessed with the captured
// error and returns the original error. The marking itself runs under
// a fresh short deadline: the incoming context may already be the
// reason we are failing.
func (p *EmergencyProcessor) fail(ctx context.Context, eventID string, cause error) error {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.emergencies.MarkRequestProcessed(markCtx, eventID, false, nil, cause.Error()); err != nil {
		p.logger.Error("failed to mark emergency request as failed",
			zap.String("emergency_event_id", eventID),
			zap.NamedError("mark_error", err),
			zap.NamedError("cause", cause),
		)
	}
	return cause
}
