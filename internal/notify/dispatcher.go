// Package notify executes the ordered emergency-contact call sequence for a
// triggered incident.
package notify

import (
	"context"
	"log/slog"
	"time"

	"aquaguard/internal/dialer"
	"aquaguard/internal/model"
	"aquaguard/internal/storage"
)

type Dispatcher struct {
	contacts []model.Contact
	caller   dialer.Caller
	store    storage.Store
	pacing   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewDispatcher(contacts []model.Contact, caller dialer.Caller, store storage.Store, pacing time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		contacts: contacts,
		caller:   caller,
		store:    store,
		pacing:   pacing,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run works through the full contact list in order, one call at a time, with
// a pacing delay between contacts so provider-side logs stay attributable.
// Every contact gets exactly one audit record whether the call completed or
// failed. Later contacts are still attempted after an earlier success; all
// configured contacts must be notified for every triggered incident.
// Cancellation abandons the sequence between contacts, never mid-record.
func (d *Dispatcher) Run(ctx context.Context, siteID string, score float64) {
	if len(d.contacts) == 0 {
		if d.logger != nil {
			d.logger.Error("no emergency contacts configured for outbound dialing", "site_id", siteID)
		}
		return
	}

	if d.logger != nil {
		d.logger.Info("initiating voice call protocol",
			"site_id", siteID,
			"contacts", len(d.contacts),
			"contamination_score", score,
		)
	}

	for i, contact := range d.contacts {
		if contact.Phone == "" {
			continue
		}
		if d.logger != nil {
			d.logger.Info("dialing emergency contact",
				"site_id", siteID,
				"name", contact.Name,
				"phone_number", contact.Phone,
			)
		}

		success := d.caller.Call(ctx, contact.Phone, score)
		status := model.CallFailed
		if success {
			status = model.CallCompleted
		}
		d.logAttempt(contact.Phone, status, score, siteID)

		if ctx.Err() != nil {
			if d.logger != nil {
				d.logger.Warn("call sequence abandoned on shutdown",
					"site_id", siteID,
					"contacts_remaining", len(d.contacts)-i-1,
				)
			}
			return
		}
		if i < len(d.contacts)-1 {
			if !sleepCtx(ctx, d.pacing) {
				return
			}
		}
	}
}

func (d *Dispatcher) logAttempt(phone string, status model.CallStatus, score float64, siteID string) {
	attempt := model.CallAttempt{
		Timestamp:          d.now(),
		PhoneNumber:        phone,
		Status:             status,
		ContaminationScore: score,
		SiteID:             siteID,
	}
	if d.store == nil {
		return
	}
	if err := d.store.SaveCallAttempt(context.Background(), attempt); err != nil {
		if d.logger != nil {
			d.logger.Error("failed to persist call attempt",
				"phone_number", phone,
				"status", string(status),
				"err", err,
			)
		}
		return
	}
	if d.logger != nil {
		d.logger.Info("logged call attempt", "phone_number", phone, "status", string(status))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
