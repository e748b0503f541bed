package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fxwatcher/internal/metrics"
)

const dateLayout = "2006-01-02"

// Decision is the outcome of evaluating one rate sample.
type Decision int

const (
	NoOp Decision = iota
	SendAlert
	SendSummary
)

func (d Decision) String() string {
	switch d {
	case SendAlert:
		return "send_alert"
	case SendSummary:
		return "send_summary"
	default:
		return "noop"
	}
}

// Kind maps a sending decision to its template.
func (d Decision) Kind() Kind {
	switch d {
	case SendAlert:
		return KindAlert
	case SendSummary:
		return KindSummary
	default:
		return 0
	}
}

// State is the in-memory de-duplication state. It is lost on restart.
type State struct {
	AlertSentToday  bool
	LastSummaryDate string
	// Day is the calendar date the flags above belong to.
	Day string
}

// Decide is the pure decision rule:
//   - below threshold and no alert yet today: alert;
//   - at/above threshold, no summary today, no alert today, and the
//     wall-clock hour of now is 0: summary;
//   - otherwise nothing.
//
// A summary only fires from a cycle that lands inside the midnight hour; if
// the poll interval skips that hour, no summary is sent that day.
func Decide(sample RateSample, state State, now time.Time) Decision {
	below := sample.CurrentRate.LessThan(sample.Threshold)
	if below {
		if !state.AlertSentToday {
			return SendAlert
		}
		return NoOp
	}

	today := now.Format(dateLayout)
	if state.LastSummaryDate != today && now.Hour() == 0 && !state.AlertSentToday {
		return SendSummary
	}
	return NoOp
}

// EngineOptions tune the engine clock.
type EngineOptions struct {
	// Location is the zone that defines calendar days and the midnight hour.
	Location *time.Location
	Now      func() time.Time
}

// Engine owns the notification state and turns samples into at most one
// alert and one summary per calendar day. It is not safe for concurrent use.
type Engine struct {
	notifier Notifier
	state    State
	loc      *time.Location
	now      func() time.Time
	logger   zerolog.Logger
}

// NewEngine builds an engine with fresh state.
func NewEngine(notifier Notifier, opts EngineOptions, logger zerolog.Logger) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		notifier: notifier,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   logger.With().Str("component", "decision_engine").Logger(),
	}
}

// Now returns the engine clock in its location.
func (e *Engine) Now() time.Time {
	return e.now().In(e.loc)
}

// Today returns the current calendar date as YYYY-MM-DD.
func (e *Engine) Today() string {
	return e.Now().Format(dateLayout)
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	return e.state
}

// ClearAlert explicitly re-arms the alert for the current day.
func (e *Engine) ClearAlert() {
	e.state.AlertSentToday = false
}

// ResetDailyFlags clears both flags the first time it is called on a new
// calendar date. Later calls on the same date are no-ops. It reports
// whether a reset happened.
func (e *Engine) ResetDailyFlags(today string) bool {
	if e.state.Day == today {
		return false
	}

	previous := e.state
	e.state = State{Day: today}
	if previous.AlertSentToday || previous.LastSummaryDate != "" {
		e.logger.Info().
			Str("previous_day", previous.Day).
			Str("today", today).
			Msg("daily notification flags reset")
	}
	return true
}

// Evaluate first resets the flags if its own clock has reached a new date,
// then decides what to send for sample, sends it, and updates state only
// when the send succeeded. ok is false when rendering or sending failed; the
// same decision will then be reached again on the next cycle.
func (e *Engine) Evaluate(ctx context.Context, sample RateSample) (decision Decision, ok bool) {
	now := e.Now()
	today := now.Format(dateLayout)
	// a slow fetch may have crossed midnight since the cycle's reset
	e.ResetDailyFlags(today)
	decision = Decide(sample, e.state, now)

	log := e.logger.With().
		Str("pair", sample.CurrencyPair).
		Str("rate", sample.CurrentRate.String()).
		Str("threshold", sample.Threshold.String()).
		Str("decision", decision.String()).
		Logger()

	if decision == NoOp {
		log.Info().Msg("no notification needed")
		return NoOp, true
	}

	kind := decision.Kind()
	body, err := RenderMessage(sample, kind, now)
	if err != nil {
		log.Error().Err(err).Msg("failed to render notification")
		metrics.NotificationsTotal.WithLabelValues(kind.String(), "render_error").Inc()
		return decision, false
	}

	note := Notification{
		Kind:     kind,
		Subject:  Subject(sample.CurrencyPair, kind),
		HTMLBody: body,
		Sample:   sample,
	}
	if err := e.notifier.Notify(ctx, note); err != nil {
		log.Error().Err(err).Msg("failed to send notification; state unchanged")
		metrics.NotificationsTotal.WithLabelValues(kind.String(), "send_error").Inc()
		return decision, false
	}
	metrics.NotificationsTotal.WithLabelValues(kind.String(), "sent").Inc()

	switch decision {
	case SendAlert:
		e.state.AlertSentToday = true
		e.state.LastSummaryDate = ""
	case SendSummary:
		e.state.LastSummaryDate = today
	}

	log.Info().Msg("notification sent")
	return decision, true
}
