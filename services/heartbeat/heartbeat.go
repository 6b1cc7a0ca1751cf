package heartbeat

import (
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"sjsage522/dealalert/logger"
	"sjsage522/dealalert/pkg/errors"
	"sjsage522/dealalert/services/worker"
)

// StatusSource is implemented by the worker
type StatusSource interface {
	Status() worker.Status
}

// CountSource reports how many fingerprints are tracked
type CountSource interface {
	Len() int
}

// Heartbeat logs the worker status on a cron schedule
type Heartbeat struct {
	cron   *cron.Cron
	source StatusSource
	dedup  CountSource
	beats  atomic.Int64
	log    *logger.Logger
}

// New schedules a heartbeat. schedule accepts standard five-field expressions
// and descriptors such as "@every 5m".
func New(schedule string, source StatusSource, dedup CountSource) (*Heartbeat, error) {
	h := &Heartbeat{
		cron:   cron.New(),
		source: source,
		dedup:  dedup,
		log:    logger.ForComponent("heartbeat"),
	}

	if _, err := h.cron.AddFunc(schedule, h.Beat); err != nil {
		return nil, errors.NewConfiguration("invalid HEARTBEAT_CRON "+schedule, err)
	}
	return h, nil
}

// Start runs the schedule in its own goroutine
func (h *Heartbeat) Start() {
	h.cron.Start()
	h.log.Info().Msg("Heartbeat scheduled")
}

// Stop halts the schedule and waits for a running beat
func (h *Heartbeat) Stop() {
	<-h.cron.Stop().Done()
}

// Beat logs one status line
func (h *Heartbeat) Beat() {
	n := h.beats.Add(1)
	status := h.source.Status()

	event := h.log.Info().
		Int64("beat", n).
		Str("state", string(status.State)).
		Int("cycles", status.Cycles).
		Int("alertsSent", status.AlertsSent).
		Int("consecutiveFailures", status.ConsecutiveFailures).
		Bool("browserRunning", status.BrowserRunning)
	if h.dedup != nil {
		event = event.Int("dedupEntries", h.dedup.Len())
	}
	if status.LastError != "" {
		event = event.Str("lastError", status.LastError)
	}
	event.Msg("Heartbeat")
}

// Beats returns how many beats have run
func (h *Heartbeat) Beats() int64 {
	return h.beats.Load()
}
