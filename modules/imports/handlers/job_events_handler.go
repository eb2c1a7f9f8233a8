package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/worklane/worklane/modules/imports/domain/importjob"
	"github.com/worklane/worklane/pkg/eventbus"
)

type JobEventsHandler struct {
	logger *logrus.Logger
}

// RegisterJobEventHandlers logs the lifecycle of import wizard jobs.
func RegisterJobEventHandlers(bus eventbus.EventBus, logger *logrus.Logger) {
	handler := &JobEventsHandler{logger: logger}
	bus.Subscribe(handler.onJobCreated)
	bus.Subscribe(handler.onJobValidated)
	bus.Subscribe(handler.onJobExecuted)
}

func (h *JobEventsHandler) onJobCreated(event importjob.CreatedEvent) {
	h.logger.WithFields(logrus.Fields{
		"tenant_id":   event.TenantID,
		"job_id":      event.Job.ID,
		"entity_type": event.Job.EntityType,
	}).Info("import job created")
}

func (h *JobEventsHandler) onJobValidated(event importjob.ValidatedEvent) {
	h.logger.WithFields(logrus.Fields{
		"tenant_id":    event.TenantID,
		"job_id":       event.JobID,
		"would_create": event.Summary.WouldCreate,
		"would_update": event.Summary.WouldUpdate,
		"would_skip":   event.Summary.WouldSkip,
		"would_fail":   event.Summary.WouldFail,
	}).Info("import job validated")
}

func (h *JobEventsHandler) onJobExecuted(event importjob.ExecutedEvent) {
	h.logger.WithFields(logrus.Fields{
		"tenant_id":   event.TenantID,
		"job_id":      event.JobID,
		"created":     event.Summary.Created,
		"updated":     event.Summary.Updated,
		"skipped":     event.Summary.Skipped,
		"failed":      event.Summary.Failed,
		"duration_ms": event.Summary.DurationMs,
	}).Info("import job executed")
}
