package notify

import (
	"strconv"

	"i2v-dispatch/internal/dispatch"

	"github.com/getsentry/sentry-go"
)

// FailureReporter sends every failed job to Sentry, tagged with the device
// and the stage it failed in.
type FailureReporter struct {
	hub *sentry.Hub
}

func NewFailureReporter(hub *sentry.Hub) *FailureReporter {
	return &FailureReporter{hub: hub}
}

func (r *FailureReporter) ReportOutcome(outcome dispatch.Outcome) {
	if !outcome.Failed() || outcome.Err == nil {
		return
	}

	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("device", strconv.Itoa(outcome.Device))
		scope.SetTag("stage", string(outcome.Stage))
		scope.SetContext("job", sentry.Context{
			"input":  outcome.Job.Input.String(),
			"output": outcome.Job.Output.String(),
		})
		r.hub.CaptureException(outcome.Err)
	})
}
