package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"i2v-dispatch/internal/dispatch"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	RunCompleted = "COMPLETED"
	RunPartial   = "PARTIAL"
	RunNoDevices = "NO_DEVICES"
)

type FailedInput struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Device int    `json:"device"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// RunReport is the body posted to the webhook once a run finishes.
type RunReport struct {
	RunId       uuid.UUID     `json:"run_id"`
	Status      string        `json:"status"`
	DeviceCount int           `json:"device_count"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Failures    []FailedInput `json:"failures"`
	StartTime   time.Time     `json:"start_time"`
	EndTime     time.Time     `json:"end_time"`
}

func NewRunReport(summary dispatch.Summary) RunReport {
	status := RunCompleted
	switch {
	case summary.NoDevices:
		status = RunNoDevices
	case summary.Failed > 0 || summary.Processed < summary.Total:
		status = RunPartial
	}

	failures := make([]FailedInput, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failed := FailedInput{
			Input:  f.Job.Input.String(),
			Output: f.Job.Output.String(),
			Device: f.Device,
			Stage:  string(f.Stage),
		}
		if f.Err != nil {
			failed.Error = f.Err.Error()
		}
		failures = append(failures, failed)
	}

	return RunReport{
		RunId:       summary.RunId,
		Status:      status,
		DeviceCount: summary.DeviceCount,
		Total:       summary.Total,
		Processed:   summary.Processed,
		Succeeded:   summary.Succeeded,
		Failed:      summary.Failed,
		Failures:    failures,
		StartTime:   summary.StartTime,
		EndTime:     summary.EndTime,
	}
}

// WebhookNotifier posts a RunReport to a fixed URL. Delivery is attempted
// once.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		client: resty.New().SetTimeout(30 * time.Second),
		url:    url,
	}
}

func (n *WebhookNotifier) NotifyRunFinished(ctx context.Context, summary dispatch.Summary) error {
	report := NewRunReport(summary)

	res, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post(n.url)
	if err != nil {
		slog.Error("unable to deliver run report", "run_id", summary.RunId, "error", err)
		return fmt.Errorf("error posting run report: %w", err)
	}

	if !res.IsSuccess() {
		slog.Error("webhook rejected run report", "run_id", summary.RunId, "status_code", res.StatusCode(), "body", res.String())
		return fmt.Errorf("webhook returned status %d", res.StatusCode())
	}

	slog.Info("run report delivered", "run_id", summary.RunId, "status", report.Status)

	return nil
}
