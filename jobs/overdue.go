package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"

	jobmetrics "github.com/odyssey-erp/arap/internal/jobs"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
)

const (
	// TaskObligationsOverdueScan lists pending obligations past due and mails a summary.
	TaskObligationsOverdueScan = "obligations:overdue_scan"
)

// OverdueScanPayload optionally pins the reference date of a run.
type OverdueScanPayload struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// NewOverdueScanTask constructs the scan task. A nil asOf means "now" at run time.
func NewOverdueScanTask(asOf *time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueScanPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskObligationsOverdueScan, body, asynq.Queue(QueueDefault)), nil
}

// OverdueSource runs the overdue query.
type OverdueSource interface {
	Overdue(ctx context.Context, asOf time.Time) (obligations.OverdueReport, error)
}

// Enqueuer submits follow-up tasks. *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// OverdueScanJob handles TaskObligationsOverdueScan.
type OverdueScanJob struct {
	Source    OverdueSource
	Mail      Enqueuer
	Recipient string
	Locale    language.Tag
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewOverdueScanJob wires the job. With an empty recipient no mail is sent.
func NewOverdueScanJob(source OverdueSource, mail Enqueuer, recipient string, locale language.Tag, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{
		Source:    source,
		Mail:      mail,
		Recipient: strings.TrimSpace(recipient),
		Locale:    locale,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one scan.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Source == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	asOf := j.clock()
	if payload.AsOf != nil {
		asOf = payload.AsOf.UTC()
	}

	tracker := j.Metrics.Track(TaskObligationsOverdueScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Time("as_of", asOf))
	report, err := j.Source.Overdue(ctx, asOf)
	if err != nil {
		logger.Error("overdue scan failed", slog.Any("error", err))
		return err
	}
	j.Metrics.SetOverdue(string(obligations.DirectionPayable), len(report.Payables))
	j.Metrics.SetOverdue(string(obligations.DirectionReceivable), len(report.Receivables))
	logger.Info("overdue scan completed",
		slog.Int("payables", len(report.Payables)),
		slog.Int("receivables", len(report.Receivables)))

	if j.Recipient == "" || j.Mail == nil || len(report.Payables)+len(report.Receivables) == 0 {
		return nil
	}
	task, err := NewSendEmailTask(SendEmailPayload{
		To:      j.Recipient,
		Subject: fmt.Sprintf("Overdue obligations on %s", asOf.Format(time.DateOnly)),
		Body:    j.summary(report),
	})
	if err != nil {
		return err
	}
	if _, err := j.Mail.EnqueueContext(ctx, task, asynq.MaxRetry(5)); err != nil {
		logger.Error("enqueue overdue summary", slog.Any("error", err))
		return err
	}
	return nil
}

func (j *OverdueScanJob) summary(report obligations.OverdueReport) string {
	var b strings.Builder
	writeSection := func(title string, items []obligations.Obligation) {
		total := money.Zero
		for _, o := range items {
			total = total.Add(o.FinalAmount())
		}
		fmt.Fprintf(&b, "%s: %d, total %s\n", title, len(items), total.Format(j.Locale))
		for _, o := range items {
			due := "-"
			if o.DueDate != nil {
				due = o.DueDate.Format(time.DateOnly)
			}
			fmt.Fprintf(&b, "  %s  %s  %s  %s\n", o.ID, due, o.FinalAmount().Format(j.Locale), o.Description)
		}
	}
	writeSection("Payables past due", report.Payables)
	writeSection("Receivables awaiting payment", report.Receivables)
	return b.String()
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskObligationsOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskObligationsOverdueScan))
}
