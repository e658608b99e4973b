package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	jobmetrics "github.com/odyssey-erp/arap/internal/jobs"
	"github.com/odyssey-erp/arap/internal/money"
	"github.com/odyssey-erp/arap/internal/obligations"
)

type stubOverdue struct {
	report obligations.OverdueReport
	err    error
	asOf   time.Time
}

func (s *stubOverdue) Overdue(ctx context.Context, asOf time.Time) (obligations.OverdueReport, error) {
	s.asOf = asOf
	return s.report, s.err
}

type captureEnqueuer struct {
	tasks []*asynq.Task
}

func (c *captureEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{ID: "1", Type: task.Type()}, nil
}

func overdueItem(direction obligations.Direction, amount string, desc string) obligations.Obligation {
	due := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	return obligations.Obligation{
		ID:             uuid.New(),
		Direction:      direction,
		OriginalAmount: money.MustParse(amount),
		DueDate:        &due,
		Description:    desc,
		Status:         obligations.StatusPending,
	}
}

func newScanJob(source OverdueSource, mail Enqueuer, recipient string, reg prometheus.Registerer) *OverdueScanJob {
	job := NewOverdueScanJob(source, mail, recipient, language.English,
		slog.New(slog.NewTextHandler(io.Discard, nil)), jobmetrics.NewMetrics(reg))
	job.clock = func() time.Time { return time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC) }
	return job
}

func TestOverdueScanMailsSummary(t *testing.T) {
	source := &stubOverdue{report: obligations.OverdueReport{
		Payables: []obligations.Obligation{
			overdueItem(obligations.DirectionPayable, "1000.00", "Rent (1/3)"),
			overdueItem(obligations.DirectionPayable, "250.50", "Power"),
		},
		Receivables: []obligations.Obligation{overdueItem(obligations.DirectionReceivable, "80.00", "")},
	}}
	mail := &captureEnqueuer{}
	reg := prometheus.NewRegistry()
	job := newScanJob(source, mail, "finance@example.com", reg)

	task, err := NewOverdueScanTask(nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC), source.asOf)

	require.Len(t, mail.tasks, 1)
	require.Equal(t, TaskTypeSendEmail, mail.tasks[0].Type())
	var payload SendEmailPayload
	require.NoError(t, json.Unmarshal(mail.tasks[0].Payload(), &payload))
	require.Equal(t, "finance@example.com", payload.To)
	require.Equal(t, "Overdue obligations on 2024-03-01", payload.Subject)
	require.True(t, strings.Contains(payload.Body, "Payables past due: 2, total 1,250.50"), payload.Body)
	require.Contains(t, payload.Body, "Receivables awaiting payment: 1, total 80.00")
	require.Contains(t, payload.Body, "Rent (1/3)")

	expected := `
# HELP arap_overdue_obligations Pending obligations past due at the last overdue scan.
# TYPE arap_overdue_obligations gauge
arap_overdue_obligations{direction="PAYABLE"} 2
arap_overdue_obligations{direction="RECEIVABLE"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "arap_overdue_obligations"))
}

func TestOverdueScanPinnedDateAndNoRecipient(t *testing.T) {
	source := &stubOverdue{report: obligations.OverdueReport{
		Payables: []obligations.Obligation{overdueItem(obligations.DirectionPayable, "1.00", "x")},
	}}
	mail := &captureEnqueuer{}
	job := newScanJob(source, mail, "", prometheus.NewRegistry())

	asOf := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	task, err := NewOverdueScanTask(&asOf)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, asOf, source.asOf)
	require.Empty(t, mail.tasks)
}

func TestOverdueScanNothingOverdueSendsNothing(t *testing.T) {
	mail := &captureEnqueuer{}
	job := newScanJob(&stubOverdue{}, mail, "finance@example.com", prometheus.NewRegistry())
	task, _ := NewOverdueScanTask(nil)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Empty(t, mail.tasks)
}

func TestOverdueScanFailureIsTracked(t *testing.T) {
	reg := prometheus.NewRegistry()
	job := newScanJob(&stubOverdue{err: errors.New("db down")}, nil, "", reg)
	task, _ := NewOverdueScanTask(nil)
	require.Error(t, job.Handle(context.Background(), task))

	expected := `
# HELP arap_jobs_failures_total Total failures observed for background jobs.
# TYPE arap_jobs_failures_total counter
arap_jobs_failures_total{job="obligations:overdue_scan"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "arap_jobs_failures_total"))
}

func TestOverdueScanBadPayloadSkipsRetry(t *testing.T) {
	job := newScanJob(&stubOverdue{}, nil, "", prometheus.NewRegistry())
	err := job.Handle(context.Background(), asynq.NewTask(TaskObligationsOverdueScan, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
