package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/blasbase/blasbase/internal/assignments"
	jobmetrics "github.com/blasbase/blasbase/internal/jobs"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/shared"
)

// LedgerSource loads the assignment ledger.
type LedgerSource interface {
	Ledger(ctx context.Context) (*assignments.Ledger, error)
	Today() shared.Date
}

// ClassificationSource partitions people by membership status.
type ClassificationSource interface {
	Classification(ctx context.Context, asOf *shared.Date) (people.Classification, shared.Date, error)
}

// LedgerAuditReport summarises one audit run.
type LedgerAuditReport struct {
	AsOf        shared.Date              `json:"as_of"`
	Assignments int                      `json:"assignments"`
	Insane      []assignments.Assignment `json:"insane"`
	Undefined   int                      `json:"undefined"`
	Counts      map[people.Category]int  `json:"counts,omitempty"`
}

// LedgerAuditJob reports assignments whose start lies after their end.
type LedgerAuditJob struct {
	Ledger  LedgerSource
	People  ClassificationSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerAuditJob initialises the ledger audit handler. people may be nil.
func NewLedgerAuditJob(ledger LedgerSource, people ClassificationSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerAuditJob {
	return &LedgerAuditJob{
		Ledger:  ledger,
		People:  people,
		Logger:  logger,
		Metrics: metrics,
		clock:   time.Now,
	}
}

// Handle executes the audit for an asynq task.
func (j *LedgerAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger audit: handler not configured")
	}
	var payload LedgerAuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("ledger audit payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.AsOf)
	return err
}

// Run audits the ledger as of asOf, today when nil.
func (j *LedgerAuditJob) Run(ctx context.Context, asOf *shared.Date) (report LedgerAuditReport, err error) {
	tracker := j.Metrics.Track(TaskLedgerAudit)
	defer func() {
		err = tracker.End(err)
	}()

	if j.Ledger == nil {
		return report, errors.New("ledger audit: ledger source not configured")
	}
	day := j.Ledger.Today()
	if asOf != nil {
		day = *asOf
	}
	logger := j.logger().With(slog.String("as_of", day.String()))
	logger.Info("starting ledger audit")

	ledger, err := j.Ledger.Ledger(ctx)
	if err != nil {
		logger.Error("load ledger failed", slog.Any("error", err))
		return report, err
	}
	report = LedgerAuditReport{
		AsOf:        day,
		Assignments: ledger.Len(),
		Insane:      ledger.Insane().All(),
		Undefined:   ledger.Len() - ledger.Defined().Len(),
	}
	for _, a := range report.Insane {
		logger.Warn("assignment starts after it ends",
			slog.Int64("assignment_id", a.ID),
			slog.Int64("person_id", a.PersonID),
			slog.Int64("function_id", a.FunctionID),
			slog.String("start", a.Start.String()),
			slog.String("end", a.End.String()),
		)
	}
	j.Metrics.SetLedgerAnomalies(len(report.Insane), j.clock())

	if j.People != nil {
		c, _, err := j.People.Classification(ctx, &day)
		if err != nil {
			logger.Error("classify people failed", slog.Any("error", err))
			return report, err
		}
		report.Counts = map[people.Category]int{
			people.CategoryMembers: len(c.Members),
			people.CategoryActive:  len(c.Active),
			people.CategoryOldies:  len(c.Oldies),
			people.CategoryOthers:  len(c.Others),
		}
	}

	logger.Info("completed ledger audit",
		slog.Int("assignments", report.Assignments),
		slog.Int("insane", len(report.Insane)),
		slog.Int("undefined", report.Undefined),
	)
	return report, nil
}

func (j *LedgerAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
