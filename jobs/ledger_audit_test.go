package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/functions"
	jobmetrics "github.com/blasbase/blasbase/internal/jobs"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/shared"
)

type stubLedger struct {
	ledger *assignments.Ledger
	err    error
}

func (s stubLedger) Ledger(ctx context.Context) (*assignments.Ledger, error) { return s.ledger, s.err }

func (s stubLedger) Today() shared.Date { return shared.MustParseDate("2021-06-01") }

type stubClassifier struct {
	asOf shared.Date
}

func (s *stubClassifier) Classification(ctx context.Context, asOf *shared.Date) (people.Classification, shared.Date, error) {
	s.asOf = *asOf
	return people.Classification{Members: []int64{1, 2}, Active: []int64{1}, Oldies: []int64{2}, Others: []int64{3}}, *asOf, nil
}

func date(s string) *shared.Date { return shared.DatePtr(shared.MustParseDate(s)) }

func sampleLedger() *assignments.Ledger {
	tree := functions.NewTree([]functions.Function{{ID: 1, Name: "Members", Membership: true}})
	return assignments.NewLedger([]assignments.Assignment{
		{ID: 1, PersonID: 1, FunctionID: 1, Start: date("2020-01-01")},
		{ID: 2, PersonID: 2, FunctionID: 1, Start: date("2021-01-01"), End: date("2020-01-01")},
		{ID: 3, PersonID: 3, FunctionID: 1},
	}, tree)
}

func TestLedgerAuditReportsInsaneAssignments(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	classifier := &stubClassifier{}
	job := NewLedgerAuditJob(stubLedger{ledger: sampleLedger()}, classifier, nil, metrics)

	report, err := job.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, shared.MustParseDate("2021-06-01"), report.AsOf)
	assert.Equal(t, 3, report.Assignments)
	assert.Equal(t, 1, report.Undefined)
	require.Len(t, report.Insane, 1)
	assert.Equal(t, int64(2), report.Insane[0].ID)
	assert.Equal(t, 1, report.Counts[people.CategoryActive])
	assert.Equal(t, shared.MustParseDate("2021-06-01"), classifier.asOf)
}

func TestLedgerAuditHandleDecodesPayload(t *testing.T) {
	classifier := &stubClassifier{}
	job := NewLedgerAuditJob(stubLedger{ledger: sampleLedger()}, classifier, nil, nil)

	task, err := NewLedgerAuditTask(date("2019-03-01"))
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, shared.MustParseDate("2019-03-01"), classifier.asOf)

	err = job.Handle(context.Background(), asynq.NewTask(TaskLedgerAudit, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestLedgerAuditPropagatesLoadErrors(t *testing.T) {
	boom := errors.New("boom")
	job := NewLedgerAuditJob(stubLedger{err: boom}, nil, nil, nil)

	_, err := job.Run(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestLedgerAuditPayloadShape(t *testing.T) {
	task, err := NewLedgerAuditTask(nil)
	require.NoError(t, err)
	assert.Equal(t, TaskLedgerAudit, task.Type())
	assert.JSONEq(t, `{}`, string(task.Payload()))

	var payload LedgerAuditPayload
	require.NoError(t, json.Unmarshal([]byte(`{"as_of":"2020-02-29"}`), &payload))
	assert.Equal(t, date("2020-02-29"), payload.AsOf)
}

func TestLedgerAuditSetsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	job := NewLedgerAuditJob(stubLedger{ledger: sampleLedger()}, nil, nil, metrics)

	_, err := job.Run(context.Background(), nil)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rr.Body.String()
	assert.Contains(t, body, "blasbase_ledger_insane_assignments 1")
	assert.Contains(t, body, `blasbase_jobs_total{job="ledger:audit",status="success"} 1`)
}
