package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/jobs"
)

type stubSeeder struct {
	nodes []functions.SeedNode
	err   error
}

func (s *stubSeeder) Seed(ctx context.Context, actorID int64, nodes []functions.SeedNode) (functions.SeedResult, error) {
	s.nodes = nodes
	if s.err != nil {
		return functions.SeedResult{}, s.err
	}
	return functions.SeedResult{Created: len(nodes), Granted: 1}, nil
}

type stubResolver struct {
	users  map[int64]rbac.Set
	people map[int64]rbac.Set
	today  shared.Date
	asOf   *shared.Date
}

func (s *stubResolver) EffectivePermissions(ctx context.Context, userID int64) (rbac.Set, error) {
	return s.users[userID], nil
}

func (s *stubResolver) PersonPermissions(ctx context.Context, personID int64, asOf *shared.Date) (rbac.Set, shared.Date, error) {
	s.asOf = asOf
	day := s.today
	if asOf != nil {
		day = *asOf
	}
	set, ok := s.people[personID]
	if !ok {
		return nil, day, shared.ErrNotFound
	}
	return set, day, nil
}

type stubClassifier struct {
	c people.Classification
}

func (s stubClassifier) Classification(ctx context.Context, asOf *shared.Date) (people.Classification, shared.Date, error) {
	day := shared.MustParseDate("2021-06-01")
	if asOf != nil {
		day = *asOf
	}
	return s.c, day, nil
}

type stubAuditor struct {
	report jobs.LedgerAuditReport
	err    error
}

func (s stubAuditor) Run(ctx context.Context, asOf *shared.Date) (jobs.LedgerAuditReport, error) {
	return s.report, s.err
}

func buffers() (*bytes.Buffer, *bytes.Buffer, Output) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	return stdout, stderr, Output{Stdout: stdout, Stderr: stderr}
}

func perm(key string) rbac.Permission {
	app, code, _ := strings.Cut(key, ".")
	return rbac.Permission{AppLabel: app, Codename: code}
}

func TestParseAsOf(t *testing.T) {
	d, err := ParseAsOf("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = ParseAsOf(" 2020-02-29 ")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "2020-02-29", d.String())

	_, err = ParseAsOf("29/02/2020")
	assert.ErrorContains(t, err, "expected YYYY-MM-DD")
}

func TestSeedCommand(t *testing.T) {
	seeder := &stubSeeder{}
	stdout, stderr, out := buffers()

	code := SeedCommand(context.Background(), seeder, strings.NewReader("functions:\n  - name: Orchestra\n    permissions: [blasbase.p1]\n"), out)
	require.Zero(t, code)
	assert.Empty(t, stderr.String())
	require.Len(t, seeder.nodes, 1)
	assert.Equal(t, "Orchestra", seeder.nodes[0].Name)
	assert.Equal(t, "created 1, existing 0, granted 1\n", stdout.String())
}

func TestSeedCommandRejectsInvalidDocument(t *testing.T) {
	seeder := &stubSeeder{}
	_, stderr, out := buffers()

	code := SeedCommand(context.Background(), seeder, strings.NewReader("functions:\n  - name: A\n  - name: A\n"), out)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "seed functions:")
	assert.Nil(t, seeder.nodes)
}

func TestSeedCommandJSON(t *testing.T) {
	stdout, _, out := buffers()
	out.JSON = true

	code := SeedCommand(context.Background(), &stubSeeder{}, strings.NewReader("functions:\n  - name: A\n  - name: B\n"), out)
	require.Zero(t, code)
	var res functions.SeedResult
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, 2, res.Created)
}

func TestResolveCommand(t *testing.T) {
	resolver := &stubResolver{
		users:  map[int64]rbac.Set{1: rbac.NewSet(perm("blasbase.view_person"), perm("auth.view_permission"))},
		people: map[int64]rbac.Set{7: rbac.NewSet(perm("blasbase.p1"))},
		today:  shared.MustParseDate("2021-06-01"),
	}

	stdout, _, out := buffers()
	code := ResolveCommand(context.Background(), resolver, ResolveOptions{UserID: 1}, out)
	require.Zero(t, code)
	assert.Equal(t, "auth.view_permission\nblasbase.view_person\n", stdout.String())

	stdout, _, out = buffers()
	out.JSON = true
	asOf := shared.MustParseDate("2019-01-01")
	code = ResolveCommand(context.Background(), resolver, ResolveOptions{PersonID: 7, AsOf: &asOf}, out)
	require.Zero(t, code)
	assert.JSONEq(t, `{"as_of":"2019-01-01","keys":["blasbase.p1"]}`, stdout.String())
	assert.Equal(t, &asOf, resolver.asOf)
}

func TestResolveCommandNeedsExactlyOneSubject(t *testing.T) {
	resolver := &stubResolver{}
	for _, opts := range []ResolveOptions{{}, {UserID: 1, PersonID: 2}} {
		_, stderr, out := buffers()
		assert.Equal(t, 1, ResolveCommand(context.Background(), resolver, opts, out))
		assert.Contains(t, stderr.String(), "exactly one of --user or --person")
	}
}

func TestResolveCommandUnknownPerson(t *testing.T) {
	_, stderr, out := buffers()
	code := ResolveCommand(context.Background(), &stubResolver{}, ResolveOptions{PersonID: 3}, out)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "not found")
}

func TestClassifyCommand(t *testing.T) {
	classifier := stubClassifier{c: people.Classification{
		Members: []int64{1, 2, 3},
		Active:  []int64{1},
		Oldies:  []int64{2},
		Others:  []int64{4},
	}}

	stdout, _, out := buffers()
	code := ClassifyCommand(context.Background(), classifier, nil, "", out)
	require.Zero(t, code)
	text := stdout.String()
	assert.Contains(t, text, "2021-06-01")
	assert.Contains(t, text, "members (3)")
	assert.Contains(t, text, "1 2 3")
	assert.Contains(t, text, "others (1)")

	stdout, _, out = buffers()
	out.JSON = true
	code = ClassifyCommand(context.Background(), classifier, nil, "oldies", out)
	require.Zero(t, code)
	assert.JSONEq(t, `{"as_of":"2021-06-01","categories":{"oldies":[2]}}`, stdout.String())
}

func TestClassifyCommandUnknownCategory(t *testing.T) {
	_, stderr, out := buffers()
	code := ClassifyCommand(context.Background(), stubClassifier{}, nil, "veterans", out)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "veterans")
}

func TestAuditCommand(t *testing.T) {
	start := shared.MustParseDate("2020-05-01")
	end := shared.MustParseDate("2020-01-01")
	report := jobs.LedgerAuditReport{
		AsOf:        shared.MustParseDate("2021-06-01"),
		Assignments: 5,
		Undefined:   1,
		Insane:      []assignments.Assignment{{ID: 9, PersonID: 3, FunctionID: 2, Start: &start, End: &end}},
		Counts:      map[people.Category]int{people.CategoryMembers: 4},
	}

	stdout, _, out := buffers()
	code := AuditCommand(context.Background(), stubAuditor{report: report}, nil, out)
	assert.Equal(t, 10, code)
	text := stdout.String()
	assert.Contains(t, text, "5 assignments, 1 undated")
	assert.Contains(t, text, "#9 person 3 function 2: 2020-05-01 > 2020-01-01")
	assert.Contains(t, text, "members: 4")

	stdout, _, out = buffers()
	code = AuditCommand(context.Background(), stubAuditor{report: jobs.LedgerAuditReport{Assignments: 2}}, nil, out)
	assert.Zero(t, code)
	assert.Contains(t, stdout.String(), "No assignment starts after it ends.")
}

func TestAuditCommandError(t *testing.T) {
	_, stderr, out := buffers()
	code := AuditCommand(context.Background(), stubAuditor{err: errors.New("db down")}, nil, out)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "ledger audit: db down")
}

func TestJobsCLIRequiresClient(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), "ledger:audit", nil)
	assert.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	assert.Error(t, err)
}
