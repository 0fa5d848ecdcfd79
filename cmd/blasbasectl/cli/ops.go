package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/jobs"
)

// Seeder creates role tree nodes from a seed document.
type Seeder interface {
	Seed(ctx context.Context, actorID int64, nodes []functions.SeedNode) (functions.SeedResult, error)
}

// Resolver answers permission questions for accounts and people.
type Resolver interface {
	EffectivePermissions(ctx context.Context, userID int64) (rbac.Set, error)
	PersonPermissions(ctx context.Context, personID int64, asOf *shared.Date) (rbac.Set, shared.Date, error)
}

// Classifier partitions people by membership status.
type Classifier interface {
	Classification(ctx context.Context, asOf *shared.Date) (people.Classification, shared.Date, error)
}

// Auditor runs the ledger audit synchronously.
type Auditor interface {
	Run(ctx context.Context, asOf *shared.Date) (jobs.LedgerAuditReport, error)
}

// Output selects where and how a command prints.
type Output struct {
	JSON   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (o *Output) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

func (o Output) fail(cmd string, err error) int {
	_, _ = fmt.Fprintf(o.Stderr, "%s: %v\n", cmd, err)
	return 1
}

func (o Output) encode(cmd string, v any) int {
	enc := json.NewEncoder(o.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return o.fail(cmd, fmt.Errorf("encode json: %w", err))
	}
	return 0
}

// ParseAsOf parses an optional YYYY-MM-DD flag value.
func ParseAsOf(raw string) (*shared.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := shared.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", raw)
	}
	return &d, nil
}

// SeedCommand loads a YAML role tree and creates the missing nodes.
func SeedCommand(ctx context.Context, seeder Seeder, in io.Reader, out Output) int {
	out.defaults()
	nodes, err := functions.LoadSeed(in)
	if err != nil {
		return out.fail("seed functions", err)
	}
	res, err := seeder.Seed(ctx, 0, nodes)
	if err != nil {
		return out.fail("seed functions", err)
	}
	if out.JSON {
		return out.encode("seed functions", res)
	}
	_, _ = fmt.Fprintf(out.Stdout, "created %d, existing %d, granted %d\n", res.Created, res.Existing, res.Granted)
	return 0
}

// ResolveOptions selects whose permissions to print. Exactly one id must be set.
type ResolveOptions struct {
	UserID   int64
	PersonID int64
	AsOf     *shared.Date
}

// ResolveCommand prints the permission keys of an account or a person.
func ResolveCommand(ctx context.Context, resolver Resolver, opts ResolveOptions, out Output) int {
	out.defaults()
	if (opts.UserID > 0) == (opts.PersonID > 0) {
		return out.fail("permissions resolve", fmt.Errorf("exactly one of --user or --person is required"))
	}
	var (
		set  rbac.Set
		asOf *shared.Date
		err  error
	)
	if opts.UserID > 0 {
		set, err = resolver.EffectivePermissions(ctx, opts.UserID)
	} else {
		var day shared.Date
		set, day, err = resolver.PersonPermissions(ctx, opts.PersonID, opts.AsOf)
		asOf = &day
	}
	if err != nil {
		return out.fail("permissions resolve", err)
	}
	keys := set.Keys()
	if out.JSON {
		return out.encode("permissions resolve", struct {
			AsOf *shared.Date `json:"as_of,omitempty"`
			Keys []string     `json:"keys"`
		}{AsOf: asOf, Keys: keys})
	}
	for _, k := range keys {
		_, _ = fmt.Fprintln(out.Stdout, k)
	}
	return 0
}

// ClassifyCommand prints the people in each membership category.
func ClassifyCommand(ctx context.Context, classifier Classifier, asOf *shared.Date, only string, out Output) int {
	out.defaults()
	categories := people.Categories()
	if only != "" {
		cat, err := people.ParseCategory(only)
		if err != nil {
			return out.fail("people classify", err)
		}
		categories = []people.Category{cat}
	}
	c, day, err := classifier.Classification(ctx, asOf)
	if err != nil {
		return out.fail("people classify", err)
	}
	if out.JSON {
		lists := make(map[people.Category][]int64, len(categories))
		for _, cat := range categories {
			lists[cat] = c.Of(cat)
		}
		return out.encode("people classify", struct {
			AsOf       shared.Date                 `json:"as_of"`
			Categories map[people.Category][]int64 `json:"categories"`
		}{AsOf: day, Categories: lists})
	}
	tw := tabwriter.NewWriter(out.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "as of\t%s\n", day)
	for _, cat := range categories {
		ids := c.Of(cat)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprint(id)
		}
		_, _ = fmt.Fprintf(tw, "%s (%d)\t%s\n", cat, len(ids), strings.Join(parts, " "))
	}
	if err := tw.Flush(); err != nil {
		return out.fail("people classify", err)
	}
	return 0
}

// AuditCommand runs the ledger audit and prints its report. It exits with 10
// when malformed assignments were found.
func AuditCommand(ctx context.Context, auditor Auditor, asOf *shared.Date, out Output) int {
	out.defaults()
	report, err := auditor.Run(ctx, asOf)
	if err != nil {
		return out.fail("ledger audit", err)
	}
	code := 0
	if len(report.Insane) > 0 {
		code = 10
	}
	if out.JSON {
		if rc := out.encode("ledger audit", report); rc != 0 {
			return rc
		}
		return code
	}
	_, _ = fmt.Fprintf(out.Stdout, "ledger audit as of %s: %d assignments, %d undated\n",
		report.AsOf, report.Assignments, report.Undefined)
	if len(report.Insane) == 0 {
		_, _ = fmt.Fprintln(out.Stdout, "No assignment starts after it ends.")
	} else {
		_, _ = fmt.Fprintf(out.Stdout, "%d assignment(s) start after they end:\n", len(report.Insane))
		for _, a := range report.Insane {
			_, _ = fmt.Fprintf(out.Stdout, "  #%d person %d function %d: %s > %s\n",
				a.ID, a.PersonID, a.FunctionID, a.Start, a.End)
		}
	}
	for _, cat := range people.Categories() {
		if n, ok := report.Counts[cat]; ok {
			_, _ = fmt.Fprintf(out.Stdout, "%s: %d\n", cat, n)
		}
	}
	return code
}
