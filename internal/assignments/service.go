package assignments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/shared"
)

// RepositoryPort defines data access for assignments.
type RepositoryPort interface {
	ListAssignments(ctx context.Context, filter ListFilter) ([]Assignment, error)
	GetAssignment(ctx context.Context, id int64) (Assignment, error)
	CreateAssignment(ctx context.Context, a Assignment) (int64, error)
	UpdateAssignment(ctx context.Context, a Assignment) error
	DeleteAssignment(ctx context.Context, id int64) error
}

// TreeSource loads the current role tree.
type TreeSource interface {
	Tree(ctx context.Context) (*functions.Tree, error)
}

// Service handles assignment business logic.
type Service struct {
	repo     RepositoryPort
	tree     TreeSource
	audit    shared.Auditor
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	loc      *time.Location
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone in which "today" is evaluated.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, tree TreeSource, audit shared.Auditor, logger *slog.Logger, opts ...Option) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		tree:     tree,
		audit:    audit,
		logger:   logger,
		validate: shared.NewValidator(),
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current date in the configured zone.
func (s *Service) Today() shared.Date {
	return shared.Today(s.now(), s.loc)
}

// Ledger loads a fresh snapshot of every assignment and the role tree.
func (s *Service) Ledger(ctx context.Context) (*Ledger, error) {
	return s.LedgerFor(ctx, ListFilter{})
}

// LedgerFor loads a snapshot restricted by filter.
func (s *Service) LedgerFor(ctx context.Context, filter ListFilter) (*Ledger, error) {
	var (
		items []Assignment
		tree  *functions.Tree
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.repo.ListAssignments(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		tree, err = s.tree.Tree(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	return NewLedger(items, tree), nil
}

// List returns assignments matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Assignment, error) {
	return s.repo.ListAssignments(ctx, filter)
}

// Get fetches an assignment by ID.
func (s *Service) Get(ctx context.Context, id int64) (Assignment, error) {
	return s.repo.GetAssignment(ctx, id)
}

// Create records a person taking on a function. Inverted ranges are accepted.
func (s *Service) Create(ctx context.Context, actorID int64, in CreateInput) (Assignment, error) {
	if verr := shared.ValidateStruct(s.validate, in); !verr.Empty() {
		return Assignment{}, verr
	}
	a := Assignment{
		PersonID:   in.PersonID,
		FunctionID: in.FunctionID,
		Start:      in.Start,
		End:        in.End,
		Trial:      in.Trial,
	}
	s.warnInsane(a)
	id, err := s.repo.CreateAssignment(ctx, a)
	if err != nil {
		return Assignment{}, err
	}
	a.ID = id
	s.record(ctx, actorID, "assignment.create", id, map[string]any{"person_id": a.PersonID, "function_id": a.FunctionID})
	return a, nil
}

// Update replaces the function, dates and trial flag of an assignment.
func (s *Service) Update(ctx context.Context, actorID, id int64, in UpdateInput) (Assignment, error) {
	if verr := shared.ValidateStruct(s.validate, in); !verr.Empty() {
		return Assignment{}, verr
	}
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	a.FunctionID = in.FunctionID
	a.Start = in.Start
	a.End = in.End
	a.Trial = in.Trial
	s.warnInsane(a)
	if err := s.repo.UpdateAssignment(ctx, a); err != nil {
		return Assignment{}, err
	}
	s.record(ctx, actorID, "assignment.update", id, nil)
	return a, nil
}

// End closes an assignment on the given date, today when nil.
func (s *Service) End(ctx context.Context, actorID, id int64, in EndInput) (Assignment, error) {
	a, err := s.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	end := s.Today()
	if in.End != nil {
		end = *in.End
	}
	a.End = &end
	s.warnInsane(a)
	if err := s.repo.UpdateAssignment(ctx, a); err != nil {
		return Assignment{}, err
	}
	s.record(ctx, actorID, "assignment.end", id, map[string]any{"end": end.String()})
	return a, nil
}

// Delete removes an erroneous assignment.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "assignment.delete", id, nil)
	return nil
}

// Anomalies lists assignments whose start lies after their end.
func (s *Service) Anomalies(ctx context.Context) ([]Assignment, error) {
	items, err := s.repo.ListAssignments(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	return NewLedger(items, nil).Insane().All(), nil
}

func (s *Service) warnInsane(a Assignment) {
	if !a.Sane() {
		s.logger.Warn("assignment range inverted",
			slog.Int64("person_id", a.PersonID),
			slog.Int64("function_id", a.FunctionID),
			slog.String("start", a.Start.String()),
			slog.String("end", a.End.String()),
		)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "assignment",
		EntityID: shared.EntityID(id),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit assignment change", slog.String("action", action), slog.Any("error", err))
	}
}
