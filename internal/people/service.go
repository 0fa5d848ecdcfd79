package people

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/shared"
)

// RepositoryPort defines data access for people.
type RepositoryPort interface {
	ListPeople(ctx context.Context, params ListParams) ([]Person, int, error)
	GetPerson(ctx context.Context, id int64) (Person, error)
	GetPersonByUser(ctx context.Context, userID int64) (Person, error)
	PeopleByIDs(ctx context.Context, ids []int64) ([]Person, error)
	AllPersonIDs(ctx context.Context) ([]int64, error)
	CreatePerson(ctx context.Context, in PersonInput) (int64, error)
	UpdatePerson(ctx context.Context, id int64, in PersonInput) error
	DeletePerson(ctx context.Context, id int64) error
	LinkUser(ctx context.Context, personID int64, userID *int64) error
	ListSpecialDiets(ctx context.Context) ([]SpecialDiet, error)
}

// LedgerSource loads assignment snapshots.
type LedgerSource interface {
	Ledger(ctx context.Context) (*assignments.Ledger, error)
	Today() shared.Date
}

// Service handles person business logic.
type Service struct {
	repo     RepositoryPort
	ledger   LedgerSource
	audit    shared.Auditor
	logger   *slog.Logger
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, ledger LedgerSource, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, logger: logger, validate: shared.NewValidator()}
}

// List returns a page of people and its pagination metadata.
func (s *Service) List(ctx context.Context, params ListParams) ([]Person, shared.Pagination, error) {
	people, total, err := s.repo.ListPeople(ctx, params)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return people, shared.NewPagination(params.Page, params.PerPage, total), nil
}

// Get fetches a person by ID.
func (s *Service) Get(ctx context.Context, id int64) (Person, error) {
	return s.repo.GetPerson(ctx, id)
}

// ForUser returns the person linked to an account.
func (s *Service) ForUser(ctx context.Context, userID int64) (Person, error) {
	return s.repo.GetPersonByUser(ctx, userID)
}

// Create validates and stores a new person.
func (s *Service) Create(ctx context.Context, actorID int64, in PersonInput) (Person, error) {
	if err := s.check(&in); err != nil {
		return Person{}, err
	}
	id, err := s.repo.CreatePerson(ctx, in)
	if err != nil {
		return Person{}, err
	}
	s.record(ctx, actorID, "person.create", id)
	return s.repo.GetPerson(ctx, id)
}

// Update validates and overwrites a person.
func (s *Service) Update(ctx context.Context, actorID, id int64, in PersonInput) (Person, error) {
	if err := s.check(&in); err != nil {
		return Person{}, err
	}
	if err := s.repo.UpdatePerson(ctx, id, in); err != nil {
		return Person{}, err
	}
	s.record(ctx, actorID, "person.update", id)
	return s.repo.GetPerson(ctx, id)
}

// Delete removes a person.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.repo.DeletePerson(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "person.delete", id)
	return nil
}

// LinkUser attaches an account to a person, or detaches it when userID is nil.
func (s *Service) LinkUser(ctx context.Context, actorID, personID int64, userID *int64) (Person, error) {
	if err := s.repo.LinkUser(ctx, personID, userID); err != nil {
		return Person{}, err
	}
	s.record(ctx, actorID, "person.link_user", personID)
	return s.repo.GetPerson(ctx, personID)
}

// SpecialDiets returns the diet catalogue.
func (s *Service) SpecialDiets(ctx context.Context) ([]SpecialDiet, error) {
	return s.repo.ListSpecialDiets(ctx)
}

// Classification partitions everyone as of asOf, today when nil.
func (s *Service) Classification(ctx context.Context, asOf *shared.Date) (Classification, shared.Date, error) {
	day := s.asOf(asOf)
	var (
		ledger *assignments.Ledger
		ids    []int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ledger, err = s.ledger.Ledger(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		ids, err = s.repo.AllPersonIDs(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Classification{}, day, fmt.Errorf("classify: %w", err)
	}
	return Classify(ids, ledger, day), day, nil
}

// Classify returns the people in category as of asOf.
func (s *Service) Classify(ctx context.Context, category Category, asOf *shared.Date) ([]Person, error) {
	c, _, err := s.Classification(ctx, asOf)
	if err != nil {
		return nil, err
	}
	ids := c.Of(category)
	if len(ids) == 0 {
		return []Person{}, nil
	}
	return s.repo.PeopleByIDs(ctx, ids)
}

// AssignmentStatus is an assignment with its derived state.
type AssignmentStatus struct {
	assignments.Assignment
	State assignments.State `json:"state"`
}

// Status describes a person's categories and assignment states at a date.
type Status struct {
	PersonID    int64              `json:"person_id"`
	AsOf        shared.Date        `json:"as_of"`
	Categories  []Category         `json:"categories"`
	Assignments []AssignmentStatus `json:"assignments"`
}

// Status evaluates one person as of asOf, today when nil.
func (s *Service) Status(ctx context.Context, personID int64, asOf *shared.Date) (Status, error) {
	day := s.asOf(asOf)
	if _, err := s.repo.GetPerson(ctx, personID); err != nil {
		return Status{}, err
	}
	ledger, err := s.ledger.Ledger(ctx)
	if err != nil {
		return Status{}, err
	}
	c := Classify([]int64{personID}, ledger, day)
	st := Status{
		PersonID:    personID,
		AsOf:        day,
		Categories:  c.CategoriesOf(personID),
		Assignments: []AssignmentStatus{},
	}
	for _, a := range ledger.ForPerson(personID).All() {
		st.Assignments = append(st.Assignments, AssignmentStatus{Assignment: a, State: a.StateAt(day)})
	}
	return st, nil
}

func (s *Service) asOf(d *shared.Date) shared.Date {
	if d != nil {
		return *d
	}
	return s.ledger.Today()
}

func (s *Service) check(in *PersonInput) error {
	in.Normalize()
	verr := shared.ValidateStruct(s.validate, in)
	in.checkDates(s.ledger.Today(), verr)
	return verr.OrNil()
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "person",
		EntityID: shared.EntityID(id),
	}); err != nil {
		s.logger.Warn("audit person change", slog.String("action", action), slog.Any("error", err))
	}
}
