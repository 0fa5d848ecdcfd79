package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/blasbase/blasbase/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	historyLimit    = 500
	maxPage         = 10000
)

// Repository is the storage contract of the timeline.
type Repository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error)
}

// Service serves the audit timeline.
type Service struct {
	repo Repository
}

// NewService builds the timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit rows matching filters.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, errors.New("audit: repository not configured")
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return Result{}, shared.NewValidationError("to", "must not be before from")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	if page > maxPage {
		return Result{}, shared.NewValidationError("page", fmt.Sprintf("must be at most %d", maxPage))
	}
	params := windowParams(filters)
	params.OffsetRows = int32((page - 1) * pageSize)
	params.LimitRows = int32(pageSize + 1)
	rows, err := s.repo.TimelineWindow(ctx, params)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// History returns the most recent changes recorded for one entity.
func (s *Service) History(ctx context.Context, entity, entityID string) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	entity, entityID = strings.TrimSpace(entity), strings.TrimSpace(entityID)
	verr := &shared.ValidationError{}
	if entity == "" {
		verr.Add("entity", "is required")
	}
	if entityID == "" {
		verr.Add("entity_id", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	params := windowParams(TimelineFilters{Entity: entity, EntityID: entityID})
	params.LimitRows = historyLimit
	return s.repo.TimelineWindow(ctx, params)
}

func windowParams(f TimelineFilters) WindowParams {
	return WindowParams{
		FromAt:   toPgTime(f.From),
		ToAt:     toPgTime(f.To),
		Actor:    optionalText(f.Actor),
		Entity:   optionalText(f.Entity),
		EntityID: optionalText(f.EntityID),
		Action:   optionalText(f.Action),
	}
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(v string) pgtype.Text {
	v = strings.TrimSpace(v)
	if v == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}
