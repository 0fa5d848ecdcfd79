package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/shared"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	err      error
	lastCall WindowParams
	calls    int
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.lastCall = arg
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if int(arg.LimitRows) < len(s.rows) {
		return s.rows[:arg.LimitRows], nil
	}
	return s.rows, nil
}

func mockRow(id int64, at, actor, action, entity, entityID string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{ID: id, At: ts, Actor: actor, Action: action, Entity: entity, EntityID: entityID}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow(3, "2024-03-10T10:00:00Z", "admin@example.com", "update", "person", "1"),
		mockRow(2, "2024-03-09T09:00:00Z", "admin@example.com", "update", "assignment", "2"),
		mockRow(1, "2024-03-08T08:00:00Z", "admin@example.com", "create", "person", "1"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.EqualValues(t, 3, repo.lastCall.LimitRows)
	assert.EqualValues(t, 0, repo.lastCall.OffsetRows)
	assert.True(t, repo.lastCall.FromAt.Valid)
	assert.True(t, repo.lastCall.ToAt.Valid)
}

func TestServiceTimelineDefaults(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 1000, Entity: " person ", Actor: "  "})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.False(t, result.Paging.HasNext)
	assert.EqualValues(t, 2*maxPageSize, repo.lastCall.OffsetRows)
	assert.Equal(t, pgtype.Text{String: "person", Valid: true}, repo.lastCall.Entity)
	assert.Equal(t, pgtype.Text{}, repo.lastCall.Actor)
	assert.False(t, repo.lastCall.FromAt.Valid)

	result, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Paging.Page)
	assert.Equal(t, defaultPageSize, result.Paging.PageSize)
}

func TestServiceTimelineRejectsInvertedWindow(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)
	_, err := svc.Timeline(context.Background(), TimelineFilters{
		From: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Zero(t, repo.calls)
}

func TestServiceTimelineRejectsHugePage(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{Page: maxPage + 1, PageSize: maxPageSize})
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "page")
	assert.Zero(t, repo.calls)

	_, err = svc.Timeline(context.Background(), TimelineFilters{Page: maxPage, PageSize: maxPageSize})
	require.NoError(t, err)
	assert.Positive(t, repo.lastCall.OffsetRows)
}

func TestServiceHistory(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		mockRow(2, "2024-03-10T10:00:00Z", "", "update", "function", "7"),
		mockRow(1, "2024-03-09T09:00:00Z", "", "create", "function", "7"),
	}}
	svc := NewService(repo)

	rows, err := svc.History(context.Background(), "function", "7")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.EqualValues(t, historyLimit, repo.lastCall.LimitRows)
	assert.Equal(t, "function", repo.lastCall.Entity.String)
	assert.Equal(t, "7", repo.lastCall.EntityID.String)

	_, err = svc.History(context.Background(), "function", " ")
	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "entity_id")
}

func TestServiceErrors(t *testing.T) {
	_, err := NewService(nil).Timeline(context.Background(), TimelineFilters{})
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = NewService(&stubTimelineRepo{err: boom}).History(context.Background(), "person", "1")
	assert.ErrorIs(t, err, boom)
}
