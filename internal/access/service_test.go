package access

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/people"
	"github.com/blasbase/blasbase/internal/rbac"
	"github.com/blasbase/blasbase/internal/shared"
	"github.com/blasbase/blasbase/internal/users"
)

type stubUsers map[int64]users.User

func (s stubUsers) GetUser(ctx context.Context, id int64) (users.User, error) {
	u, ok := s[id]
	if !ok {
		return users.User{}, shared.ErrNotFound
	}
	return u, nil
}

type stubPeople struct {
	people []people.Person
	err    error
}

func (s stubPeople) Get(ctx context.Context, id int64) (people.Person, error) {
	for _, p := range s.people {
		if p.ID == id {
			return p, nil
		}
	}
	return people.Person{}, shared.ErrNotFound
}

func (s stubPeople) ForUser(ctx context.Context, userID int64) (people.Person, error) {
	if s.err != nil {
		return people.Person{}, s.err
	}
	for _, p := range s.people {
		if p.UserID != nil && *p.UserID == userID {
			return p, nil
		}
	}
	return people.Person{}, shared.ErrNotFound
}

type stubLedger struct {
	tree  *functions.Tree
	items []assignments.Assignment
	today shared.Date
}

func (s stubLedger) LedgerFor(ctx context.Context, filter assignments.ListFilter) (*assignments.Ledger, error) {
	return assignments.NewLedger(s.items, s.tree).ForPerson(filter.PersonID), nil
}

func (s stubLedger) Today() shared.Date { return s.today }

type stubCatalogue struct{}

func (stubCatalogue) All(ctx context.Context) (rbac.Set, error) {
	return rbac.NewSet(perm(1, "view_person"), perm(2, "change_person"), perm(3, "delete_person")), nil
}

func newTestService(p stubPeople) *Service {
	tree := functions.NewTree([]functions.Function{
		{ID: 1, Name: "Board", Permissions: []rbac.Permission{perm(2, "change_person")}},
	})
	ledger := stubLedger{
		tree: tree,
		items: []assignments.Assignment{
			{ID: 1, PersonID: 10, FunctionID: 1, Start: day("2020-01-01")},
			{ID: 2, PersonID: 11, FunctionID: 1, Start: day("2020-01-01"), End: day("2021-01-01")},
		},
		today: shared.MustParseDate("2021-06-01"),
	}
	accounts := stubUsers{
		1: {ID: 1, IsActive: true, Permissions: []rbac.Permission{perm(1, "view_person")}},
		2: {ID: 2, IsActive: false, Permissions: []rbac.Permission{perm(1, "view_person")}},
		3: {ID: 3, IsActive: true, IsStaff: true, IsSuperuser: true},
		4: {ID: 4, IsActive: true},
		5: {ID: 5, IsActive: true},
	}
	return NewService(accounts, p, ledger, stubCatalogue{}, nil)
}

func linked() stubPeople {
	return stubPeople{people: []people.Person{
		{ID: 10, FirstName: "Anna", LastName: "Svensson", UserID: ptr(1)},
		{ID: 11, FirstName: "Erik", LastName: "Öberg", UserID: ptr(4)},
	}}
}

func TestEffectivePermissions(t *testing.T) {
	svc := newTestService(linked())
	ctx := context.Background()

	tests := []struct {
		name   string
		userID int64
		keys   []string
	}{
		{"direct and derived", 1, []string{"blasbase.change_person", "blasbase.view_person"}},
		{"inactive", 2, []string{}},
		{"superuser", 3, []string{"blasbase.change_person", "blasbase.delete_person", "blasbase.view_person"}},
		{"ended assignment", 4, []string{}},
		{"no linked person", 5, []string{}},
		{"unknown account", 99, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := svc.EffectivePermissions(ctx, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.keys, set.Keys())
		})
	}
}

func TestEffectivePermissionsPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(stubPeople{err: boom})

	_, err := svc.EffectivePermissions(context.Background(), 1)
	assert.ErrorIs(t, err, boom)
}

func TestIsStaff(t *testing.T) {
	svc := newTestService(linked())
	ctx := context.Background()

	staff, err := svc.IsStaff(ctx, 3)
	require.NoError(t, err)
	assert.True(t, staff)

	staff, err = svc.IsStaff(ctx, 1)
	require.NoError(t, err)
	assert.False(t, staff)

	staff, err = svc.IsStaff(ctx, 99)
	require.NoError(t, err)
	assert.False(t, staff)
}

func TestPersonPermissions(t *testing.T) {
	svc := newTestService(linked())
	ctx := context.Background()

	set, asOf, err := svc.PersonPermissions(ctx, 11, day("2020-06-01"))
	require.NoError(t, err)
	assert.Equal(t, shared.MustParseDate("2020-06-01"), asOf)
	assert.Equal(t, []string{"blasbase.change_person"}, set.Keys())

	set, asOf, err = svc.PersonPermissions(ctx, 11, nil)
	require.NoError(t, err)
	assert.Equal(t, shared.MustParseDate("2021-06-01"), asOf)
	assert.Zero(t, set.Len())

	_, _, err = svc.PersonPermissions(ctx, 404, nil)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLinkedName(t *testing.T) {
	svc := newTestService(linked())
	ctx := context.Background()

	n, err := svc.LinkedName(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "Anna S", n.ShortName())

	n, err = svc.LinkedName(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, n)
}
