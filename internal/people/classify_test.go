package people

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasbase/blasbase/internal/assignments"
	"github.com/blasbase/blasbase/internal/functions"
	"github.com/blasbase/blasbase/internal/shared"
)

func fid(id int64) *int64 { return &id }

func day(s string) *shared.Date { return shared.DatePtr(shared.MustParseDate(s)) }

// 1 Orchestra
// ├── 2 Members (membership)
// │   └── 3 Trumpets (membership)
// └── 4 Board (engagement)
func classifyTree() *functions.Tree {
	return functions.NewTree([]functions.Function{
		{ID: 1, Name: "Orchestra"},
		{ID: 2, ParentID: fid(1), Name: "Members", Membership: true},
		{ID: 3, ParentID: fid(2), Name: "Trumpets", Membership: true},
		{ID: 4, ParentID: fid(1), Name: "Board", Engagement: true},
	})
}

func classifyLedger() *assignments.Ledger {
	return assignments.NewLedger([]assignments.Assignment{
		{ID: 1, PersonID: 1, FunctionID: 2, Start: day("2019-01-01")},
		{ID: 2, PersonID: 2, FunctionID: 2, Start: day("2015-01-01"), End: day("2018-01-01")},
		{ID: 3, PersonID: 3, FunctionID: 2, Start: day("2021-05-01"), Trial: true},
		{ID: 4, PersonID: 4, FunctionID: 4, Start: day("2020-01-01")},
		{ID: 5, PersonID: 6, FunctionID: 2, Start: day("2010-01-01"), End: day("2012-01-01")},
		{ID: 6, PersonID: 6, FunctionID: 3, Start: day("2020-01-01")},
		{ID: 7, PersonID: 7, FunctionID: 3},
		{ID: 8, PersonID: 8, FunctionID: 2, Start: day("2022-01-01")},
	}, classifyTree())
}

func TestClassify(t *testing.T) {
	c := Classify([]int64{8, 7, 6, 5, 4, 3, 2, 1, 1}, classifyLedger(), shared.MustParseDate("2021-06-01"))

	assert.Equal(t, []int64{1, 2, 3, 6, 7, 8}, c.Members)
	assert.Equal(t, []int64{1, 6}, c.Active)
	assert.Equal(t, []int64{2, 7}, c.Oldies)
	assert.Equal(t, []int64{3, 4, 5}, c.Others)
}

func TestClassifyTrialOnlyIsMemberAndOther(t *testing.T) {
	ledger := assignments.NewLedger([]assignments.Assignment{
		{ID: 1, PersonID: 1, FunctionID: 2, Start: day("2001-01-01")},
		{ID: 2, PersonID: 2, FunctionID: 2, Start: day("2004-01-01"), Trial: true},
	}, classifyTree())

	c := Classify([]int64{1, 2}, ledger, shared.MustParseDate("2003-01-01"))
	assert.Equal(t, []int64{1, 2}, c.Members)
	assert.Equal(t, []int64{1}, c.Active)
	assert.Empty(t, c.Oldies)
	assert.Equal(t, []int64{2}, c.Others)
	assert.Equal(t, []Category{CategoryMembers, CategoryOthers}, c.CategoriesOf(2))
}

func TestClassifyInvariants(t *testing.T) {
	population := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	ledger := classifyLedger()
	full := toSet(ledger.Memberships(false).People())
	for _, asOf := range []string{"2009-01-01", "2015-06-01", "2018-01-01", "2021-06-01", "2030-01-01"} {
		t.Run(asOf, func(t *testing.T) {
			c := Classify(population, ledger, shared.MustParseDate(asOf))

			members := toSet(c.Members)
			for _, id := range c.Active {
				assert.Contains(t, members, id, "active must be members")
				assert.NotContains(t, c.Oldies, id, "active and oldies are disjoint")
			}
			for _, id := range c.Oldies {
				assert.Contains(t, members, id, "oldies must be members")
			}
			for _, id := range c.Others {
				assert.NotContains(t, full, id, "others hold no non-trial membership")
			}
			for _, id := range population {
				_, member := members[id]
				assert.True(t, member || slices.Contains(c.Others, id), "person %d is unclassified", id)
			}
		})
	}
}

// Members are exactly active, oldies and trial-only people, except for people
// whose non-trial memberships have neither started nor ended at asOf
// (future-dated, or inverted and not yet past their end).
func TestClassifyMembersAreActiveOldiesOrTrialOnly(t *testing.T) {
	population := []int64{1, 2, 3, 4, 5, 6, 7, 8}
	ledger := classifyLedger()
	full := ledger.Memberships(false)
	for _, asOf := range []string{"2009-01-01", "2015-06-01", "2018-01-01", "2021-06-01", "2030-01-01"} {
		t.Run(asOf, func(t *testing.T) {
			at := shared.MustParseDate(asOf)
			c := Classify(population, ledger, at)

			trialOnly := map[int64]struct{}{}
			for _, id := range ledger.Memberships(true).People() {
				if full.ForPerson(id).Len() == 0 {
					trialOnly[id] = struct{}{}
				}
			}
			union := toSet(c.Active)
			for _, id := range c.Oldies {
				union[id] = struct{}{}
			}
			for id := range trialOnly {
				union[id] = struct{}{}
			}

			pending := map[int64]struct{}{}
			for _, id := range c.Members {
				if _, ok := union[id]; ok {
					continue
				}
				pending[id] = struct{}{}
				own := full.ForPerson(id)
				assert.Zero(t, own.Ongoing(at).Len(), "person %d has an ongoing membership", id)
				assert.Zero(t, own.Ended(at).Len(), "person %d has an ended membership", id)
			}
			for id := range union {
				assert.Contains(t, toSet(c.Members), id, "person %d must be a member", id)
			}
			if asOf == "2021-06-01" {
				assert.Equal(t, map[int64]struct{}{8: {}}, pending)
				assert.Equal(t, map[int64]struct{}{3: {}}, trialOnly)
			}
		})
	}
}

func TestClassifyEndedMembershipMovesToOldies(t *testing.T) {
	population := []int64{1}
	active := assignments.NewLedger([]assignments.Assignment{
		{ID: 1, PersonID: 1, FunctionID: 2, Start: day("2020-01-01")},
	}, classifyTree())
	c := Classify(population, active, shared.MustParseDate("2021-06-01"))
	assert.Equal(t, []int64{1}, c.Active)

	ended := assignments.NewLedger([]assignments.Assignment{
		{ID: 1, PersonID: 1, FunctionID: 2, Start: day("2020-01-01"), End: day("2021-01-01")},
	}, classifyTree())
	c = Classify(population, ended, shared.MustParseDate("2021-06-01"))
	assert.Empty(t, c.Active)
	assert.Equal(t, []int64{1}, c.Oldies)
}

func TestClassifyEmpty(t *testing.T) {
	c := Classify(nil, assignments.NewLedger(nil, nil), shared.MustParseDate("2021-06-01"))
	assert.NotNil(t, c.Members)
	assert.Empty(t, c.Members)
	assert.Empty(t, c.Others)
}

func TestCategoriesOf(t *testing.T) {
	c := Classify([]int64{1, 2, 4}, classifyLedger(), shared.MustParseDate("2021-06-01"))

	assert.Equal(t, []Category{CategoryMembers, CategoryActive}, c.CategoriesOf(1))
	assert.Equal(t, []Category{CategoryMembers, CategoryOldies}, c.CategoriesOf(2))
	assert.Equal(t, []Category{CategoryOthers}, c.CategoriesOf(4))

	c = Classify([]int64{3}, classifyLedger(), shared.MustParseDate("2021-06-01"))
	assert.Equal(t, []Category{CategoryMembers, CategoryOthers}, c.CategoriesOf(3))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("oldies")
	require.NoError(t, err)
	assert.Equal(t, CategoryOldies, c)

	_, err = ParseCategory("alumni")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
