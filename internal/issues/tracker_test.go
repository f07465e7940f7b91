package issues

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

var fixedNow = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	tr := New(store.NewMemoryStore(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.Now = func() time.Time { return fixedNow }
	return tr
}

func newSQLiteTracker(t *testing.T) *Tracker {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "civic.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	tr := New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.Now = func() time.Time { return fixedNow }
	return tr
}

func validInput() CreateInput {
	return CreateInput{
		Title:       "Pothole",
		Description: "Large hole",
		Category:    models.CategoryRoads,
		Location:    "Main St",
		ReportedBy:  "u1",
	}
}

func mustCreate(t *testing.T, tr *Tracker, in CreateInput) *models.Issue {
	t.Helper()
	issue, err := tr.Create(context.Background(), in)
	require.NoError(t, err)
	return issue
}

func TestLifecycleScenario(t *testing.T) {
	for name, tr := range map[string]*Tracker{"memory": newTestTracker(t), "sqlite": newSQLiteTracker(t)} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			issue := mustCreate(t, tr, validInput())
			assert.Equal(t, 1, issue.ID)
			assert.Equal(t, models.IssueStatusPending, issue.Status)
			assert.Empty(t, issue.AdminAssigned)
			assert.Equal(t, "2025-01-15", issue.DateReported)

			assigned, err := tr.Assign(ctx, 1, "a1")
			require.NoError(t, err)
			assert.Equal(t, models.IssueStatusInProgress, assigned.Status)
			assert.Equal(t, "a1", assigned.AdminAssigned)

			resolved, err := tr.Resolve(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, models.IssueStatusResolved, resolved.Status)

			// Only status and adminAssigned changed.
			want := issue.Clone()
			want.Status = models.IssueStatusResolved
			want.AdminAssigned = "a1"
			assert.Equal(t, want, resolved)

			// Resolving twice is rejected.
			_, err = tr.Resolve(ctx, 1)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			var te *InvalidTransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, models.IssueStatusResolved, te.From)
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	tr := newTestTracker(t)

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		fields []string
	}{
		{"missing title", func(in *CreateInput) { in.Title = "" }, []string{"title"}},
		{"blank description", func(in *CreateInput) { in.Description = "   " }, []string{"description"}},
		{"missing location", func(in *CreateInput) { in.Location = "" }, []string{"location"}},
		{"missing reporter", func(in *CreateInput) { in.ReportedBy = "" }, []string{"reportedBy"}},
		{"missing category", func(in *CreateInput) { in.Category = "" }, []string{"category"}},
		{"unknown category", func(in *CreateInput) { in.Category = "Potholes" }, []string{"category"}},
		{"several", func(in *CreateInput) { in.Title, in.Location = "", "" }, []string{"title", "location"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := tr.Create(context.Background(), in)
			require.ErrorIs(t, err, ErrValidation)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			var got []string
			for _, f := range ve.Fields {
				got = append(got, f.Field)
			}
			assert.Equal(t, tt.fields, got)
		})
	}

	all, err := tr.Query(context.Background(), Query{})
	require.NoError(t, err)
	assert.Empty(t, all, "failed creates must not store anything")
}

func TestCreate_UniqueIncreasingIDs(t *testing.T) {
	tr := newTestTracker(t)
	seen := map[int]bool{}
	prev := 0
	for i := 0; i < 5; i++ {
		issue := mustCreate(t, tr, validInput())
		assert.False(t, seen[issue.ID])
		assert.Greater(t, issue.ID, prev)
		seen[issue.ID] = true
		prev = issue.ID
	}
}

func TestCreate_DoesNotMutateExisting(t *testing.T) {
	tr := newTestTracker(t)
	first := mustCreate(t, tr, validInput())
	mustCreate(t, tr, validInput())

	got, err := tr.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first, got)
}

func TestResolvePending_Rejected(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	issue := mustCreate(t, tr, validInput())

	_, err := tr.Resolve(ctx, issue.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "assigned first")

	got, err := tr.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, issue, got, "failed resolve must leave the issue unmodified")
}

func TestAssign_Reassign(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	issue := mustCreate(t, tr, validInput())

	_, err := tr.Assign(ctx, issue.ID, "admin1")
	require.NoError(t, err)

	again, err := tr.Assign(ctx, issue.ID, "admin2")
	require.NoError(t, err)
	assert.Equal(t, "admin2", again.AdminAssigned)
	assert.Equal(t, models.IssueStatusInProgress, again.Status)
}

func TestAssign_ResolvedRejected(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	issue := mustCreate(t, tr, validInput())
	_, err := tr.Assign(ctx, issue.ID, "admin1")
	require.NoError(t, err)
	_, err = tr.Resolve(ctx, issue.ID)
	require.NoError(t, err)

	_, err = tr.Assign(ctx, issue.ID, "admin2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := tr.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin1", got.AdminAssigned)
}

func TestAssign_RequiresAdminID(t *testing.T) {
	tr := newTestTracker(t)
	issue := mustCreate(t, tr, validInput())
	_, err := tr.Assign(context.Background(), issue.ID, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	_, err := tr.Assign(ctx, 99, "admin1")
	assert.ErrorIs(t, err, ErrNotFound)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 99, nf.ID)

	_, err = tr.Resolve(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tr.Get(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssign_ConcurrentAdmins(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	issue := mustCreate(t, tr, validInput())

	admins := []string{"admin1", "admin2", "admin3", "admin4"}
	var wg sync.WaitGroup
	for _, a := range admins {
		wg.Add(1)
		go func(admin string) {
			defer wg.Done()
			_, err := tr.Assign(ctx, issue.ID, admin)
			assert.NoError(t, err)
		}(a)
	}
	wg.Wait()

	got, err := tr.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, got.Status)
	assert.Contains(t, admins, got.AdminAssigned)
}

func seedQueryFixture(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx := context.Background()
	inputs := []CreateInput{
		{Title: "Pothole on Main Street", Description: "Large pothole", Category: models.CategoryRoads, Location: "Main St & Oak Ave", ReportedBy: "user123"},
		{Title: "Broken Street Light", Description: "Dark at night", Category: models.CategoryUtilities, Location: "Park Avenue", ReportedBy: "user456"},
		{Title: "Overflowing Garbage Bins", Description: "Bins full", Category: models.CategoryWaste, Location: "Central Park", ReportedBy: "user789"},
		{Title: "Damaged Playground Equipment", Description: "Broken swing", Category: models.CategoryParks, Location: "Riverside Park", ReportedBy: "user123"},
	}
	for _, in := range inputs {
		mustCreate(t, tr, in)
	}
	_, err := tr.Assign(ctx, 2, "admin1")
	require.NoError(t, err)
	_, err = tr.Assign(ctx, 3, "admin2")
	require.NoError(t, err)
	_, err = tr.Resolve(ctx, 3)
	require.NoError(t, err)
}

func ids(list []*models.Issue) []int {
	var out []int
	for _, i := range list {
		out = append(out, i.ID)
	}
	return out
}

func TestQuery(t *testing.T) {
	tr := newTestTracker(t)
	seedQueryFixture(t, tr)

	tests := []struct {
		name string
		q    Query
		want []int
	}{
		{"all in insertion order", Query{}, []int{1, 2, 3, 4}},
		{"search matches only location", Query{IssueListFilter: store.IssueListFilter{Search: "oak ave"}}, []int{1}},
		{"search across fields", Query{IssueListFilter: store.IssueListFilter{Search: "PARK"}}, []int{2, 3, 4}},
		{"category", Query{IssueListFilter: store.IssueListFilter{Category: models.CategoryWaste}}, []int{3}},
		{"location", Query{IssueListFilter: store.IssueListFilter{Location: "park"}}, []int{2, 3, 4}},
		{"reported by", Query{IssueListFilter: store.IssueListFilter{ReportedBy: "user123"}}, []int{1, 4}},
		{"tab pending", Query{Tab: models.TabPending}, []int{1, 4}},
		{"tab in-progress", Query{Tab: models.TabInProgress}, []int{2}},
		{"tab all", Query{Tab: models.TabAll}, []int{1, 2, 3, 4}},
		{"tab and status agree", Query{Tab: models.TabResolved, IssueListFilter: store.IssueListFilter{Status: models.IssueStatusResolved}}, []int{3}},
		{"tab and status conflict", Query{Tab: models.TabResolved, IssueListFilter: store.IssueListFilter{Status: models.IssueStatusPending}}, nil},
		{"combined AND", Query{IssueListFilter: store.IssueListFilter{Location: "park", Status: models.IssueStatusPending}}, []int{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := tr.Query(context.Background(), tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(list))
		})
	}
}

func TestQuery_ReflectsCurrentState(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	seedQueryFixture(t, tr)

	q := Query{Tab: models.TabPending}
	before, err := tr.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, ids(before))

	_, err = tr.Assign(ctx, 1, "admin1")
	require.NoError(t, err)

	after, err := tr.Query(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, ids(after))
}

func TestQuery_InvalidEnums(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.Query(context.Background(), Query{Tab: "archived"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = tr.Query(context.Background(), Query{IssueListFilter: store.IssueListFilter{Status: "Closed"}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStats(t *testing.T) {
	var list []*models.Issue
	add := func(n int, s models.IssueStatus) {
		for i := 0; i < n; i++ {
			list = append(list, &models.Issue{Status: s})
		}
	}
	add(3, models.IssueStatusPending)
	add(2, models.IssueStatusInProgress)
	add(1, models.IssueStatusResolved)

	assert.Equal(t, models.Stats{Total: 6, Pending: 3, InProgress: 2, Resolved: 1}, Stats(list))
	assert.Equal(t, models.Stats{}, Stats(nil))
}

func TestTrackerStats(t *testing.T) {
	tr := newTestTracker(t)
	seedQueryFixture(t, tr)

	s, err := tr.Stats(context.Background(), Query{})
	require.NoError(t, err)
	assert.Equal(t, models.Stats{Total: 4, Pending: 2, InProgress: 1, Resolved: 1}, s)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)

	ok := &models.Issue{
		ID: 2, Title: "Broken Street Light", Description: "Flickering", Category: models.CategoryUtilities,
		Status: models.IssueStatusInProgress, Location: "Park Avenue", DateReported: "2025-01-12",
		ReportedBy: "user456", AdminAssigned: "admin1",
	}
	require.NoError(t, tr.Import(ctx, ok))

	next := mustCreate(t, tr, validInput())
	assert.Equal(t, 3, next.ID)

	bad := ok.Clone()
	bad.ID = 10
	bad.Status = models.IssueStatusPending
	err := tr.Import(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation)

	bad = ok.Clone()
	bad.ID = 11
	bad.AdminAssigned = ""
	assert.ErrorIs(t, tr.Import(ctx, bad), ErrValidation)

	bad = ok.Clone()
	bad.ID = 12
	bad.DateReported = "Jan 12"
	assert.ErrorIs(t, tr.Import(ctx, bad), ErrValidation)
}

// interleavingStore runs afterGet once, right after the next GetIssue
// returns, to let another writer act between a read and its write.
type interleavingStore struct {
	store.Store
	afterGet func()
}

func (s *interleavingStore) GetIssue(ctx context.Context, id int) (*models.Issue, error) {
	issue, err := s.Store.GetIssue(ctx, id)
	if fn := s.afterGet; fn != nil {
		s.afterGet = nil
		fn()
	}
	return issue, err
}

func openShared(t *testing.T, path string) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAssign_ResolvedByOtherProcess(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "civic.db")
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	cli := New(openShared(t, path), discard)
	issue := mustCreate(t, cli, validInput())
	_, err := cli.Assign(ctx, issue.ID, "admin1")
	require.NoError(t, err)

	shared := &interleavingStore{Store: openShared(t, path)}
	server := New(shared, discard)
	shared.afterGet = func() {
		_, err := cli.Resolve(ctx, issue.ID)
		require.NoError(t, err)
	}

	_, err = server.Assign(ctx, issue.ID, "admin2")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := cli.Get(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusResolved, got.Status)
	assert.Equal(t, "admin1", got.AdminAssigned)
}

func TestAssign_RetriesAfterOtherProcessAssigned(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "civic.db")
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))

	cli := New(openShared(t, path), discard)
	issue := mustCreate(t, cli, validInput())

	// The issue moves Pending -> In Progress after the server read it as
	// Pending; the server's assign retries and rebinds instead of failing.
	shared := &interleavingStore{Store: openShared(t, path)}
	server := New(shared, discard)
	shared.afterGet = func() {
		_, err := cli.Assign(ctx, issue.ID, "admin1")
		require.NoError(t, err)
	}

	got, err := server.Assign(ctx, issue.ID, "admin2")
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, got.Status)
	assert.Equal(t, "admin2", got.AdminAssigned)

	resolved, err := server.Resolve(ctx, issue.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin2", resolved.AdminAssigned)
}
