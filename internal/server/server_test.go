package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/catalog"
	"librarydesk/internal/circulation"
	"librarydesk/internal/clients"
	"librarydesk/internal/database"
	"librarydesk/internal/membership"
	"librarydesk/pkg/eventstore"
)

type TestSuite struct {
	srv         *httptest.Server
	books       *clients.CatalogClient
	students    *clients.MembershipClient
	circulation *clients.CirculationClient
}

func setupTestSuite(t *testing.T) *TestSuite {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.DriverSQLite, ":memory:")
	require.NoError(t, err)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	es := eventstore.NewEventStore(db)
	circ, err := circulation.NewService(es, db, circulation.DefaultPolicy(), circulation.WithLogger(log))
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(Deps{
		DB:          db,
		Events:      es,
		Catalog:     catalog.NewService(es, db),
		Students:    membership.NewService(es, db, 0),
		Circulation: circ,
		Log:         log,
	}))
	t.Cleanup(func() {
		srv.Close()
		db.Close()
	})

	return &TestSuite{
		srv:         srv,
		books:       clients.NewCatalogClient(srv.URL),
		students:    clients.NewMembershipClient(srv.URL),
		circulation: clients.NewCirculationClient(srv.URL),
	}
}

func TestIssueReturnFlow(t *testing.T) {
	ts := setupTestSuite(t)
	ctx := context.Background()

	student, err := ts.students.RegisterStudent(ctx, "Test User", "test@example.com", "CS-042")
	require.NoError(t, err)

	book, err := ts.books.AddBook(ctx, catalog.NewBook{
		Title:       "Pride and Prejudice",
		Author:      "Jane Austen",
		ISBN:        "9780141439518",
		TotalCopies: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, book.ScanCode)

	loan, err := ts.circulation.Issue(ctx, student.ID, book.ScanCode)
	require.NoError(t, err)
	assert.Equal(t, 4, loan.AvailableCopies)
	assert.Equal(t, circulation.StatusActive, loan.Transaction.Status)

	updated, err := ts.books.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.AvailableCopies)

	active, err := ts.circulation.ActiveIssues(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, loan.Transaction.ID, active[0].ID)

	resolved, err := ts.books.Resolve(ctx, book.ScanCode)
	require.NoError(t, err)
	assert.Equal(t, book.ID, resolved.ID)

	returned, err := ts.circulation.Return(ctx, student.ID, book.ID.String())
	require.NoError(t, err)
	assert.Equal(t, 5, returned.AvailableCopies)
	assert.Nil(t, returned.FineInfo)
	assert.True(t, returned.Transaction.FinePaid)

	updated, err = ts.books.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.AvailableCopies)

	active, err = ts.circulation.ActiveIssues(ctx, student.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = ts.circulation.Return(ctx, student.ID, book.ID.String())
	assert.True(t, clients.HasCode(err, "NoActiveIssue"))
}

func TestConcurrentIssuePreventsDoubleBooking(t *testing.T) {
	ts := setupTestSuite(t)
	ctx := context.Background()

	book, err := ts.books.AddBook(ctx, catalog.NewBook{
		Title:       "The Great Gatsby",
		Author:      "F. Scott Fitzgerald",
		ISBN:        "9780743273565",
		TotalCopies: 1,
	})
	require.NoError(t, err)

	var students []*membership.Student
	for i := 0; i < 10; i++ {
		s, err := ts.students.RegisterStudent(ctx, fmt.Sprintf("Member %d", i), fmt.Sprintf("member%d@test.com", i), fmt.Sprintf("R-%02d", i))
		require.NoError(t, err)
		students = append(students, s)
	}

	var wg sync.WaitGroup
	successCount := 0
	var mu sync.Mutex

	for _, s := range students {
		wg.Add(1)
		go func(s *membership.Student) {
			defer wg.Done()
			_, err := ts.circulation.Issue(ctx, s.ID, book.ID.String())
			if err == nil {
				mu.Lock()
				successCount++
				mu.Unlock()
				return
			}
			assert.True(t, clients.HasCode(err, "NoCopiesAvailable"), "unexpected error: %v", err)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 1, successCount, "Only one concurrent issue should succeed")

	a, err := ts.circulation.Availability(ctx, book.ScanCode)
	require.NoError(t, err)
	assert.Equal(t, 0, a.AvailableCopies)
	assert.Len(t, a.Holders, 1)
}

func TestHealth(t *testing.T) {
	ts := setupTestSuite(t)

	resp, err := http.Get(ts.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestUnknownRoute(t *testing.T) {
	ts := setupTestSuite(t)

	resp, err := http.Get(ts.srv.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestEventFeed(t *testing.T) {
	ts := setupTestSuite(t)
	ctx := context.Background()

	student, err := ts.students.RegisterStudent(ctx, "Reader", "", "CS-001")
	require.NoError(t, err)
	book, err := ts.books.AddBook(ctx, catalog.NewBook{Title: "Dune", Author: "Frank Herbert", TotalCopies: 1})
	require.NoError(t, err)
	_, err = ts.circulation.Issue(ctx, student.ID, book.ID.String())
	require.NoError(t, err)

	type feed struct {
		Events []eventstore.Event `json:"events"`
		Next   int64              `json:"next"`
	}
	get := func(query string) (int, feed) {
		resp, err := http.Get(ts.srv.URL + "/api/events" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		var f feed
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&f))
		}
		return resp.StatusCode, f
	}

	status, first := get("?limit=2")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, first.Events, 2)
	assert.Equal(t, "StudentRegistered", first.Events[0].EventType)
	assert.Equal(t, "BookAdded", first.Events[1].EventType)

	status, rest := get(fmt.Sprintf("?after=%d", first.Next))
	require.Equal(t, http.StatusOK, status)
	require.Len(t, rest.Events, 1)
	assert.Equal(t, "BookIssued", rest.Events[0].EventType)
	assert.Equal(t, rest.Events[0].ID, rest.Next)

	status, _ = get("?after=-3")
	assert.Equal(t, http.StatusBadRequest, status)
}
