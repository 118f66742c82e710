package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sony/gobreaker"

	"librarydesk/internal/catalog"
	"librarydesk/internal/clients"
	"librarydesk/internal/membership"
)

// Settings sizes the library experiments.
type Settings struct {
	Concurrency int           // students hitting the same book at once
	Rounds      int           // issue/return cycles per student in the churn experiment
	LockHold    time.Duration // how long the book row stays locked
	Observe     time.Duration // observation window of each experiment
}

// DefaultSettings stays under the default student registration rate.
func DefaultSettings() Settings {
	return Settings{
		Concurrency: 20,
		Rounds:      5,
		LockHold:    3 * time.Second,
		Observe:     30 * time.Second,
	}
}

// Target is the deployment under test. DB must point at the same database
// the API server uses; it is only read, except for the row lock experiment.
type Target struct {
	DB          *sqlx.DB
	Books       *clients.CatalogClient
	Students    *clients.MembershipClient
	Circulation *clients.CirculationClient

	runID string
	mu    sync.Mutex
	pool  []*membership.Student
}

func NewTarget(db *sqlx.DB, apiURL string, opts ...clients.Option) *Target {
	return &Target{
		DB:          db,
		Books:       clients.NewCatalogClient(apiURL, opts...),
		Students:    clients.NewMembershipClient(apiURL, opts...),
		Circulation: clients.NewCirculationClient(apiURL, opts...),
		runID:       uuid.NewString()[:8],
	}
}

// RegisterExperiments registers all predefined experiments with the engine.
func (e *Engine) RegisterExperiments(t *Target, s Settings) {
	e.RegisterExperiment(t.ConcurrentIssueRace(s))
	e.RegisterExperiment(t.IssueReturnChurn(s))
	e.RegisterExperiment(t.BookRowContention(s))
}

// InvariantMetrics are the data consistency probes every experiment keeps
// in its steady state.
func (t *Target) InvariantMetrics() []Metric {
	zero := Threshold{Operator: "==", Value: 0}
	return []Metric{
		{Name: "copy_bounds_violations", Query: t.count(`
			SELECT COUNT(*) FROM books
			WHERE available_copies < 0 OR available_copies > total_copies
		`), Threshold: zero},
		{Name: "duplicate_open_loans", Query: t.count(`
			SELECT COUNT(*) FROM (
				SELECT student_id, book_id FROM transactions
				WHERE status = 'active'
				GROUP BY student_id, book_id HAVING COUNT(*) > 1
			) d
		`), Threshold: zero},
		{Name: "ledger_drift", Query: t.count(`
			SELECT COUNT(*) FROM books b
			WHERE b.total_copies - b.available_copies <>
				(SELECT COUNT(*) FROM transactions t WHERE t.book_id = b.id AND t.status = 'active')
		`), Threshold: zero},
		{Name: "circulation_breaker_open", Query: func(context.Context) (float64, error) {
			if t.Circulation.State() == gobreaker.StateOpen {
				return 1, nil
			}
			return 0, nil
		}, Threshold: zero},
	}
}

func (t *Target) count(query string) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		var n int
		if err := t.DB.GetContext(ctx, &n, query); err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func counter(name string, v *atomic.Int64, th Threshold) Metric {
	return Metric{
		Name:      name,
		Query:     func(context.Context) (float64, error) { return float64(v.Load()), nil },
		Threshold: th,
	}
}

func invariantAssertions() []Assertion {
	return []Assertion{
		{Metric: "copy_bounds_violations", Condition: func(v float64) bool { return v == 0 }, Message: "Available copies must stay within [0, total]"},
		{Metric: "duplicate_open_loans", Condition: func(v float64) bool { return v == 0 }, Message: "A student may hold at most one open loan per book"},
		{Metric: "ledger_drift", Condition: func(v float64) bool { return v == 0 }, Message: "Issued copies must equal open loans"},
	}
}

// students returns n registered students, registering more when the pool is
// short. Registration is rate limited server side, so it backs off on 429.
func (t *Target) students(ctx context.Context, n int) ([]*membership.Student, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for len(t.pool) < n {
		i := len(t.pool)
		s, err := t.Students.RegisterStudent(ctx,
			fmt.Sprintf("Chaos Student %d", i),
			"",
			fmt.Sprintf("CHAOS-%s-%03d", t.runID, i),
		)
		if clients.HasCode(err, "RateLimited") {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("register chaos student: %w", err)
		}
		t.pool = append(t.pool, s)
	}
	return t.pool[:n], nil
}

func (t *Target) book(ctx context.Context, experiment string, copies int) (*catalog.Book, error) {
	b, err := t.Books.AddBook(ctx, catalog.NewBook{
		Title:       fmt.Sprintf("Chaos %s %s", experiment, t.runID),
		Author:      "librarydesk chaos",
		TotalCopies: copies,
	})
	if err != nil {
		return nil, fmt.Errorf("add chaos book: %w", err)
	}
	return b, nil
}

// ConcurrentIssueRace validates that the last copy is lent exactly once.
func (t *Target) ConcurrentIssueRace(s Settings) Experiment {
	var winners, unexpected atomic.Int64
	var book *catalog.Book
	var holder uuid.UUID

	return Experiment{
		Name:       "concurrent-issue-race-condition",
		Hypothesis: "System prevents double-booking when many students issue the last copy simultaneously",
		SteadyState: append(t.InvariantMetrics(),
			counter("last_copy_winners", &winners, Threshold{Operator: "<=", Value: 1}),
			counter("unexpected_rejections", &unexpected, Threshold{Operator: "==", Value: 0}),
		),
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					winners.Store(0)
					unexpected.Store(0)
					holder = uuid.Nil

					students, err := t.students(ctx, s.Concurrency)
					if err != nil {
						return err
					}
					if book, err = t.book(ctx, "race", 1); err != nil {
						return err
					}

					var wg sync.WaitGroup
					var mu sync.Mutex
					var errs []error
					for _, st := range students {
						wg.Add(1)
						go func(st *membership.Student) {
							defer wg.Done()
							_, err := t.Circulation.Issue(ctx, st.ID, book.ScanCode)
							switch {
							case err == nil:
								winners.Add(1)
								mu.Lock()
								holder = st.ID
								mu.Unlock()
							case clients.HasCode(err, "NoCopiesAvailable"):
							default:
								unexpected.Add(1)
								mu.Lock()
								errs = append(errs, err)
								mu.Unlock()
							}
						}(st)
					}
					wg.Wait()
					return errors.Join(errs...)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "return-copy",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					if book == nil || holder == uuid.Nil {
						return nil
					}
					_, err := t.Circulation.Return(ctx, holder, book.ID.String())
					return err
				},
			},
		},
		Validation: append(invariantAssertions(),
			Assertion{Metric: "last_copy_winners", Condition: func(v float64) bool { return v == 1 }, Message: "Exactly one concurrent issue should succeed"},
			Assertion{Metric: "unexpected_rejections", Condition: func(v float64) bool { return v == 0 }, Message: "Losers must be refused with NoCopiesAvailable"},
		),
		Duration:    s.Observe,
		BlastRadius: 0.1,
	}
}

// IssueReturnChurn hammers one book with interleaved issues and returns.
func (t *Target) IssueReturnChurn(s Settings) Experiment {
	var unexpected atomic.Int64

	return Experiment{
		Name:       "issue-return-churn",
		Hypothesis: "Copy counts stay consistent under sustained interleaved issues and returns",
		SteadyState: append(t.InvariantMetrics(),
			counter("unexpected_rejections", &unexpected, Threshold{Operator: "==", Value: 0}),
		),
		Method: []Action{
			{
				Type:   "churn",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					students, err := t.students(ctx, s.Concurrency)
					if err != nil {
						return err
					}
					book, err := t.book(ctx, "churn", max(1, s.Concurrency/4))
					if err != nil {
						return err
					}

					var wg sync.WaitGroup
					for _, st := range students {
						wg.Add(1)
						go func(id uuid.UUID) {
							defer wg.Done()
							for i := 0; i < s.Rounds; i++ {
								_, err := t.Circulation.Issue(ctx, id, book.ID.String())
								if clients.HasCode(err, "NoCopiesAvailable") {
									continue
								}
								if err != nil {
									unexpected.Add(1)
									continue
								}
								if _, err := t.Circulation.Return(ctx, id, book.ID.String()); err != nil {
									unexpected.Add(1)
								}
							}
						}(st.ID)
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: append(invariantAssertions(),
			Assertion{Metric: "unexpected_rejections", Condition: func(v float64) bool { return v == 0 }, Message: "Churn must only be refused for lack of copies"},
		),
		Duration:    s.Observe,
		BlastRadius: 0.1,
	}
}

// BookRowContention holds a write lock on a book while issues queue behind it.
func (t *Target) BookRowContention(s Settings) Experiment {
	var failed atomic.Int64

	return Experiment{
		Name:       "book-row-lock-contention",
		Hypothesis: "Issues blocked behind a long-running writer complete once the lock is released",
		SteadyState: append(t.InvariantMetrics(),
			counter("failed_while_locked", &failed, Threshold{Operator: "==", Value: 0}),
		),
		Method: []Action{
			{
				Type:   "row-lock",
				Target: "database",
				Execute: func(ctx context.Context) error {
					n := max(1, s.Concurrency/4)
					students, err := t.students(ctx, n)
					if err != nil {
						return err
					}
					book, err := t.book(ctx, "contention", n)
					if err != nil {
						return err
					}

					tx, err := t.DB.BeginTxx(ctx, nil)
					if err != nil {
						return fmt.Errorf("begin lock transaction: %w", err)
					}
					defer tx.Rollback()
					if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE books SET version = version WHERE id = ?`), book.ID); err != nil {
						return fmt.Errorf("lock book row: %w", err)
					}

					var wg sync.WaitGroup
					for _, st := range students {
						wg.Add(1)
						go func(id uuid.UUID) {
							defer wg.Done()
							if _, err := t.Circulation.Issue(ctx, id, book.ID.String()); err != nil {
								failed.Add(1)
								return
							}
							if _, err := t.Circulation.Return(ctx, id, book.ID.String()); err != nil {
								failed.Add(1)
							}
						}(st.ID)
					}

					select {
					case <-ctx.Done():
					case <-time.After(s.LockHold):
					}
					if err := tx.Rollback(); err != nil {
						return fmt.Errorf("release book row: %w", err)
					}
					wg.Wait()
					return nil
				},
			},
		},
		Validation: append(invariantAssertions(),
			Assertion{Metric: "failed_while_locked", Condition: func(v float64) bool { return v == 0 }, Message: "Every queued issue should complete after the lock is released"},
			Assertion{Metric: "circulation_breaker_open", Condition: func(v float64) bool { return v == 0 }, Message: "The circulation breaker should stay closed"},
		),
		Duration:    s.Observe,
		BlastRadius: 0.05,
	}
}
