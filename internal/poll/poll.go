// Package poll implements the poll loop: the long-lived activity that
// drains a watched database's change log, dispatches each row, and
// advances the cursor. It is the only owner of the cursor file.
package poll

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/sync2gm/sync2gmd/internal/cursor"
	"github.com/sync2gm/sync2gmd/internal/dispatch"
	"github.com/sync2gm/sync2gmd/internal/syncerr"
	"github.com/sync2gm/sync2gmd/internal/watch"
)

// Batch is the maximum number of change rows read per cycle. It
// bounds exposure to an in-memory-only cursor write, not correctness.
const Batch = 10

// Interval is how long the loop sleeps between cycles that found an
// empty batch.
const Interval = 5 * time.Second

// lockRetryBackoff is how long the loop waits between retries of a
// batch select that failed with a transient store lock.
const lockRetryBackoff = 200 * time.Millisecond

// Options configures a Loop.
type Options struct {
	// AdvanceOnRetryableFailure advances past a change even when its
	// handler reported a retryable remote failure, instead of halting
	// the batch. The default (false) is the stricter at-least-once
	// behavior — see DESIGN.md's "Open Questions resolved" for why this
	// knob exists but is never turned on by sync2gmd itself.
	AdvanceOnRetryableFailure bool
}

// Loop is the poll loop over one watched database.
type Loop struct {
	watchedDB  *sql.DB
	cursor     *cursor.Store
	dispatcher *dispatch.Dispatcher
	log        *log.Logger
	opts       Options

	refresh bool
	pos     int64
}

// New returns a Loop ready to Run. cursorStore's file must already
// exist (seeded by config.Init at sync2gmd init time, or by
// cursor.Store.Init).
func New(watchedDB *sql.DB, cursorStore *cursor.Store, dispatcher *dispatch.Dispatcher, logger *log.Logger, opts Options) *Loop {
	return &Loop{
		watchedDB:  watchedDB,
		cursor:     cursorStore,
		dispatcher: dispatcher,
		log:        logger,
		opts:       opts,
		refresh:    true,
	}
}

// Run executes cycles until ctx is canceled. It always returns after
// completing any handler already in flight and writing the cursor for
// whatever finished.
func (l *Loop) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := l.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (l *Loop) cycle(ctx context.Context) error {
	if l.refresh {
		pos, err := l.cursor.Load()
		if err != nil {
			return err
		}
		l.pos = pos
	}

	batch, err := l.selectBatchWithRetry(ctx)
	if err != nil {
		return err
	}

	if len(batch) == 0 {
		l.refresh = false
		return l.sleep(ctx)
	}

	for _, row := range batch {
		if ctx.Err() != nil {
			return nil
		}

		traceID := uuid.New().String()
		err := l.dispatcher.Dispatch(ctx, row)

		if err != nil && syncerr.Retryable(err) && !l.opts.AdvanceOnRetryableFailure {
			l.log.Printf("trace=%s change_id=%d: retryable failure, halting batch: %v", traceID, row.ChangeID, err)
			break
		}

		if err != nil {
			if errors.Is(err, syncerr.ErrUnmapped) {
				l.log.Printf("trace=%s change_id=%d: unmapped dependency, skipping: %v", traceID, row.ChangeID, err)
			} else if errors.Is(err, syncerr.ErrHandlerBug) {
				l.log.Printf("trace=%s change_id=%d: handler bug, skipping: %v", traceID, row.ChangeID, err)
			} else {
				l.log.Printf("trace=%s change_id=%d: non-retryable failure, skipping: %v", traceID, row.ChangeID, err)
			}
		} else {
			l.log.Printf("trace=%s change_id=%d: applied", traceID, row.ChangeID)
		}

		if writeErr := l.cursor.Store(row.ChangeID); writeErr != nil {
			l.log.Printf("trace=%s change_id=%d: %v (continuing; redispatch is safe)", traceID, row.ChangeID, writeErr)
		}
		l.pos = row.ChangeID
	}

	l.refresh = true
	return nil
}

func (l *Loop) selectBatchWithRetry(ctx context.Context) ([]watch.ChangeLogRow, error) {
	for {
		batch, err := watch.SelectBatch(ctx, l.watchedDB, l.pos, Batch)
		if err == nil {
			return batch, nil
		}
		if !errors.Is(err, syncerr.ErrHostStoreLocked) {
			return nil, err
		}

		l.log.Printf("watched database locked, retrying %s", humanize.Time(time.Now().Add(lockRetryBackoff)))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryBackoff):
		}
	}
}

func (l *Loop) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(Interval):
		return nil
	}
}
