// Package dispatch resolves a change-log row to a handler, invokes
// it with the context it needs, and applies its HandlerResult to the
// Id Map Store.
//
// Handlers are plain functions over a HandlerContext value, not
// subclasses capturing a helper at construction, so there is no
// handler-lifetime state to keep in sync with the Id Map Store —
// every dependency a handler needs comes in through its HandlerContext
// argument.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"runtime/debug"

	"github.com/sync2gm/sync2gmd/internal/idmap"
	"github.com/sync2gm/sync2gmd/internal/remote"
	"github.com/sync2gm/sync2gmd/internal/syncerr"
	"github.com/sync2gm/sync2gmd/internal/watch"
)

// IDMapReader is the read-only capability a handler gets against the
// Id Map Store. It is the only way a handler may reference a remote
// id for some other local entity; handlers must not hold a direct
// reference to the Id Map Store's mutator.
type IDMapReader interface {
	Lookup(ctx context.Context, kind idmap.Kind, localID int64) (string, error)
}

// HandlerContext is the small, immutable value passed to every
// handler invocation.
type HandlerContext struct {
	LocalID int64
	Remote  remote.Client
	DB      *sql.DB
	IDMap   IDMapReader
}

// Action is the kind of mapping update a HandlerResult describes.
type Action int

const (
	// None means the change does not alter the local<->remote
	// mapping (a pure update).
	None Action = iota
	// Create means a new remote object exists; its mapping should be
	// recorded.
	Create
	// Delete means the remote counterpart has been removed; its
	// mapping should be dropped.
	Delete
)

// HandlerResult is a handler's side-effect contract.
type HandlerResult struct {
	Action   Action
	ItemKind idmap.Kind
	RemoteID string // only meaningful when Action == Create
}

// NoResult is the HandlerResult for a pure update.
var NoResult = HandlerResult{Action: None}

// CreateResult records that localID now maps to remoteID under kind.
func CreateResult(kind idmap.Kind, remoteID string) HandlerResult {
	return HandlerResult{Action: Create, ItemKind: kind, RemoteID: remoteID}
}

// DeleteResult records that localID's mapping under kind should be
// dropped.
func DeleteResult(kind idmap.Kind) HandlerResult {
	return HandlerResult{Action: Delete, ItemKind: kind}
}

// Handler applies one class of local mutation to the remote service
// and reports how the local<->remote mapping should change. Handlers
// must be idempotent: invoking one twice for the same logical change
// must converge to the same remote state and produce an equivalent
// HandlerResult.
type Handler func(ctx context.Context, hctx HandlerContext) (HandlerResult, error)

// Dispatcher maps a ChangeLogRow's change_type to a Handler by vector
// index and applies the result to the Id Map Store.
type Dispatcher struct {
	handlers []Handler
	idMap    *idmap.Store
	remote   remote.Client
	watched  *sql.DB
}

// New returns a Dispatcher. handlers must be ordered exactly as the
// binding's action pairs, since change_type is its index — reordering
// silently breaks existing change logs.
func New(handlers []Handler, idMap *idmap.Store, remoteClient remote.Client, watchedDB *sql.DB) *Dispatcher {
	return &Dispatcher{handlers: handlers, idMap: idMap, remote: remoteClient, watched: watchedDB}
}

// Len returns the number of handlers, i.e. the instrumentation's
// point count. watch.Attach and Dispatcher must be built
// from the same ordered list so this equals len(points) by
// construction.
func (d *Dispatcher) Len() int {
	return len(d.handlers)
}

// Dispatch invokes the handler for row and, on success, applies its
// HandlerResult to the Id Map Store before returning. Errors raised by
// the dispatcher itself wrap a syncerr sentinel; an error returned by
// the handler is passed on unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, row watch.ChangeLogRow) error {
	if row.ChangeType < 0 || row.ChangeType >= len(d.handlers) {
		return fmt.Errorf("%w: change_id=%d has out-of-range change_type %d (have %d handlers)",
			syncerr.ErrHandlerBug, row.ChangeID, row.ChangeType, len(d.handlers))
	}

	handler := d.handlers[row.ChangeType]
	hctx := HandlerContext{
		LocalID: row.LocalID,
		Remote:  d.remote,
		DB:      d.watched,
		IDMap:   d.idMap,
	}

	result, err := invoke(ctx, handler, hctx)
	if err != nil {
		return err
	}

	return d.applyResult(ctx, row.LocalID, result)
}

// invoke calls handler, converting a panic into syncerr.ErrHandlerBug
// with a captured stack trace rather than crashing the poll loop.
func invoke(ctx context.Context, handler Handler, hctx HandlerContext) (result HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", syncerr.ErrHandlerBug, r, debug.Stack())
		}
	}()
	return handler(ctx, hctx)
}

func (d *Dispatcher) applyResult(ctx context.Context, localID int64, result HandlerResult) error {
	switch result.Action {
	case None:
		return nil
	case Create:
		if err := d.idMap.Upsert(ctx, result.ItemKind, localID, result.RemoteID); err != nil {
			return fmt.Errorf("%w: %v", syncerr.ErrIdMapWriteFailed, err)
		}
		return nil
	case Delete:
		if err := d.idMap.Erase(ctx, result.ItemKind, localID); err != nil {
			return fmt.Errorf("%w: %v", syncerr.ErrIdMapWriteFailed, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: handler returned unknown action %d", syncerr.ErrHandlerBug, result.Action)
	}
}
