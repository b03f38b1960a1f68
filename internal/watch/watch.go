// Package watch instruments a watched database: it installs a private
// append-only change log and one trigger per WatchedPoint, so that
// arbitrary mutations on the watched tables become ChangeLogRows the
// poll loop can drain.
//
// Trigger and table names in the DDL built here always come from the
// fixed, code-defined WatchedPoint list passed in by a binding, never
// from data the daemon reads at runtime, so building statements with
// fmt.Sprintf is safe — database/sql placeholders cannot parameterize
// identifiers.
package watch

import (
	"database/sql"
	"fmt"
	"strings"
)

// ChangeLogTable is the private table triggers append into.
const ChangeLogTable = "sync2gm_Changes"

// Event is the trigger timing a WatchedPoint fires on.
type Event int

const (
	AfterInsert Event = iota
	AfterUpdate
	AfterDelete
)

// When describes a trigger's firing condition. OfColumns is only
// meaningful for AfterUpdate; when non-empty it restricts the trigger
// to UPDATE statements touching those columns.
type When struct {
	Event     Event
	OfColumns []string
}

func (w When) clause() (string, error) {
	switch w.Event {
	case AfterInsert:
		return "AFTER INSERT", nil
	case AfterDelete:
		return "AFTER DELETE", nil
	case AfterUpdate:
		if len(w.OfColumns) == 0 {
			return "AFTER UPDATE", nil
		}
		return "AFTER UPDATE OF " + strings.Join(w.OfColumns, ", "), nil
	default:
		return "", fmt.Errorf("watch: unknown event %d", w.Event)
	}
}

// WatchedPoint describes one instrumentation: a trigger named Name,
// installed on Table, firing When, appending IDExpression (evaluated
// in the trigger's row context — "new.id", "old.id", or a foreign-key
// column) as the change log row's local_id.
type WatchedPoint struct {
	Name         string
	Table        string
	When         When
	IDExpression string
}

// Attach installs the change log table and one trigger per point. It
// is all-or-nothing: on any failure, partial state is removed before
// returning the error.
func Attach(db *sql.DB, points []WatchedPoint) error {
	if err := createChangeLogTable(db, len(points)); err != nil {
		_ = Detach(db, points)
		return fmt.Errorf("watch: attach: %w", err)
	}

	for i, p := range points {
		if err := createTrigger(db, i, p); err != nil {
			_ = Detach(db, points)
			return fmt.Errorf("watch: attach trigger %q: %w", p.Name, err)
		}
	}

	return nil
}

// Detach drops every trigger named in points and the change log
// table. It tolerates any of them already being absent.
func Detach(db *sql.DB, points []WatchedPoint) error {
	var firstErr error

	for _, p := range points {
		stmt := fmt.Sprintf("DROP TRIGGER IF EXISTS %s", quoteIdent(p.Name))
		if _, err := db.Exec(stmt); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("watch: drop trigger %q: %w", p.Name, err)
		}
	}

	stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(ChangeLogTable))
	if _, err := db.Exec(stmt); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("watch: drop change log table: %w", err)
	}

	return firstErr
}

// Reattach detaches then re-attaches, used on schema upgrades when a
// binding's WatchedPoint list changes.
func Reattach(db *sql.DB, points []WatchedPoint) error {
	if err := Detach(db, points); err != nil {
		return err
	}
	return Attach(db, points)
}

func createChangeLogTable(db *sql.DB, numPoints int) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE %s (
			change_id   INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			change_type INTEGER NOT NULL CHECK (change_type BETWEEN 0 AND %d),
			local_id    INTEGER NOT NULL
		)
	`, quoteIdent(ChangeLogTable), numPoints-1)

	_, err := db.Exec(stmt)
	return err
}

func createTrigger(db *sql.DB, changeType int, p WatchedPoint) error {
	clause, err := p.When.clause()
	if err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
		CREATE TRIGGER %s %s ON %s
		BEGIN
			INSERT INTO %s (change_type, local_id) VALUES (%d, %s);
		END
	`, quoteIdent(p.Name), clause, quoteIdent(p.Table), quoteIdent(ChangeLogTable), changeType, p.IDExpression)

	_, err = db.Exec(stmt)
	return err
}

// quoteIdent wraps a SQLite identifier in double quotes so that table
// and trigger names chosen by a binding never collide with SQL
// keywords.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
