package watch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sync2gm/sync2gmd/internal/syncerr"
)

// ChangeLogRow is one entry appended by a trigger into the change
// log. Rows are immutable once written and ordered by ChangeID.
type ChangeLogRow struct {
	ChangeID   int64
	ChangeType int
	LocalID    int64
}

// SelectBatch returns up to limit rows with change_id > afterID, in
// ascending change_id order. A "database is locked" error is wrapped
// in syncerr.ErrHostStoreLocked so the caller can retry; any other
// error is wrapped in syncerr.ErrHostStoreError.
func SelectBatch(ctx context.Context, db *sql.DB, afterID int64, limit int) ([]ChangeLogRow, error) {
	query := fmt.Sprintf(
		"SELECT change_id, change_type, local_id FROM %s WHERE change_id > ? ORDER BY change_id ASC LIMIT ?",
		quoteIdent(ChangeLogTable),
	)

	rows, err := db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		if isLockedError(err) {
			return nil, fmt.Errorf("%w: %v", syncerr.ErrHostStoreLocked, err)
		}
		return nil, fmt.Errorf("%w: select changes: %v", syncerr.ErrHostStoreError, err)
	}
	defer rows.Close()

	var batch []ChangeLogRow
	for rows.Next() {
		var r ChangeLogRow
		if err := rows.Scan(&r.ChangeID, &r.ChangeType, &r.LocalID); err != nil {
			return nil, fmt.Errorf("%w: scan change row: %v", syncerr.ErrHostStoreError, err)
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		if isLockedError(err) {
			return nil, fmt.Errorf("%w: %v", syncerr.ErrHostStoreLocked, err)
		}
		return nil, fmt.Errorf("%w: iterate changes: %v", syncerr.ErrHostStoreError, err)
	}

	return batch, nil
}

func isLockedError(err error) bool {
	return strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY") ||
		strings.Contains(err.Error(), "database table is locked")
}
