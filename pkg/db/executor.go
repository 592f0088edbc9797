// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"database/sql"
	"time"
)

// ExecuteInTransaction runs sql as a single batched statement inside
// BEGIN/COMMIT via conn's WithRetryableTransaction, so a lock_timeout
// error is retried with backoff before being surfaced (see RDB). If
// the batch still fails, ROLLBACK is attempted (a rollback failure is
// swallowed, per conn's own OnRollbackError hook) and the original
// error is returned. The returned duration is the wall-clock execution
// time in milliseconds, truncated to fit a 32-bit signed integer.
func ExecuteInTransaction(ctx context.Context, conn DB, sqlText string) (int32, error) {
	start := time.Now()

	err := conn.WithRetryableTransaction(ctx, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, sqlText)
		return err
	})
	if err != nil {
		return 0, err
	}

	return elapsedMillis(start), nil
}

// ExecuteRaw runs sql without a surrounding transaction, for the rare
// statement that cannot run inside one. It is not used by ordinary
// migrations, only by ad-hoc tooling.
func ExecuteRaw(ctx context.Context, conn DB, sqlText string) (int32, error) {
	start := time.Now()

	if _, err := conn.ExecContext(ctx, sqlText); err != nil {
		return 0, err
	}

	return elapsedMillis(start), nil
}

func elapsedMillis(start time.Time) int32 {
	return int32(time.Since(start).Milliseconds())
}
