// SPDX-License-Identifier: Apache-2.0

package db

import (
	"context"
	"fmt"
	"hash/crc32"

	"github.com/waypoint-sql/waypoint/pkg/wperr"
)

// AdvisoryLockID derives a stable int64 lock key from a table name, so
// that the same history table always maps to the same advisory lock
// regardless of tool version. The CRC32 of the table name's UTF-8
// bytes is widened to a signed 64-bit value.
func AdvisoryLockID(tableName string) int64 {
	return int64(crc32.ChecksumIEEE([]byte(tableName)))
}

// AcquireAdvisoryLock takes a session-scoped PostgreSQL advisory lock
// keyed on tableName. The lock blocks until acquired; it is released
// explicitly with ReleaseAdvisoryLock, not automatically at the end of
// a transaction.
func AcquireAdvisoryLock(ctx context.Context, conn DB, tableName string) error {
	id := AdvisoryLockID(tableName)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SELECT pg_advisory_lock(%d)", id)); err != nil {
		return wperr.Wrap(wperr.LockFailed, err, "failed to acquire advisory lock: %s", err)
	}
	return nil
}

// ReleaseAdvisoryLock releases the lock acquired by
// AcquireAdvisoryLock for the same tableName.
func ReleaseAdvisoryLock(ctx context.Context, conn DB, tableName string) error {
	id := AdvisoryLockID(tableName)
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SELECT pg_advisory_unlock(%d)", id)); err != nil {
		return wperr.Wrap(wperr.LockFailed, err, "failed to release advisory lock: %s", err)
	}
	return nil
}
