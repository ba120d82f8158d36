// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal persists the request lifecycle to SQLite for crash
// detection and audit.
//
// Every accepted request becomes one row in request_log: Begin inserts
// it with a NULL finish time, Finish closes it with the terminal
// status and output counters. A row that is still open when the agent
// next starts can only mean the previous process died mid-request;
// SweepUnfinished closes such rows and returns them so the agent can
// report the crash without keeping any separate state file. Rejected
// requests (unknown action, duplicate session ID) are recorded as
// already-closed rows.
//
// The journal is an audit trail, not a control structure: lifecycle
// writes absorb their own failures, logging them and moving on, so a
// broken or full database never blocks dispatch.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/sarvex/rrg/lib/clock"
	"github.com/sarvex/rrg/lib/sqlitepool"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// classRejected is stored in the class column for requests that never
// got a session. It sits outside the protocol.Classification taxonomy
// because no status is emitted for a rejection.
const classRejected = "rejected"

// The controller may reuse a session ID once its request has finished,
// so request_log is keyed by its implicit rowid and session_id is
// merely indexed. While the agent runs, at most one open row (NULL
// finished_unix_ms) exists per session_id.
const schema = `
CREATE TABLE IF NOT EXISTS request_log (
	session_id       INTEGER NOT NULL,
	action           TEXT    NOT NULL,
	received_unix_ms INTEGER NOT NULL,
	finished_unix_ms INTEGER,
	ok               INTEGER,
	class            TEXT,
	error            TEXT,
	replies          INTEGER,
	bytes            INTEGER
);
CREATE INDEX IF NOT EXISTS idx_request_log_received ON request_log(received_unix_ms);
CREATE INDEX IF NOT EXISTS idx_request_log_session ON request_log(session_id, received_unix_ms);
`

// Config holds the parameters for opening a journal.
type Config struct {
	// Path is the filesystem path of the SQLite database file. The
	// parent directory must exist.
	Path string

	// Clock provides the current time for sweep and prune decisions.
	// Lifecycle timestamps are supplied by the dispatcher.
	Clock clock.Clock

	// Logger receives absorbed write failures.
	Logger *slog.Logger
}

// Journal is the SQLite-backed request journal. It satisfies the
// dispatcher's journaling contract: Begin, Finish, and Reject never
// fail outward.
type Journal struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

var _ session.Journal = (*Journal)(nil)

// Open creates or opens the journal database and ensures its schema.
func Open(cfg Config) (*Journal, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("journal: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("journal: Logger is required")
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.Path,
		Logger: cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}

	return &Journal{pool: pool, clock: cfg.Clock, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (j *Journal) Close() error {
	return j.pool.Close()
}

// Begin records an accepted request before its handler starts. The row
// stays open until Finish closes it.
func (j *Journal) Begin(sessionID uint64, action protocol.ActionID, received time.Time) {
	conn, err := j.pool.Take(context.Background())
	if err != nil {
		j.logger.Error("journal begin: no connection",
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	defer j.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO request_log (session_id, action, received_unix_ms)
		 VALUES (?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{int64(sessionID), action.String(), received.UnixMilli()},
		})
	if err != nil {
		j.logger.Error("journal begin failed",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// Finish closes the open row for sessionID with the terminal status
// and the session's output counters.
func (j *Journal) Finish(sessionID uint64, status protocol.Status, replies, bytes uint64, finished time.Time) {
	conn, err := j.pool.Take(context.Background())
	if err != nil {
		j.logger.Error("journal finish: no connection",
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	defer j.pool.Put(conn)

	okValue := 0
	if status.OK {
		okValue = 1
	}

	err = sqlitex.Execute(conn,
		`UPDATE request_log
		 SET finished_unix_ms = ?, ok = ?, class = ?, error = ?, replies = ?, bytes = ?
		 WHERE rowid = (SELECT max(rowid) FROM request_log
		                WHERE session_id = ? AND finished_unix_ms IS NULL)`,
		&sqlitex.ExecOptions{
			Args: []any{
				finished.UnixMilli(),
				okValue,
				status.Class.String(),
				status.Error,
				int64(replies),
				int64(bytes),
				int64(sessionID),
			},
		})
	if err != nil {
		j.logger.Error("journal finish failed",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// Reject records a request that never got a session. The row is
// inserted already closed, so sweeps never touch it.
func (j *Journal) Reject(sessionID uint64, action protocol.ActionID, reason string, at time.Time) {
	conn, err := j.pool.Take(context.Background())
	if err != nil {
		j.logger.Error("journal reject: no connection",
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	defer j.pool.Put(conn)

	atMS := at.UnixMilli()
	err = sqlitex.Execute(conn,
		`INSERT INTO request_log
		 (session_id, action, received_unix_ms, finished_unix_ms, ok, class, error, replies, bytes)
		 VALUES (?, ?, ?, ?, 0, ?, ?, 0, 0)`,
		&sqlitex.ExecOptions{
			Args: []any{int64(sessionID), action.String(), atMS, atMS, classRejected, reason},
		})
	if err != nil {
		j.logger.Error("journal reject failed",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// Unfinished describes a request left open by a previous process.
type Unfinished struct {
	SessionID      uint64
	Action         string
	ReceivedUnixMS int64
}

// SweepUnfinished closes every row left open by a previous run and
// returns them, oldest first. An open row means the process died
// between Begin and Finish; swept rows are closed as internal errors
// carrying note as the error text. A second sweep finds nothing.
func (j *Journal) SweepUnfinished(ctx context.Context, note string) (swept []Unfinished, err error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal: sweep: %w", err)
	}
	defer j.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("journal: sweep: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`SELECT session_id, action, received_unix_ms FROM request_log
		 WHERE finished_unix_ms IS NULL ORDER BY received_unix_ms`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				swept = append(swept, Unfinished{
					SessionID:      uint64(stmt.ColumnInt64(0)),
					Action:         stmt.ColumnText(1),
					ReceivedUnixMS: stmt.ColumnInt64(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("journal: sweep: %w", err)
	}
	if len(swept) == 0 {
		return nil, nil
	}

	err = sqlitex.Execute(conn,
		`UPDATE request_log SET finished_unix_ms = ?, ok = 0, class = ?, error = ?
		 WHERE finished_unix_ms IS NULL`,
		&sqlitex.ExecOptions{
			Args: []any{
				j.clock.Now().UnixMilli(),
				protocol.ClassInternalError.String(),
				note,
			},
		})
	if err != nil {
		return nil, fmt.Errorf("journal: sweep: close rows: %w", err)
	}

	return swept, nil
}

// Prune deletes closed rows received before the retention window and
// returns how many went. Open rows are never pruned.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (pruned int64, err error) {
	conn, err := j.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	defer j.pool.Put(conn)

	cutoff := j.clock.Now().Add(-retention).UnixMilli()

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("journal: prune: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn,
		`SELECT COUNT(*) FROM request_log
		 WHERE received_unix_ms < ? AND finished_unix_ms IS NOT NULL`,
		&sqlitex.ExecOptions{
			Args: []any{cutoff},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				pruned = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("journal: prune: %w", err)
	}
	if pruned == 0 {
		return 0, nil
	}

	err = sqlitex.Execute(conn,
		`DELETE FROM request_log
		 WHERE received_unix_ms < ? AND finished_unix_ms IS NOT NULL`,
		&sqlitex.ExecOptions{Args: []any{cutoff}})
	if err != nil {
		return 0, fmt.Errorf("journal: prune: delete: %w", err)
	}

	return pruned, nil
}
