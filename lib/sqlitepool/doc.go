// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the agent's SQLite connection pool.
//
// The execution journal is the only structured storage the agent
// keeps, so the pool is tuned for that shape: a single low-traffic
// writer (one row per request) plus occasional reads for the crash
// sweep and retention pruning. It wraps zombiezen.com/go/sqlite with
// pragmas chosen for an endpoint process that must stay small and
// survive its own crashes.
//
// Callers [Pool.Take] a connection, perform work, and [Pool.Put] it
// back. Connections are NOT safe for concurrent use; each goroutine
// holds its own connection for the duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: the journal writer never blocks a concurrent
//     sweep or prune read.
//   - synchronous=NORMAL: committed rows survive an agent crash. An OS
//     crash can lose the tail of the log, which is acceptable: the
//     journal is an audit trail, not the controller's source of truth.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of surfacing SQLITE_BUSY into the dispatch path.
//   - foreign_keys=OFF: the journal is a single flat table.
//   - cache_size=-2048: 2 MB page cache. The agent runs next to the
//     workload under investigation; memory headroom matters more than
//     query speed here.
//   - temp_store=MEMORY: retention pruning sorts without touching the
//     target's disk.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:   "/var/lib/rrg/journal.db",
//	    Logger: logger,
//	    OnConnect: func(conn *sqlite.Conn) error {
//	        return sqlitex.ExecuteScript(conn, schema, nil)
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// The package exposes the underlying zombiezen types directly. Callers
// write SQL and use sqlitex.Execute; there is no query layer on top.
package sqlitepool
