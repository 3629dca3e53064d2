// Package ssc provides a minimal public API for embedding the SmartSuite
// cache in other Go programs.
//
// Most integrations should talk to a running `ssc serve` daemon through
// the RPC client. This package exports only the essential types and
// constructors needed to use the storage layer programmatically, for
// tools that want direct access to the cache file.
package ssc

import (
	"context"
	"time"

	"github.com/smartsuite-tools/ssc/internal/rpc"
	"github.com/smartsuite-tools/ssc/internal/storage"
	"github.com/smartsuite-tools/ssc/internal/types"
)

// Core types for working with cached SmartSuite data
type (
	Solution = types.Solution
	Table    = types.Table
	Field    = types.Field
	Record   = types.Record
	Member   = types.Member
	Team     = types.Team
	Scope    = types.Scope
)

// Invalidation scopes
const (
	ScopeSolutions = types.ScopeSolutions
	ScopeTables    = types.ScopeTables
	ScopeRecords   = types.ScopeRecords
	ScopeMembers   = types.ScopeMembers
	ScopeTeams     = types.ScopeTeams
)

// Store is the single-file cache store.
type Store = storage.Store

// OpenStore opens (creating if needed) the cache store at path.
// ":memory:" opens an ephemeral store for tests.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	return storage.Open(ctx, path)
}

// Client talks to a running cache daemon over its Unix socket.
type Client = rpc.Client

// Connect dials a running daemon's socket.
func Connect(socketPath string, timeout time.Duration) (*Client, error) {
	return rpc.Connect(socketPath, timeout)
}
