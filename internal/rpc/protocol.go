package rpc

import (
	"encoding/json"

	"github.com/smartsuite-tools/ssc/internal/types"
)

// Operation constants for all cache RPCs
const (
	OpPing   = "ping"
	OpStatus = "status"

	OpPopulateSolutions = "populate_solutions"
	OpPopulateTables    = "populate_tables"
	OpPopulateRecords   = "populate_records"
	OpPopulateMembers   = "populate_members"
	OpPopulateTeams     = "populate_teams"

	OpQuery         = "query"
	OpCount         = "count"
	OpDescribeTable = "describe_table"

	OpInvalidate = "invalidate"
	OpRefresh    = "refresh"
	OpGetTTL     = "get_ttl"
	OpSetTTL     = "set_ttl"

	OpRecordHit     = "record_hit"
	OpRecordMiss    = "record_miss"
	OpWarmSelection = "warm_selection"

	OpShutdown = "shutdown"
)

// Request is one RPC from a client to the cache server.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Response is the server's reply.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewSuccessResponse marshals data into a success response.
func NewSuccessResponse(data any) *Response {
	if data == nil {
		return &Response{Success: true}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return NewErrorResponse(err)
	}
	return &Response{Success: true, Data: b}
}

// NewErrorResponse wraps an error into a failure response.
func NewErrorResponse(err error) *Response {
	return &Response{Success: false, Error: err.Error()}
}

// PopulateSolutionsArgs feeds the solutions cache.
type PopulateSolutionsArgs struct {
	Solutions  []types.Solution `json:"solutions"`
	TTLSeconds *int64           `json:"ttl_seconds,omitempty"`
}

// PopulateTablesArgs feeds one solution's table list ("" for the
// global list).
type PopulateTablesArgs struct {
	SolutionID string        `json:"solution_id,omitempty"`
	Tables     []types.Table `json:"tables"`
	TTLSeconds *int64        `json:"ttl_seconds,omitempty"`
}

// PopulateRecordsArgs feeds one table's records cache.
type PopulateRecordsArgs struct {
	TableID    string         `json:"table_id"`
	Structure  []types.Field  `json:"structure"`
	Records    []types.Record `json:"records"`
	TTLSeconds *int64         `json:"ttl_seconds,omitempty"`
}

// PopulateMembersArgs feeds the members cache.
type PopulateMembersArgs struct {
	Members    []types.Member `json:"members"`
	TTLSeconds *int64         `json:"ttl_seconds,omitempty"`
}

// PopulateTeamsArgs feeds the teams cache.
type PopulateTeamsArgs struct {
	Teams      []types.Team `json:"teams"`
	TTLSeconds *int64       `json:"ttl_seconds,omitempty"`
}

// PopulateResult reports rows written.
type PopulateResult struct {
	Count int `json:"count"`
}

// QueryArgs runs a predicate query against one table's cache. Where
// maps field slugs to a bare value (equality) or a one-operator map.
type QueryArgs struct {
	TableID   string         `json:"table_id"`
	Where     map[string]any `json:"where,omitempty"`
	OrderBy   string         `json:"order_by,omitempty"`
	Direction string         `json:"direction,omitempty"`
	Limit     int            `json:"limit,omitempty"`
	Offset    int            `json:"offset,omitempty"`
	Fields    []string       `json:"fields,omitempty"`
	// Format selects the rendering: "toon" (default) or "json".
	Format string `json:"format,omitempty"`
}

// QueryResult carries either the rendered text or the JSON document,
// depending on the requested format.
type QueryResult struct {
	Format string          `json:"format"`
	Text   string          `json:"text,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	// Bypass is set when a storage failure forced the dispatcher to
	// serve the request straight from the upstream.
	Bypass bool `json:"bypass,omitempty"`
}

// CountArgs counts matching rows.
type CountArgs struct {
	TableID string         `json:"table_id"`
	Where   map[string]any `json:"where,omitempty"`
}

// CountResult is a count reply.
type CountResult struct {
	Count int `json:"count"`
}

// DescribeTableArgs asks for a table's filtered field structure.
type DescribeTableArgs struct {
	TableID string `json:"table_id"`
}

// InvalidateArgs names the scope to invalidate. ID is the table id for
// records, the solution id for tables, and ignored otherwise.
type InvalidateArgs struct {
	Scope string `json:"scope"`
	ID    string `json:"id,omitempty"`
}

// TTLArgs reads or writes one table's TTL configuration.
type TTLArgs struct {
	TableID       string `json:"table_id"`
	TTLSeconds    int64  `json:"ttl_seconds,omitempty"`
	MutationLevel string `json:"mutation_level,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// TTLResult is a get_ttl reply.
type TTLResult struct {
	TableID    string `json:"table_id"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// CounterArgs names the table for record_hit / record_miss.
type CounterArgs struct {
	TableID string `json:"table_id"`
}

// WarmArgs resolves a warm-pick selection: an explicit list, a single
// id, or "auto".
type WarmArgs struct {
	Selection any `json:"selection,omitempty"`
	N         int `json:"n,omitempty"`
}

// WarmResult lists the tables to pre-warm.
type WarmResult struct {
	TableIDs []string `json:"table_ids"`
}
