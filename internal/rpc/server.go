// Package rpc is the cache's RPC surface: a line-delimited JSON
// protocol over a Unix socket, dispatched concurrently. The handlers
// implement the dispatcher's recovery policy: on a cache miss the
// request is satisfied by fetching upstream, populating, and retrying
// once; on a storage failure the request bypasses the cache and is
// served straight from the upstream.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/smartsuite-tools/ssc/internal/freshness"
	"github.com/smartsuite-tools/ssc/internal/query"
	"github.com/smartsuite-tools/ssc/internal/storage"
	"github.com/smartsuite-tools/ssc/internal/telemetry"
	"github.com/smartsuite-tools/ssc/internal/toon"
	"github.com/smartsuite-tools/ssc/internal/types"
	"github.com/smartsuite-tools/ssc/internal/upstream"
)

// Options configures the optional server collaborators.
type Options struct {
	// Upstream enables miss-recovery and bypass. Nil means cache-only:
	// misses surface as errors for the client to handle.
	Upstream upstream.Client
	// Location is the formatter's timezone; nil means UTC.
	Location *time.Location
	Logger   zerolog.Logger
	Metrics  *telemetry.CacheMetrics
	// OnShutdown runs after a shutdown request is acknowledged.
	OnShutdown func()
}

// Server handles cache RPCs over a Unix socket.
type Server struct {
	store    *storage.Store
	fresh    *freshness.Controller
	format   *toon.Formatter
	up       upstream.Client
	metrics  *telemetry.CacheMetrics
	log      zerolog.Logger
	sockPath string

	listener   net.Listener
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex // protects shutdown state
	shutdown   bool
	onShutdown func()

	handlers map[string]func(context.Context, *Request) *Response
}

// NewServer creates a cache RPC server.
func NewServer(store *storage.Store, sockPath string, opts Options) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		store:      store,
		fresh:      freshness.New(store),
		format:     toon.New(opts.Location),
		up:         opts.Upstream,
		metrics:    opts.Metrics,
		log:        opts.Logger.With().Str("component", "rpc").Logger(),
		sockPath:   sockPath,
		ctx:        ctx,
		cancel:     cancel,
		onShutdown: opts.OnShutdown,
	}
	s.initHandlers()
	return s
}

func (s *Server) initHandlers() {
	s.handlers = map[string]func(context.Context, *Request) *Response{
		OpPing:              s.handlePing,
		OpStatus:            s.handleStatus,
		OpPopulateSolutions: s.handlePopulateSolutions,
		OpPopulateTables:    s.handlePopulateTables,
		OpPopulateRecords:   s.handlePopulateRecords,
		OpPopulateMembers:   s.handlePopulateMembers,
		OpPopulateTeams:     s.handlePopulateTeams,
		OpQuery:             s.handleQuery,
		OpCount:             s.handleCount,
		OpDescribeTable:     s.handleDescribeTable,
		OpInvalidate:        s.handleInvalidate,
		OpRefresh:           s.handleRefresh,
		OpGetTTL:            s.handleGetTTL,
		OpSetTTL:            s.handleSetTTL,
		OpRecordHit:         s.handleRecordHit,
		OpRecordMiss:        s.handleRecordMiss,
		OpWarmSelection:     s.handleWarmSelection,
		OpShutdown:          s.handleShutdown,
	}
}

// Start listens on the Unix socket and begins accepting connections.
func (s *Server) Start() error {
	if err := os.Remove(s.sockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.sockPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", s.sockPath, err)
	}
	s.listener = listener

	if err := os.Chmod(s.sockPath, 0o600); err != nil {
		s.listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.wg.Add(1)
	go s.acceptLoop()
	s.log.Info().Str("socket", s.sockPath).Msg("cache server listening")
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()

	if err := os.Remove(s.sockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove socket: %w", err)
	}
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Error().Err(err).Msg("accept failed")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.sendResponse(writer, NewErrorResponse(fmt.Errorf("invalid request JSON: %w", err)))
			continue
		}
		s.sendResponse(writer, s.handleRequest(&req))
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn().Err(err).Msg("connection read failed")
	}
}

func (s *Server) sendResponse(writer *bufio.Writer, resp *Response) {
	b, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response failed")
		return
	}
	if _, err := writer.Write(append(b, '\n')); err != nil {
		s.log.Warn().Err(err).Msg("write response failed")
		return
	}
	if err := writer.Flush(); err != nil {
		s.log.Warn().Err(err).Msg("flush response failed")
	}
}

func (s *Server) handleRequest(req *Request) *Response {
	handler, ok := s.handlers[req.Operation]
	if !ok {
		return NewErrorResponse(fmt.Errorf("unknown operation: %s", req.Operation))
	}
	return handler(s.ctx, req)
}

func decodeArgs[T any](req *Request) (*T, error) {
	var args T
	if len(req.Args) == 0 {
		return &args, nil
	}
	if err := json.Unmarshal(req.Args, &args); err != nil {
		return nil, fmt.Errorf("invalid %s args: %w", req.Operation, err)
	}
	return &args, nil
}

func ttlOverride(seconds *int64) *time.Duration {
	if seconds == nil {
		return nil
	}
	d := time.Duration(*seconds) * time.Second
	return &d
}

func (s *Server) handlePing(_ context.Context, _ *Request) *Response {
	return NewSuccessResponse(map[string]string{"message": "pong"})
}

func (s *Server) handleStatus(ctx context.Context, _ *Request) *Response {
	report, err := s.store.Status(ctx)
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(report)
}

func (s *Server) handlePopulateSolutions(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[PopulateSolutionsArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	n, err := s.store.StoreSolutions(ctx, args.Solutions, ttlOverride(args.TTLSeconds))
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(PopulateResult{Count: n})
}

func (s *Server) handlePopulateTables(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[PopulateTablesArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	n, err := s.store.StoreTableList(ctx, args.SolutionID, args.Tables, ttlOverride(args.TTLSeconds))
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(PopulateResult{Count: n})
}

func (s *Server) handlePopulateRecords(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[PopulateRecordsArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	if args.TableID == "" {
		return NewErrorResponse(fmt.Errorf("populate_records requires table_id"))
	}
	n, err := s.store.StoreRecords(ctx, args.TableID, args.Structure, args.Records, ttlOverride(args.TTLSeconds))
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(PopulateResult{Count: n})
}

func (s *Server) handlePopulateMembers(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[PopulateMembersArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	n, err := s.store.StoreMembers(ctx, args.Members, ttlOverride(args.TTLSeconds))
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(PopulateResult{Count: n})
}

func (s *Server) handlePopulateTeams(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[PopulateTeamsArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	n, err := s.store.StoreTeams(ctx, args.Teams, ttlOverride(args.TTLSeconds))
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(PopulateResult{Count: n})
}

// buildQuery translates QueryArgs into a query builder.
func (s *Server) buildQuery(args *QueryArgs) *query.Builder {
	q := query.New(s.store, args.TableID)
	for slug, cond := range args.Where {
		q = q.Where(slug, cond)
	}
	if args.OrderBy != "" {
		q = q.OrderBy(args.OrderBy, args.Direction)
	}
	if args.Limit > 0 {
		q = q.Limit(args.Limit)
	}
	if args.Offset > 0 {
		q = q.Offset(args.Offset)
	}
	return q
}

func (s *Server) handleQuery(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[QueryArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	if args.TableID == "" {
		return NewErrorResponse(fmt.Errorf("query requires table_id"))
	}
	s.metrics.Query(ctx, args.TableID)

	res, err := s.buildQuery(args).Execute(ctx)
	switch {
	case err == nil:
		s.metrics.Hit(ctx, args.TableID)
		s.store.RecordHit(ctx, args.TableID)
		return s.renderQuery(args, res, false)

	case errors.Is(err, storage.ErrCacheMiss), errors.Is(err, storage.ErrCacheExpired):
		s.metrics.Miss(ctx, args.TableID)
		s.store.RecordMiss(ctx, args.TableID)
		if s.up == nil {
			return NewErrorResponse(err)
		}
		if err := s.repopulate(ctx, args.TableID); err != nil {
			return NewErrorResponse(err)
		}
		res, err := s.buildQuery(args).Execute(ctx)
		if err != nil {
			return NewErrorResponse(err)
		}
		return s.renderQuery(args, res, false)

	case errors.Is(err, query.ErrInvalidPredicate):
		return NewErrorResponse(err)

	default:
		// storage failure: serve straight from the upstream when we can
		s.log.Error().Err(err).Str("table_id", args.TableID).Msg("cache query failed, bypassing")
		if s.up == nil {
			return NewErrorResponse(err)
		}
		return s.bypassQuery(ctx, args)
	}
}

// repopulate fetches a table's structure and records and feeds them to
// the cache.
func (s *Server) repopulate(ctx context.Context, tableID string) error {
	table, err := s.up.Table(ctx, tableID)
	if err != nil {
		return fmt.Errorf("fetch table %s: %w", tableID, err)
	}
	records, err := s.up.Records(ctx, tableID)
	if err != nil {
		return fmt.Errorf("fetch records for %s: %w", tableID, err)
	}
	if _, err := s.store.StoreRecords(ctx, tableID, table.Structure, records, nil); err != nil {
		return fmt.Errorf("populate %s: %w", tableID, err)
	}
	s.log.Info().Str("table_id", tableID).Int("records", len(records)).Msg("cache repopulated on miss")
	return nil
}

// bypassQuery serves the records unfiltered from the upstream after a
// storage failure. Predicates cannot be applied without the store, so
// the full record set is returned and flagged.
func (s *Server) bypassQuery(ctx context.Context, args *QueryArgs) *Response {
	records, err := s.up.Records(ctx, args.TableID)
	if err != nil {
		return NewErrorResponse(fmt.Errorf("cache bypass failed: %w", err))
	}
	for _, rec := range records {
		toon.CollapseRichDocs(rec)
	}
	body, err := json.Marshal(map[string]any{
		"count": len(records),
		"items": records,
	})
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(QueryResult{Format: "json", Body: body, Bypass: true})
}

func (s *Server) renderQuery(args *QueryArgs, res *query.Result, bypass bool) *Response {
	if args.Format == "json" {
		body, err := s.format.JSON(res, args.Fields)
		if err != nil {
			return NewErrorResponse(err)
		}
		return NewSuccessResponse(QueryResult{Format: "json", Body: body, Bypass: bypass})
	}
	return NewSuccessResponse(QueryResult{Format: "toon", Text: s.format.Text(res, args.Fields), Bypass: bypass})
}

func (s *Server) handleCount(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[CountArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	q := query.New(s.store, args.TableID)
	for slug, cond := range args.Where {
		q = q.Where(slug, cond)
	}
	n, err := q.Count(ctx)
	if (errors.Is(err, storage.ErrCacheMiss) || errors.Is(err, storage.ErrCacheExpired)) && s.up != nil {
		if err := s.repopulate(ctx, args.TableID); err != nil {
			return NewErrorResponse(err)
		}
		n, err = q.Count(ctx)
	}
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(CountResult{Count: n})
}

func (s *Server) handleDescribeTable(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[DescribeTableArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	structure, err := s.store.StructureFor(ctx, args.TableID)
	if errors.Is(err, storage.ErrCacheMiss) && s.up != nil {
		table, uerr := s.up.Table(ctx, args.TableID)
		if uerr != nil {
			return NewErrorResponse(uerr)
		}
		structure, err = table.Structure, nil
	}
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(toon.FilterStructure(structure))
}

func (s *Server) handleInvalidate(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[InvalidateArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	if err := s.fresh.Invalidate(ctx, types.Scope(args.Scope), args.ID); err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(nil)
}

func (s *Server) handleRefresh(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[InvalidateArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	report, err := s.fresh.Refresh(ctx, types.Scope(args.Scope), args.ID)
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(report)
}

func (s *Server) handleGetTTL(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[TTLArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	ttl, err := s.fresh.GetTTL(ctx, args.TableID)
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(TTLResult{TableID: args.TableID, TTLSeconds: int64(ttl / time.Second)})
}

func (s *Server) handleSetTTL(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[TTLArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	ttl := time.Duration(args.TTLSeconds) * time.Second
	if err := s.fresh.SetTTL(ctx, args.TableID, ttl, args.MutationLevel, args.Notes); err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(nil)
}

func (s *Server) handleRecordHit(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[CounterArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	s.metrics.Hit(ctx, args.TableID)
	s.store.RecordHit(ctx, args.TableID)
	return NewSuccessResponse(nil)
}

func (s *Server) handleRecordMiss(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[CounterArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	s.metrics.Miss(ctx, args.TableID)
	s.store.RecordMiss(ctx, args.TableID)
	return NewSuccessResponse(nil)
}

func (s *Server) handleWarmSelection(ctx context.Context, req *Request) *Response {
	args, err := decodeArgs[WarmArgs](req)
	if err != nil {
		return NewErrorResponse(err)
	}
	ids, err := s.fresh.TablesToWarm(ctx, args.Selection, args.N)
	if err != nil {
		return NewErrorResponse(err)
	}
	return NewSuccessResponse(WarmResult{TableIDs: ids})
}

func (s *Server) handleShutdown(_ context.Context, _ *Request) *Response {
	s.log.Info().Msg("shutdown requested")
	go func() {
		_ = s.Stop()
		if s.onShutdown != nil {
			s.onShutdown()
		}
	}()
	return NewSuccessResponse(nil)
}
