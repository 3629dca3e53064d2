package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartsuite-tools/ssc/internal/rpc"
	"github.com/smartsuite-tools/ssc/internal/storage"
)

// connect dials the running server.
func connect() (*rpc.Client, error) {
	return rpc.Connect(cfg.Socket, 5*time.Second)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the cache server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.Ping(); err != nil {
			return err
		}
		fmt.Println("pong")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache contents, validity, and expiries",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		var report storage.StatusReport
		if err := c.CallInto(rpc.OpStatus, nil, &report); err != nil {
			return err
		}
		return printJSON(report)
	},
}

var (
	queryWhere   string
	queryOrderBy string
	queryDesc    bool
	queryLimit   int
	queryOffset  int
	queryFields  []string
	queryJSON    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <table-id>",
	Short: "Query a table's cached records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		qargs := rpc.QueryArgs{
			TableID: args[0],
			OrderBy: queryOrderBy,
			Limit:   queryLimit,
			Offset:  queryOffset,
			Fields:  queryFields,
		}
		if queryDesc {
			qargs.Direction = "desc"
		}
		if queryWhere != "" {
			if err := json.Unmarshal([]byte(queryWhere), &qargs.Where); err != nil {
				return fmt.Errorf("--where must be a JSON object: %w", err)
			}
		}
		if queryJSON {
			qargs.Format = "json"
		}

		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()

		var res rpc.QueryResult
		if err := c.CallInto(rpc.OpQuery, qargs, &res); err != nil {
			return err
		}
		if res.Format == "json" {
			fmt.Println(string(res.Body))
		} else {
			fmt.Print(res.Text)
		}
		if res.Bypass {
			fmt.Fprintln(os.Stderr, "warning: served from upstream, cache bypassed")
		}
		return nil
	},
}

var ttlCmd = &cobra.Command{
	Use:   "ttl",
	Short: "Read or set a table's cache TTL",
}

var ttlGetCmd = &cobra.Command{
	Use:   "get <table-id>",
	Short: "Show the effective TTL in seconds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		var res rpc.TTLResult
		if err := c.CallInto(rpc.OpGetTTL, rpc.TTLArgs{TableID: args[0]}, &res); err != nil {
			return err
		}
		fmt.Println(res.TTLSeconds)
		return nil
	},
}

var (
	ttlLevel string
	ttlNotes string
)

var ttlSetCmd = &cobra.Command{
	Use:   "set <table-id> <seconds>",
	Short: "Set a table's TTL (seconds may be 0 with --level naming a preset)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		seconds, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("seconds must be an integer: %w", err)
		}
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.CallInto(rpc.OpSetTTL, rpc.TTLArgs{
			TableID:       args[0],
			TTLSeconds:    seconds,
			MutationLevel: ttlLevel,
			Notes:         ttlNotes,
		}, nil)
	},
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate <scope> [id]",
	Short: "Invalidate a cache scope (solutions, tables, records, members, teams)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		iargs := rpc.InvalidateArgs{Scope: args[0]}
		if len(args) > 1 {
			iargs.ID = args[1]
		}
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.CallInto(rpc.OpInvalidate, iargs, nil)
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh <scope> [id]",
	Short: "Invalidate a scope and print the resulting cache status",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		iargs := rpc.InvalidateArgs{Scope: args[0]}
		if len(args) > 1 {
			iargs.ID = args[1]
		}
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		var report storage.StatusReport
		if err := c.CallInto(rpc.OpRefresh, iargs, &report); err != nil {
			return err
		}
		return printJSON(report)
	},
}

var warmN int

var warmCmd = &cobra.Command{
	Use:   "warm [selection]",
	Short: "Show which tables the server would pre-warm (\"auto\" picks by hit count)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wargs := rpc.WarmArgs{N: warmN}
		if len(args) > 0 {
			wargs.Selection = args[0]
		}
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		var res rpc.WarmResult
		if err := c.CallInto(rpc.OpWarmSelection, wargs, &res); err != nil {
			return err
		}
		for _, id := range res.TableIDs {
			fmt.Println(id)
		}
		return nil
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the running cache server",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect()
		if err != nil {
			return err
		}
		defer c.Close()
		return c.CallInto(rpc.OpShutdown, nil, nil)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryWhere, "where", "", `predicates as JSON, e.g. '{"status":"active","priority":{"gte":2}}'`)
	queryCmd.Flags().StringVar(&queryOrderBy, "order-by", "", "field slug to order by")
	queryCmd.Flags().BoolVar(&queryDesc, "desc", false, "order descending")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "max rows")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 0, "rows to skip")
	queryCmd.Flags().StringSliceVar(&queryFields, "fields", nil, "field slugs to include")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "emit JSON instead of the tabular text format")

	ttlSetCmd.Flags().StringVar(&ttlLevel, "level", "", "mutation-level label (static, low_mutation, default, high_mutation, very_high_mutation)")
	ttlSetCmd.Flags().StringVar(&ttlNotes, "notes", "", "free-form note stored with the TTL")
	ttlCmd.AddCommand(ttlGetCmd)
	ttlCmd.AddCommand(ttlSetCmd)

	warmCmd.Flags().IntVar(&warmN, "n", 0, "how many tables an auto selection returns")
}
