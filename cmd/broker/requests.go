package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/broker/pkg/cli"
	"mercator-hq/broker/pkg/requestlog"
)

var requestsFlags struct {
	apiKeyID  string
	service   string
	status    string
	timeRange string
	limit     int
	offset    int
	output    string
}

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Query the request log",
	Long: `Query recorded requests in the configured request log.

Examples:
  # Show one request
  broker requests show 0b7c6a8e-4a57-4d8e-9d43-1f0e3c1a2b3c

  # List failed billing requests from one day
  broker requests list --service billing --status error \
    --time-range "2026-01-01T00:00:00Z/2026-01-02T00:00:00Z"

  # Export as CSV
  broker requests list --api-key key-1 --output csv > requests.csv`,
}

var requestsShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show one request log entry",
	Args:  cobra.ExactArgs(1),
	RunE:  showRequest,
}

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List request log entries, newest first",
	RunE:  listRequests,
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	requestsCmd.AddCommand(requestsShowCmd, requestsListCmd)

	requestsCmd.PersistentFlags().StringVarP(&requestsFlags.output, "output", "o", "text", "output format: text, json, csv")

	requestsListCmd.Flags().StringVar(&requestsFlags.apiKeyID, "api-key", "", "filter by API key id")
	requestsListCmd.Flags().StringVar(&requestsFlags.service, "service", "", "filter by service")
	requestsListCmd.Flags().StringVar(&requestsFlags.status, "status", "", "filter by status: pending, success, error, timeout")
	requestsListCmd.Flags().StringVar(&requestsFlags.timeRange, "time-range", "", "creation time range (RFC3339 start/end)")
	requestsListCmd.Flags().IntVar(&requestsFlags.limit, "limit", requestlog.DefaultQueryLimit, "maximum number of entries")
	requestsListCmd.Flags().IntVar(&requestsFlags.offset, "offset", 0, "entries to skip")
}

// entryTable renders request log entries as rows.
type entryTable []*requestlog.Entry

func (t entryTable) Header() []string {
	return []string{"REQUEST ID", "SERVICE", "ENDPOINT", "STATUS", "ASYNC", "API KEY", "CREATED", "PROCESSING MS", "ERROR"}
}

func (t entryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		rows = append(rows, []string{
			e.RequestID,
			e.Service,
			e.Endpoint,
			string(e.Status),
			strconv.FormatBool(e.Async),
			e.APIKeyID,
			e.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.ProcessingTime.Milliseconds(), 10),
			e.Error,
		})
	}
	return rows
}

// openRequestStore opens the configured request log for a query command.
func openRequestStore() (requestlog.Storage, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openRequestLog(cfg.RequestLog)
}

func showRequest(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(requestsFlags.output)
	if err != nil {
		return err
	}
	store, err := openRequestStore()
	if err != nil {
		return err
	}
	defer store.Close()

	entry, err := store.Get(commandContext(cmd), args[0])
	if errors.Is(err, requestlog.ErrNotFound) {
		return cli.NewCommandError("requests show", fmt.Errorf("request %s not found", args[0]))
	}
	if err != nil {
		return cli.NewCommandError("requests show", err)
	}

	if format == cli.FormatText {
		return printEntry(cmd, entry)
	}
	if format == cli.FormatCSV {
		return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entryTable{entry})
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entry)
}

func printEntry(cmd *cobra.Command, e *requestlog.Entry) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Request:    %s\n", e.RequestID)
	fmt.Fprintf(out, "Service:    %s\n", e.Service)
	if e.Endpoint != "" {
		fmt.Fprintf(out, "Endpoint:   %s\n", e.Endpoint)
	}
	fmt.Fprintf(out, "Status:     %s\n", e.Status)
	fmt.Fprintf(out, "Async:      %t\n", e.Async)
	if e.APIKeyID != "" {
		fmt.Fprintf(out, "API key:    %s\n", e.APIKeyID)
	}
	if e.ClientIP != "" {
		fmt.Fprintf(out, "Client IP:  %s\n", e.ClientIP)
	}
	fmt.Fprintf(out, "Created:    %s\n", e.CreatedAt.UTC().Format(time.RFC3339))
	if e.CompletedAt != nil {
		fmt.Fprintf(out, "Completed:  %s (%d ms)\n", e.CompletedAt.UTC().Format(time.RFC3339), e.ProcessingTime.Milliseconds())
	}
	if len(e.Payload) > 0 {
		fmt.Fprintf(out, "Payload:    %s\n", e.Payload)
	}
	if len(e.Response) > 0 {
		fmt.Fprintf(out, "Response:   %s\n", e.Response)
	}
	if e.Error != "" {
		fmt.Fprintf(out, "Error:      %s\n", e.Error)
	}
	return nil
}

func listRequests(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(requestsFlags.output)
	if err != nil {
		return err
	}
	query, err := buildQuery()
	if err != nil {
		return err
	}
	store, err := openRequestStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := commandContext(cmd)
	entries, err := store.Query(ctx, query)
	if err != nil {
		return cli.NewCommandError("requests list", err)
	}

	if format == cli.FormatText {
		total, err := store.Count(ctx, query)
		if err != nil {
			return cli.NewCommandError("requests list", err)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No requests found.")
			return nil
		}
		if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entryTable(entries)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d requests\n", len(entries), total)
		return nil
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), entryTable(entries))
}

func buildQuery() (*requestlog.Query, error) {
	q := &requestlog.Query{
		APIKeyID: requestsFlags.apiKeyID,
		Service:  requestsFlags.service,
		Limit:    requestsFlags.limit,
		Offset:   requestsFlags.offset,
	}
	if requestsFlags.status != "" {
		q.Status = requestlog.Status(requestsFlags.status)
		if !q.Status.Valid() {
			return nil, fmt.Errorf("invalid status %q", requestsFlags.status)
		}
	}
	if requestsFlags.timeRange != "" {
		start, end, err := parseTimeRange(requestsFlags.timeRange)
		if err != nil {
			return nil, err
		}
		q.StartTime, q.EndTime = &start, &end
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, fmt.Errorf("limit and offset must not be negative")
	}
	return q, nil
}

func parseTimeRange(s string) (time.Time, time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range format (expected: start/end)")
	}
	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range: end is before start")
	}
	return start, end, nil
}
