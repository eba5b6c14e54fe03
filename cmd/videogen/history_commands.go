package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammednabarawy/video-gen/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past generations",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryStatsCommand(ctx))
	historyCmd.AddCommand(newHistoryHealthCommand(ctx))
	historyCmd.AddCommand(newHistoryRemoveCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit    int
		statuses []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent generations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			var records []*history.Record
			if len(statuses) > 0 {
				filter := make([]history.Status, 0, len(statuses))
				for _, status := range statuses {
					filter = append(filter, history.Status(strings.ToLower(strings.TrimSpace(status))))
				}
				records, err = store.List(cmd.Context(), filter...)
			} else {
				records, err = store.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if asJSON {
				views := make([]jsonRecord, 0, len(records))
				for _, rec := range records {
					views = append(views, newJSONRecord(rec))
				}
				return writeJSON(cmd, map[string]any{"generations": views})
			}

			stdout := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(stdout, "No generations recorded")
				return nil
			}
			table := renderTable(
				[]string{"ID", "UUID", "Prompt", "Status", "Created", "Duration"},
				buildHistoryRows(records),
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of records to show")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit records as JSON")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id|uuid>",
		Short: "Show one generation in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := findRecord(cmd, store, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, newJSONRecord(rec))
			}
			printRecordDetail(cmd, rec)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the record as JSON")
	return cmd
}

func newHistoryStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show record counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := store.Health(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"counts":  stats,
					"summary": newJSONHealthSummary(summary),
				})
			}

			stdout := cmd.OutOrStdout()
			rows := buildHistoryStatsRows(stats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No generations recorded")
				return nil
			}
			table := renderTable(
				[]string{"Status", "Count"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			)
			fmt.Fprintln(stdout, table)
			fmt.Fprintf(stdout, "Total: %d (%d processing)\n", summary.Total, summary.Processing)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit counts as JSON")
	return cmd
}

func newHistoryHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check history database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			health, err := store.CheckHealth(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, newJSONDatabaseHealth(health))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database path: %s\n", health.DBPath)
			fmt.Fprintf(out, "Database exists: %s\n", yesNo(health.DatabaseExists))
			fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
			fmt.Fprintf(out, "Schema version: %s\n", health.SchemaVersion)
			fmt.Fprintf(out, "generations table present: %s\n", yesNo(health.TableExists))
			if len(health.ColumnsPresent) > 0 {
				cols := append([]string(nil), health.ColumnsPresent...)
				sort.Strings(cols)
				fmt.Fprintf(out, "Columns: %s\n", strings.Join(cols, ", "))
			}
			if len(health.MissingColumns) > 0 {
				missing := append([]string(nil), health.MissingColumns...)
				sort.Strings(missing)
				fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
			} else {
				fmt.Fprintln(out, "Missing columns: none")
			}
			fmt.Fprintf(out, "Integrity check: %s\n", yesNo(health.IntegrityCheck))
			fmt.Fprintf(out, "Total records: %d\n", health.TotalRecords)
			if health.Error != "" {
				fmt.Fprintf(out, "Error: %s\n", health.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	return cmd
}

func newHistoryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id|uuid>",
		Short: "Delete one generation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			rec, err := findRecord(cmd, store, args[0])
			if err != nil {
				return err
			}
			removed, err := store.Remove(cmd.Context(), rec.ID)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no generation with id %d", rec.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed generation %d (%s)\n", rec.ID, rec.UUID)
			return nil
		},
	}
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var (
		all       bool
		completed bool
		failed    bool
	)
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete history records",
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, flag := range []bool{all, completed, failed} {
				if flag {
					selected++
				}
			}
			if selected != 1 {
				return errors.New("pick exactly one of --all, --completed, or --failed")
			}

			store, closeStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			var removed int64
			switch {
			case completed:
				removed, err = store.ClearCompleted(cmd.Context())
			case failed:
				removed, err = store.ClearFailed(cmd.Context())
			default:
				removed, err = store.Clear(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d records\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every record")
	cmd.Flags().BoolVar(&completed, "completed", false, "Delete completed records only")
	cmd.Flags().BoolVar(&failed, "failed", false, "Delete failed records only")
	return cmd
}

// findRecord resolves a numeric argument as a record id and anything else
// as a generation uuid.
func findRecord(cmd *cobra.Command, store *history.Store, arg string) (*history.Record, error) {
	arg = strings.TrimSpace(arg)
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		rec, err := store.GetByID(cmd.Context(), id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, fmt.Errorf("no generation with id %d", id)
		}
		return rec, nil
	}
	rec, err := store.GetByUUID(cmd.Context(), arg)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("no generation with uuid %q", arg)
	}
	return rec, nil
}

func printRecordDetail(cmd *cobra.Command, rec *history.Record) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "ID:          %d\n", rec.ID)
	fmt.Fprintf(out, "UUID:        %s\n", rec.UUID)
	fmt.Fprintf(out, "Status:      %s\n", formatStatusLabel(rec.Status))
	fmt.Fprintf(out, "Prompt:      %s\n", rec.Prompt)
	if rec.NegativePrompt != "" {
		fmt.Fprintf(out, "Negative:    %s\n", rec.NegativePrompt)
	}
	fmt.Fprintf(out, "Created:     %s\n", formatDisplayTime(rec.CreatedAt))
	if rec.StartedAt != nil {
		fmt.Fprintf(out, "Started:     %s\n", formatDisplayTime(*rec.StartedAt))
	}
	if rec.FinishedAt != nil {
		fmt.Fprintf(out, "Finished:    %s\n", formatDisplayTime(*rec.FinishedAt))
	}
	if elapsed := formatElapsed(rec); elapsed != "-" {
		fmt.Fprintf(out, "Duration:    %s\n", elapsed)
	}
	fmt.Fprintf(out, "Attempts:    %d\n", rec.Attempts)
	if rec.PromptID != "" {
		fmt.Fprintf(out, "Job ID:      %s\n", rec.PromptID)
	}
	if rec.OutputFile != "" {
		fmt.Fprintf(out, "Output:      %s\n", rec.OutputFile)
	}
	if rec.ErrorMessage != "" {
		detail := rec.ErrorMessage
		if rec.Classification != "" {
			detail = fmt.Sprintf("%s (%s)", detail, rec.Classification)
		}
		fmt.Fprintf(out, "Error:       %s\n", detail)
	}
	if rec.IsProcessing() && rec.ProgressStage != "" {
		fmt.Fprintf(out, "Progress:    %s %.0f%% %s\n", rec.ProgressStage, rec.ProgressPercent, rec.ProgressMessage)
	}
	if params := indentParams(rec.ParamsJSON); params != "" {
		fmt.Fprintln(out, "Parameters:")
		fmt.Fprintln(out, params)
	}
}

func indentParams(paramsJSON string) string {
	trimmed := strings.TrimSpace(paramsJSON)
	if trimmed == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(trimmed), "  ", "  "); err != nil {
		return "  " + trimmed
	}
	return "  " + buf.String()
}

type jsonRecord struct {
	ID              int64           `json:"id"`
	UUID            string          `json:"uuid"`
	Prompt          string          `json:"prompt"`
	NegativePrompt  string          `json:"negative_prompt,omitempty"`
	Status          string          `json:"status"`
	Params          json.RawMessage `json:"params,omitempty"`
	PromptID        string          `json:"prompt_id,omitempty"`
	OutputFile      string          `json:"output_file,omitempty"`
	ErrorMessage    string          `json:"error,omitempty"`
	Classification  string          `json:"classification,omitempty"`
	Attempts        int             `json:"attempts"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	ProgressStage   string          `json:"progress_stage,omitempty"`
	ProgressPercent float64         `json:"progress_percent,omitempty"`
	ProgressMessage string          `json:"progress_message,omitempty"`
}

type jsonHealthSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

func newJSONHealthSummary(summary history.HealthSummary) jsonHealthSummary {
	return jsonHealthSummary{
		Total:      summary.Total,
		Pending:    summary.Pending,
		Processing: summary.Processing,
		Completed:  summary.Completed,
		Failed:     summary.Failed,
		Cancelled:  summary.Cancelled,
	}
}

type jsonDatabaseHealth struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present,omitempty"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalRecords     int      `json:"total_records"`
	Error            string   `json:"error,omitempty"`
}

func newJSONDatabaseHealth(health history.DatabaseHealth) jsonDatabaseHealth {
	return jsonDatabaseHealth{
		DBPath:           health.DBPath,
		DatabaseExists:   health.DatabaseExists,
		DatabaseReadable: health.DatabaseReadable,
		SchemaVersion:    health.SchemaVersion,
		TableExists:      health.TableExists,
		ColumnsPresent:   health.ColumnsPresent,
		MissingColumns:   health.MissingColumns,
		IntegrityCheck:   health.IntegrityCheck,
		TotalRecords:     health.TotalRecords,
		Error:            health.Error,
	}
}

func newJSONRecord(rec *history.Record) jsonRecord {
	view := jsonRecord{
		ID:              rec.ID,
		UUID:            rec.UUID,
		Prompt:          rec.Prompt,
		NegativePrompt:  rec.NegativePrompt,
		Status:          string(rec.Status),
		PromptID:        rec.PromptID,
		OutputFile:      rec.OutputFile,
		ErrorMessage:    rec.ErrorMessage,
		Classification:  rec.Classification,
		Attempts:        rec.Attempts,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		StartedAt:       rec.StartedAt,
		FinishedAt:      rec.FinishedAt,
		ProgressStage:   rec.ProgressStage,
		ProgressPercent: rec.ProgressPercent,
		ProgressMessage: rec.ProgressMessage,
	}
	if trimmed := strings.TrimSpace(rec.ParamsJSON); trimmed != "" && json.Valid([]byte(trimmed)) {
		view.Params = json.RawMessage(trimmed)
	}
	return view
}
