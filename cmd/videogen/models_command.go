package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammednabarawy/video-gen/internal/models"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show the model files generation needs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			root := cfg.ModelsRoot()
			if root == "" {
				return errors.New("models directory not configured; set server.install_dir or server.models_dir")
			}

			statuses := models.Check(root)
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"models_root": root,
					"ready":       models.Ready(root),
					"files":       buildModelViews(statuses),
				})
			}

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Models root: %s\n", root)
			table := renderTable(
				[]string{"File", "Category", "Required", "Expected", "State"},
				buildModelRows(statuses),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			)
			fmt.Fprintln(stdout, table)

			if missing := models.MissingRequired(root); len(missing) > 0 {
				return fmt.Errorf("%d required model files missing", len(missing))
			}
			fmt.Fprintln(stdout, "All required model files present")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit model status as JSON")
	return cmd
}

func buildModelRows(statuses []models.Status) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		state := "Missing"
		switch {
		case status.Present && status.Detail != "":
			state = fmt.Sprintf("Present (%s)", status.Detail)
		case status.Present:
			state = "Present"
		case status.Detail != "" && status.Detail != "not found":
			state = status.Detail
		}
		rows = append(rows, []string{
			status.Name,
			status.Category,
			yesNo(status.Required),
			fmt.Sprintf("%.1f GB", status.SizeGB),
			state,
		})
	}
	return rows
}

type jsonModelStatus struct {
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Purpose    string  `json:"purpose"`
	Required   bool    `json:"required"`
	ExpectedGB float64 `json:"expected_gb"`
	Present    bool    `json:"present"`
	SizeBytes  int64   `json:"size_bytes,omitempty"`
	Detail     string  `json:"detail,omitempty"`
}

func buildModelViews(statuses []models.Status) []jsonModelStatus {
	views := make([]jsonModelStatus, 0, len(statuses))
	for _, status := range statuses {
		views = append(views, jsonModelStatus{
			Name:       status.Name,
			Category:   status.Category,
			Purpose:    status.Purpose,
			Required:   status.Required,
			ExpectedGB: status.SizeGB,
			Present:    status.Present,
			SizeBytes:  status.SizeBytes,
			Detail:     status.Detail,
		})
	}
	return views
}
