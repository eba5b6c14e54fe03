package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammednabarawy/video-gen/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check the environment before generating",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			results := preflight.RunAll(cmd.Context(), cfg)

			if asJSON {
				type jsonResult struct {
					Name   string `json:"name"`
					Passed bool   `json:"passed"`
					Detail string `json:"detail,omitempty"`
				}
				views := make([]jsonResult, 0, len(results))
				for _, result := range results {
					views = append(views, jsonResult(result))
				}
				if err := writeJSON(cmd, map[string]any{
					"passed": preflight.Passed(results),
					"checks": views,
				}); err != nil {
					return err
				}
				if !preflight.Passed(results) {
					return errors.New("preflight failed")
				}
				return nil
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, result := range results {
				fmt.Fprintln(stdout, renderPreflightLine(result, colorize))
			}
			if !preflight.Passed(results) {
				return errors.New("preflight failed")
			}
			fmt.Fprintln(stdout, "\nAll checks passed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit results as JSON")
	return cmd
}

func renderPreflightLine(result preflight.Result, colorize bool) string {
	kind := statusError
	if result.Passed {
		kind = statusOK
	}
	return renderStatusLine(result.Name, kind, result.Detail, colorize)
}
