package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mohammednabarawy/video-gen/internal/history"
)

const listPromptWidth = 40

var titleCaser = cases.Title(language.Und)

func formatStatusLabel(status history.Status) string {
	value := strings.TrimSpace(string(status))
	if value == "" {
		return ""
	}
	return titleCaser.String(value)
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// formatElapsed reports how long a record ran, or has been running so far.
func formatElapsed(rec *history.Record) string {
	if rec.StartedAt == nil {
		return "-"
	}
	end := time.Now().UTC()
	if rec.FinishedAt != nil {
		end = *rec.FinishedAt
	} else if rec.IsTerminal() {
		return "-"
	}
	elapsed := end.Sub(*rec.StartedAt)
	if elapsed < 0 {
		return "-"
	}
	return elapsed.Round(time.Second).String()
}

func truncateText(value string, limit int) string {
	runes := []rune(strings.TrimSpace(value))
	if len(runes) <= limit {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func shortUUID(value string) string {
	if len(value) > 8 {
		return value[:8]
	}
	return value
}

func buildHistoryRows(records []*history.Record) [][]string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			fmt.Sprintf("%d", rec.ID),
			shortUUID(rec.UUID),
			truncateText(rec.Prompt, listPromptWidth),
			formatStatusLabel(rec.Status),
			formatDisplayTime(rec.CreatedAt),
			formatElapsed(rec),
		})
	}
	return rows
}

func buildHistoryStatsRows(stats map[history.Status]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(history.Status(key)), fmt.Sprintf("%d", stats[history.Status(key)])})
	}
	return rows
}
