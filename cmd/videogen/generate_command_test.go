package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/mohammednabarawy/video-gen/internal/history"
	"github.com/mohammednabarawy/video-gen/internal/testsupport"
)

func TestGenerateRejectsInvalidSteps(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"generate", "a drifting paper lantern", "--steps", "500"}, env.configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "steps must be between")

	// Requests that fail validation must not leave a record behind.
	out, _, err := runCLI(t, []string{"history", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	requireContains(t, out, "No generations recorded")
}

func TestGenerateMarksAbandonedRecords(t *testing.T) {
	env := setupCLITestEnv(t)
	store := testsupport.MustOpenStore(t, env.cfg)
	ctx := context.Background()

	stranded := testsupport.NewRecord(t, store, "uuid-stranded-0001", "an abandoned run")
	stranded.Status = history.StatusGenerating
	if err := store.Update(ctx, stranded); err != nil {
		t.Fatalf("update stranded record: %v", err)
	}

	// The run itself fails validation; the cleanup still happens first.
	out, _, err := runCLI(t, []string{"generate", "a red kite", "--steps", "500"}, env.configPath)
	if err == nil {
		t.Fatal("expected steps validation error")
	}
	requireContains(t, out, "Marked 1 interrupted generations as failed")

	refreshed, err := store.GetByUUID(ctx, "uuid-stranded-0001")
	if err != nil {
		t.Fatalf("load stranded record: %v", err)
	}
	if refreshed == nil {
		t.Fatal("stranded record missing after generate")
	}
	if refreshed.Status != history.StatusFailed {
		t.Fatalf("expected failed status, got %s", refreshed.Status)
	}
	if refreshed.ErrorMessage != history.InterruptedMessage {
		t.Fatalf("unexpected error message: %q", refreshed.ErrorMessage)
	}
}

func TestGenerateRejectsUnknownResolution(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"generate", "a drifting paper lantern", "--resolution", "4320p"}, env.configPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), `unknown resolution "4320p"`)
}

// fakeInferenceServer answers just enough of the server API for a
// generation to run end to end: stream handshake, job submission, history
// polling, and the artifact download.
func fakeInferenceServer(t *testing.T, promptID, filename string, payload []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/ws":
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				t.Errorf("upgrade: %v", err)
				return
			}
			defer conn.Close()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		case r.URL.Path == "/prompt" && r.Method == http.MethodPost:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"prompt_id":%q}`, promptID)
		case r.URL.Path == "/history/"+promptID:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w,
				`{%q:{"outputs":{"9":{"videos":[{"filename":%q,"subfolder":"","type":"output"}]}},"status":{"status_str":"success","completed":true}}}`,
				promptID, filename)
		case r.URL.Path == "/view":
			if got := r.URL.Query().Get("filename"); got != filename {
				t.Errorf("unexpected download filename: %q", got)
			}
			_, _ = w.Write(payload)
		case r.URL.Path == "/system_stats":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"system":{"os":"posix"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateEndToEnd(t *testing.T) {
	payload := []byte("fake video payload")
	srv := fakeInferenceServer(t, "job-e2e-1", "videogen_e2e.mp4", payload)
	env := setupCLITestEnv(t, testsupport.WithServerAddress(serverHostPort(t, srv.URL)))

	out, _, err := runCLI(t, []string{"generate", "a red kite over dunes", "--seed", "42"}, env.configPath)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	requireContains(t, out, "Video saved to ")

	savedPath := filepath.Join(env.cfg.Paths.OutputDir, "videogen_e2e.mp4")
	requireContains(t, out, savedPath)
	data, err := os.ReadFile(savedPath)
	if err != nil {
		t.Fatalf("read saved video: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatalf("saved payload mismatch: %q", data)
	}

	store := testsupport.MustOpenStore(t, env.cfg)
	records, err := store.Recent(context.Background(), 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != history.StatusCompleted {
		t.Fatalf("expected completed record, got %s (%s)", rec.Status, rec.ErrorMessage)
	}
	if rec.Prompt != "a red kite over dunes" {
		t.Fatalf("unexpected prompt: %q", rec.Prompt)
	}
	if rec.OutputFile != savedPath {
		t.Fatalf("unexpected output file: %q", rec.OutputFile)
	}
	if rec.PromptID != "job-e2e-1" {
		t.Fatalf("unexpected job id: %q", rec.PromptID)
	}
	if !strings.Contains(rec.ParamsJSON, `"seed": 42`) && !strings.Contains(rec.ParamsJSON, `"seed":42`) {
		t.Fatalf("expected pinned seed in params: %s", rec.ParamsJSON)
	}
}
