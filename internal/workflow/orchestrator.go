package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammednabarawy/video-gen/internal/config"
	"github.com/mohammednabarawy/video-gen/internal/graph"
	"github.com/mohammednabarawy/video-gen/internal/history"
	"github.com/mohammednabarawy/video-gen/internal/logging"
	"github.com/mohammednabarawy/video-gen/internal/models"
	"github.com/mohammednabarawy/video-gen/internal/notifications"
	"github.com/mohammednabarawy/video-gen/internal/services"
	"github.com/mohammednabarawy/video-gen/internal/services/comfyui"
)

const component = "workflow"

// Stage labels persisted with progress updates and forwarded to callers.
const (
	StageBuilding   = "Building"
	StageSubmitted  = "Submitted"
	StageGenerating = "Generating"
	StageRecovering = "Recovering"
)

// Each fault class gets one repair per generation; a second fault of the
// same class surfaces as the final error.
const (
	maxEnvironmentRecoveries = 1
	maxResourceRecoveries    = 1
	maxTransientRetries      = 1
)

// ProtocolClient is the slice of the server protocol the orchestrator
// drives. *comfyui.Client satisfies it.
type ProtocolClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	On(kind comfyui.EventKind, handler func(comfyui.Event))
	ClearHandlers()
	Submit(ctx context.Context, g graph.Graph) (string, error)
	AwaitCompletion(ctx context.Context, jobID string, timeout time.Duration) bool
	ListOutputs(ctx context.Context, jobID string) ([]comfyui.OutputRef, error)
	FetchOutput(ctx context.Context, ref comfyui.OutputRef, saveTo string) ([]byte, string, error)
}

// ServerControl restarts the managed server during fault recovery.
// *comfyui.Supervisor satisfies it.
type ServerControl interface {
	Restart(ctx context.Context, opts comfyui.RestartOptions) error
}

// Request describes one generation. Empty or zero fields fall back to the
// configured generation defaults; pass style "none" to suppress the
// default style suffix.
type Request struct {
	Prompt         string
	NegativePrompt string
	Mode           graph.Mode
	Resolution     string
	AspectRatio    string
	Frames         int
	FPS            int
	Steps          int
	CFG            float64
	Seed           *int64
	Style          string
	CameraMotion   string
	Tier           string

	// OutputPath overrides the default file under the configured output
	// directory.
	OutputPath string
	// OnProgress, when set, receives stage changes and sampling progress
	// while the job runs. It is called from the generating goroutine.
	OnProgress func(Progress)
}

// Progress is one coarse update forwarded while a generation runs.
type Progress struct {
	Stage   string
	Message string
	Percent float64
}

// Orchestrator turns generation requests into saved video files, recording
// every transition in the history store.
type Orchestrator struct {
	cfg      *config.Config
	store    *history.Store
	client   ProtocolClient
	server   ServerControl
	notifier notifications.Service
	logger   *slog.Logger

	mu   sync.Mutex
	busy bool
}

// NewOrchestrator constructs an orchestrator with the default ntfy-backed
// notifier.
func NewOrchestrator(cfg *config.Config, store *history.Store, client ProtocolClient, server ServerControl, logger *slog.Logger) *Orchestrator {
	return NewOrchestratorWithNotifier(cfg, store, client, server, logger, notifications.NewService(cfg))
}

// NewOrchestratorWithNotifier constructs an orchestrator with a custom
// notifier (used in tests).
func NewOrchestratorWithNotifier(cfg *config.Config, store *history.Store, client ProtocolClient, server ServerControl, logger *slog.Logger, notifier notifications.Service) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		client:   client,
		server:   server,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, component),
	}
}

// Generate runs one generation from validated parameters to a saved output
// file and returns the final history record. Parameter violations and
// missing model weights fail before any record is created or any network
// call is made. Cancelling the context abandons the remote job and marks
// the record cancelled.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*history.Record, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return nil, services.Wrap(services.ErrValidation, component, "generate", "another generation is already running", nil)
	}
	o.busy = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	resolved, err := o.resolve(req)
	if err != nil {
		return nil, err
	}
	if err := o.checkModelsReady(); err != nil {
		return nil, err
	}
	encoded, err := encodeParams(resolved)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, component, "generate", "encode parameters", err)
	}

	rec, err := o.store.NewRecord(ctx, uuid.NewString(), req.Prompt, resolved.params.NegativePrompt, encoded)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, component, "generate", "create history record", err)
	}
	rec.MarkStarted()

	ctx = services.WithGenerationID(ctx, rec.UUID)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("generation started",
		logging.String("resolution", resolved.resolution.Name),
		logging.Int("width", resolved.params.Width),
		logging.Int("height", resolved.params.Height),
		logging.Int("frames", resolved.params.Frames),
		logging.Int("steps", resolved.params.Steps),
		logging.String("tier", resolved.tier.Name),
	)

	started := time.Now()
	outputFile, err := o.run(ctx, rec, resolved, req)
	if err != nil {
		o.finishFailure(ctx, rec, req, err)
		return nil, err
	}

	rec.SetCompleted(outputFile)
	if updateErr := o.store.Update(context.WithoutCancel(ctx), rec); updateErr != nil {
		logger.Warn("completed generation not recorded", logging.Error(updateErr))
	}
	elapsed := time.Since(started)
	logger.Info("generation completed",
		logging.String("output", outputFile),
		logging.Duration("elapsed", elapsed.Round(time.Millisecond)),
		logging.Int(logging.FieldAttempt, rec.Attempts),
	)
	if notifyErr := o.notifier.NotifyGenerationCompleted(ctx, req.Prompt, outputFile, elapsed); notifyErr != nil {
		logger.Debug("completion notification failed", logging.Error(notifyErr))
	}
	return rec, nil
}

// checkModelsReady refuses to start a generation the server cannot run
// for lack of weights. Skipped when no models root is configured, since
// an external server may keep its models anywhere.
func (o *Orchestrator) checkModelsReady() error {
	root := o.cfg.ModelsRoot()
	if root == "" {
		return nil
	}
	missing := models.MissingRequired(root)
	if len(missing) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, component, "generate",
		fmt.Sprintf("required model files missing under %s: %s", root, strings.Join(missing, ", ")), nil)
}

func (o *Orchestrator) finishFailure(ctx context.Context, rec *history.Record, req Request, cause error) {
	logger := logging.WithContext(ctx, o.logger)
	if services.FailureStatus(cause) == history.StatusCancelled {
		rec.SetCancelled()
		if err := o.store.Update(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn("cancellation not recorded", logging.Error(err))
		}
		logger.Info("generation cancelled")
		return
	}

	classification := string(services.Classify(cause))
	rec.SetFailed(failureText(cause), classification)
	if err := o.store.Update(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("failure not recorded", logging.Error(err))
	}
	logger.Error("generation failed",
		logging.Error(cause),
		logging.String("classification", classification),
		logging.Int(logging.FieldAttempt, rec.Attempts),
	)
	if err := o.notifier.NotifyGenerationFailed(context.WithoutCancel(ctx), req.Prompt, failureText(cause)); err != nil {
		logger.Debug("failure notification failed", logging.Error(err))
	}
}

// report persists a transition and forwards it to the caller. An empty
// status leaves the record's lifecycle state untouched.
func (o *Orchestrator) report(ctx context.Context, rec *history.Record, req Request, status history.Status, stage, message string, percent float64) {
	if status != "" {
		rec.Status = status
	}
	rec.SetProgress(stage, message, percent)
	if err := o.store.Update(ctx, rec); err != nil {
		logging.WithContext(ctx, o.logger).Warn("progress update not recorded", logging.Error(err))
	}
	if req.OnProgress != nil {
		req.OnProgress(Progress{Stage: stage, Message: message, Percent: percent})
	}
}
