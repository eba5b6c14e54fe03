package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammednabarawy/video-gen/internal/graph"
	"github.com/mohammednabarawy/video-gen/internal/history"
	"github.com/mohammednabarawy/video-gen/internal/logging"
	"github.com/mohammednabarawy/video-gen/internal/services"
	"github.com/mohammednabarawy/video-gen/internal/services/comfyui"
)

// executionError carries the server's execution_error payload through the
// attempt loop so recovery can inspect the original failure.
type executionError struct {
	failure comfyui.ExecutionFailure
}

func (e *executionError) Error() string {
	return e.failure.String()
}

// run drives the attempt loop until the generation succeeds, fails
// terminally, or exhausts its recovery budgets. The event stream is always
// disconnected on the way out.
func (o *Orchestrator) run(ctx context.Context, rec *history.Record, resolved plan, req Request) (string, error) {
	defer o.client.Disconnect()

	var environmentRecoveries, resourceRecoveries, transientRetries int

	for attempt := 1; ; attempt++ {
		rec.Attempts = attempt
		attemptCtx := services.WithAttempt(ctx, attempt)

		outputFile, err := o.attempt(attemptCtx, rec, resolved.params, req)
		if err == nil {
			return outputFile, nil
		}
		if ctx.Err() != nil {
			return "", err
		}

		logger := logging.WithContext(attemptCtx, o.logger)
		switch services.Classify(err) {
		case services.ClassificationEnvironment:
			if environmentRecoveries >= maxEnvironmentRecoveries {
				return "", err
			}
			environmentRecoveries++
			if recoverErr := o.recoverEnvironment(attemptCtx, rec, req, err); recoverErr != nil {
				return "", recoverErr
			}
		case services.ClassificationResource:
			if resourceRecoveries >= maxResourceRecoveries {
				return "", err
			}
			resourceRecoveries++
			resolved = downgradeForMemory(resolved)
			if encoded, encodeErr := encodeParams(resolved); encodeErr == nil {
				rec.ParamsJSON = encoded
			}
			if recoverErr := o.recoverResource(attemptCtx, rec, req, resolved, err); recoverErr != nil {
				return "", recoverErr
			}
		case services.ClassificationTransient:
			if errors.Is(err, services.ErrTimeout) || transientRetries >= maxTransientRetries {
				return "", err
			}
			transientRetries++
			o.client.Disconnect()
			delay := time.Duration(o.cfg.Recovery.TransientRetryDelay) * time.Second
			logger.Warn("transient fault, retrying",
				logging.Error(err),
				logging.Duration("delay", delay),
				logging.String(logging.FieldEventType, "transient_retry"),
			)
			if sleepErr := sleepContext(ctx, delay); sleepErr != nil {
				return "", services.Wrap(services.ErrTransient, component, "retry", "interrupted while waiting", sleepErr)
			}
		default:
			return "", err
		}
	}
}

// attempt runs one submission end to end: build the graph, open the event
// stream, submit, and wait for either a terminal event or the completion
// poll. Handlers are registered before submission so no event can be missed.
func (o *Orchestrator) attempt(ctx context.Context, rec *history.Record, params graph.Params, req Request) (string, error) {
	o.report(ctx, rec, req, history.StatusBuilding, StageBuilding, "assembling workflow graph", 0)
	g, err := graph.Build(params)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, component, "build graph", "", err)
	}

	if err := o.client.Connect(ctx); err != nil {
		return "", err
	}
	o.client.ClearHandlers()

	progressCh := make(chan comfyui.ProgressUpdate, 8)
	failureCh := make(chan comfyui.ExecutionFailure, 4)
	o.client.On(comfyui.EventProgress, func(ev comfyui.Event) {
		if update, ok := ev.Progress(); ok {
			select {
			case progressCh <- update:
			default:
			}
		}
	})
	o.client.On(comfyui.EventExecutionError, func(ev comfyui.Event) {
		if failure, ok := ev.Failure(); ok {
			select {
			case failureCh <- failure:
			default:
			}
		}
	})

	jobID, err := o.client.Submit(ctx, g)
	if err != nil {
		return "", err
	}
	ctx = services.WithJobID(ctx, jobID)
	rec.PromptID = jobID
	o.report(ctx, rec, req, history.StatusSubmitted, StageSubmitted, "job accepted by server", 0)
	logging.WithContext(ctx, o.logger).Info("job submitted")

	timeout := time.Duration(o.cfg.Generation.TimeoutSeconds) * time.Second
	awaitCtx, cancelAwait := context.WithCancel(ctx)
	defer cancelAwait()
	doneCh := make(chan bool, 1)
	go func() {
		doneCh <- o.client.AwaitCompletion(awaitCtx, jobID, timeout)
	}()

	for {
		select {
		case <-ctx.Done():
			return "", services.Wrap(services.ErrTransient, component, "await events", "generation interrupted", ctx.Err())
		case failure := <-failureCh:
			if failure.PromptID != "" && failure.PromptID != jobID {
				continue
			}
			return "", o.executionError(failure)
		case update := <-progressCh:
			if update.PromptID != "" && update.PromptID != jobID {
				continue
			}
			message := fmt.Sprintf("step %d of %d", update.Value, update.Max)
			o.report(ctx, rec, req, history.StatusGenerating, StageGenerating, message, update.Percent())
		case completed := <-doneCh:
			if !completed {
				if ctx.Err() != nil {
					return "", services.Wrap(services.ErrTransient, component, "await events", "generation interrupted", ctx.Err())
				}
				select {
				case failure := <-failureCh:
					return "", o.executionError(failure)
				default:
				}
				return "", services.Wrap(services.ErrTimeout, component, "await completion", fmt.Sprintf("no result within %s", timeout), nil)
			}
			return o.collectOutput(ctx, req, jobID, failureCh)
		}
	}
}

// collectOutput fetches the first output of a finished job. A job that the
// server marked complete without outputs is an execution failure whose event
// may still be in flight, so the failure channel is drained once more before
// giving up.
func (o *Orchestrator) collectOutput(ctx context.Context, req Request, jobID string, failureCh chan comfyui.ExecutionFailure) (string, error) {
	refs, err := o.client.ListOutputs(ctx, jobID)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		select {
		case failure := <-failureCh:
			return "", o.executionError(failure)
		default:
		}
		return "", services.Wrap(services.ErrServer, component, "collect outputs", "job completed without outputs", nil)
	}

	ref := refs[0]
	saveTo := strings.TrimSpace(req.OutputPath)
	if saveTo == "" {
		saveTo = filepath.Join(o.cfg.Paths.OutputDir, filepath.Base(ref.Filename))
	}
	_, path, err := o.client.FetchOutput(ctx, ref, saveTo)
	if err != nil {
		return "", err
	}
	return path, nil
}

// executionError tags a server-reported failure with the sentinel that
// drives the recovery decision. Environment signatures win when a message
// matches both trigger lists.
func (o *Orchestrator) executionError(failure comfyui.ExecutionFailure) error {
	marker := services.ErrServer
	switch {
	case failure.Matches(o.cfg.Recovery.EnvironmentTriggers):
		marker = services.ErrEnvironment
	case failure.Matches(o.cfg.Recovery.OOMTriggers):
		marker = services.ErrResource
	}
	return services.Wrap(marker, component, "execute job", "", &executionError{failure: failure})
}

// recoverEnvironment repairs the host-side server defect by forcing a full
// restart, then lets the loop replay the same parameters.
func (o *Orchestrator) recoverEnvironment(ctx context.Context, rec *history.Record, req Request, cause error) error {
	logger := logging.WithContext(ctx, o.logger)
	if !o.cfg.ManagedServer() {
		return services.Wrap(services.ErrEnvironment, component, "recover", "cannot restart an external server", cause)
	}
	logger.Warn("server environment fault, forcing restart",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "environment_recovery"),
		logging.String(logging.FieldErrorHint, "the server's output handle went bad; a restart clears it"),
	)
	o.report(ctx, rec, req, "", StageRecovering, "restarting server after environment fault", 0)
	o.client.Disconnect()
	if err := o.server.Restart(ctx, comfyui.RestartOptions{Force: true}); err != nil {
		return services.Wrap(services.ErrEnvironment, component, "recover", "server restart failed", err)
	}
	if err := o.notifier.NotifyServerRestarted(ctx, failureText(cause)); err != nil {
		logger.Debug("restart notification failed", logging.Error(err))
	}
	return nil
}

// recoverResource restarts the server with the low-memory flag so the next
// attempt runs the downgraded parameters against a clean memory slate. An
// external server cannot be restarted; the downgraded parameters alone have
// to do.
func (o *Orchestrator) recoverResource(ctx context.Context, rec *history.Record, req Request, resolved plan, cause error) error {
	logger := logging.WithContext(ctx, o.logger)
	logger.Warn("server out of memory, downgrading parameters",
		logging.Error(cause),
		logging.Int("width", resolved.params.Width),
		logging.Int("height", resolved.params.Height),
		logging.Int("frames", resolved.params.Frames),
		logging.String(logging.FieldEventType, "memory_recovery"),
	)
	o.report(ctx, rec, req, "", StageRecovering, "restarting server in low-memory mode", 0)
	o.client.Disconnect()
	if !o.cfg.ManagedServer() {
		return nil
	}

	opts := comfyui.RestartOptions{}
	if arg := strings.TrimSpace(o.cfg.Server.LowMemoryArg); arg != "" {
		opts.Start.ExtraArgs = []string{arg}
	}
	if err := o.server.Restart(ctx, opts); err != nil {
		return services.Wrap(services.ErrResource, component, "recover", "server restart failed", err)
	}
	if err := o.notifier.NotifyServerRestarted(ctx, failureText(cause)); err != nil {
		logger.Debug("restart notification failed", logging.Error(err))
	}
	return nil
}

// failureText prefers the server's own failure message over the wrapped
// chain when one is available.
func failureText(err error) string {
	var exec *executionError
	if errors.As(err, &exec) {
		return exec.failure.String()
	}
	return err.Error()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
