package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammednabarawy/video-gen/internal/graph"
	"github.com/mohammednabarawy/video-gen/internal/logging"
	"github.com/mohammednabarawy/video-gen/internal/services/comfyui"
	"github.com/mohammednabarawy/video-gen/internal/workflow"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var (
		negative   string
		mode       string
		resolution string
		aspect     string
		frames     int
		fps        int
		steps      int
		cfgScale   float64
		seed       int64
		style      string
		camera     string
		tier       string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "generate \"<prompt>\"",
		Short: "Generate a video from a text prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := ctx.runLogger()
			if err != nil {
				return err
			}
			store, closeStore, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer closeStore()

			// A crashed run leaves in-flight records behind; settle them
			// before starting a new one.
			if marked, err := store.FailAbandoned(runCtx); err != nil {
				logger.Warn("abandoned generations not marked", logging.Error(err))
			} else if marked > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d interrupted generations as failed\n", marked)
			}

			supervisor, err := comfyui.NewSupervisor(cfg, logger)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if cfg.ManagedServer() && !supervisor.IsRunning(runCtx) {
				fmt.Fprintln(stdout, "Starting server...")
				if err := supervisor.Start(runCtx, comfyui.StartOptions{}); err != nil {
					return err
				}
			}

			client := comfyui.NewClient(cfg.ServerBaseURL(), logger)
			orch := workflow.NewOrchestrator(cfg, store, client, supervisor, logger)

			req := workflow.Request{
				Prompt:         args[0],
				NegativePrompt: negative,
				Mode:           graph.Mode(mode),
				Resolution:     resolution,
				AspectRatio:    aspect,
				Frames:         frames,
				FPS:            fps,
				Steps:          steps,
				CFG:            cfgScale,
				Style:          style,
				CameraMotion:   camera,
				Tier:           tier,
				OutputPath:     outputPath,
			}
			if cmd.Flags().Changed("seed") {
				req.Seed = &seed
			}

			printer := newProgressPrinter(stdout)
			req.OnProgress = printer.update

			started := time.Now()
			rec, err := orch.Generate(runCtx, req)
			printer.finish()
			if err != nil {
				return err
			}

			elapsed := time.Since(started).Round(time.Second)
			if rec.Attempts > 1 {
				fmt.Fprintf(stdout, "Video saved to %s (%s, %d attempts)\n", rec.OutputFile, elapsed, rec.Attempts)
			} else {
				fmt.Fprintf(stdout, "Video saved to %s (%s)\n", rec.OutputFile, elapsed)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&negative, "negative", "", "Negative prompt")
	flags.StringVar(&mode, "mode", "", "Generation mode (t2v or i2v)")
	flags.StringVarP(&resolution, "resolution", "r", "", "Resolution preset (480p, 720p, 1080p)")
	flags.StringVar(&aspect, "aspect", "", "Aspect ratio (16:9, 9:16, 1:1, 4:3, 21:9)")
	flags.IntVar(&frames, "frames", 0, "Frame count")
	flags.IntVar(&fps, "fps", 0, "Frames per second")
	flags.IntVar(&steps, "steps", 0, "Sampling steps")
	flags.Float64Var(&cfgScale, "cfg", 0, "Classifier-free guidance scale")
	flags.Int64Var(&seed, "seed", 0, "Noise seed (random when unset)")
	flags.StringVar(&style, "style", "", "Style preset (none, cinematic, realistic, anime, 3d, artistic)")
	flags.StringVar(&camera, "camera", "", "Camera motion appended to the prompt")
	flags.StringVarP(&tier, "tier", "t", "", "Performance tier (low, medium, high)")
	flags.StringVarP(&outputPath, "output", "o", "", "Output file path")

	return cmd
}

// progressPrinter renders generation progress: a single rewritten line on
// a terminal, stage transitions only when output is piped.
type progressPrinter struct {
	out       io.Writer
	tty       bool
	lastStage string
	active    bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, tty: shouldColorize(out)}
}

func (p *progressPrinter) update(u workflow.Progress) {
	if p.tty {
		fmt.Fprintf(p.out, "\r\x1b[2K%s %3.0f%% %s", u.Stage, u.Percent, u.Message)
		p.active = true
		return
	}
	if u.Stage != p.lastStage {
		fmt.Fprintf(p.out, "%s: %s\n", u.Stage, u.Message)
		p.lastStage = u.Stage
	}
}

func (p *progressPrinter) finish() {
	if p.active {
		fmt.Fprintln(p.out)
		p.active = false
	}
}
