package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammednabarawy/video-gen/internal/graph"
	"github.com/mohammednabarawy/video-gen/internal/presets"
	"github.com/mohammednabarawy/video-gen/internal/services"
)

const (
	minSteps = 1
	maxSteps = 200
)

// lowTierName is the floor every out-of-memory downgrade lands on.
const lowTierName = "low"

// plan is a fully resolved set of generation inputs, ready to compile.
type plan struct {
	params     graph.Params
	resolution presets.Resolution
	aspect     presets.AspectRatio
	style      presets.Style
	camera     string
	tier       presets.Tier
}

// resolve merges the request with configured defaults, applies the tier
// caps, and validates the result. Violations are fatal and happen before
// any record is created or any network traffic.
func (o *Orchestrator) resolve(req Request) (plan, error) {
	gen := o.cfg.Generation

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return plan{}, validationError("prompt must not be empty")
	}

	tierName := fallback(req.Tier, gen.Tier)
	tier, ok := presets.TierByName(tierName)
	if !ok {
		return plan{}, validationError(fmt.Sprintf("unknown performance tier %q", tierName))
	}
	resolutionName := fallback(req.Resolution, gen.Resolution)
	resolution, ok := presets.ResolutionByName(resolutionName)
	if !ok {
		return plan{}, validationError(fmt.Sprintf("unknown resolution %q", resolutionName))
	}
	aspectName := fallback(req.AspectRatio, gen.AspectRatio)
	aspect, ok := presets.AspectRatioByName(aspectName)
	if !ok {
		return plan{}, validationError(fmt.Sprintf("unknown aspect ratio %q", aspectName))
	}
	styleName := fallback(req.Style, gen.Style)
	style, ok := presets.StyleByName(styleName)
	if !ok {
		return plan{}, validationError(fmt.Sprintf("unknown style %q", styleName))
	}
	camera := strings.TrimSpace(req.CameraMotion)
	if !presets.ValidCameraMotion(camera) {
		return plan{}, validationError(fmt.Sprintf("unknown camera motion %q", camera))
	}

	if ceiling, ok := presets.ResolutionByName(tier.MaxResolution); ok {
		if resolution.Width*resolution.Height > ceiling.Width*ceiling.Height {
			resolution = ceiling
		}
	}

	width, height, err := presets.Dimensions(resolution.Name, aspect.Name)
	if err != nil {
		return plan{}, services.Wrap(services.ErrValidation, component, "validate", "", err)
	}
	if !presets.DivisibleBy8(width, height) {
		return plan{}, validationError(fmt.Sprintf("dimensions must be divisible by 8, got %dx%d", width, height))
	}

	frames := req.Frames
	if frames == 0 {
		frames = gen.Frames
	}
	if frames <= 0 {
		return plan{}, validationError(fmt.Sprintf("frame count must be positive, got %d", frames))
	}
	if tier.MaxFrames > 0 && frames > tier.MaxFrames {
		frames = tier.MaxFrames
	}

	steps := req.Steps
	if steps == 0 {
		steps = gen.Steps
	}
	if steps < minSteps || steps > maxSteps {
		return plan{}, validationError(fmt.Sprintf("steps must be between %d and %d, got %d", minSteps, maxSteps, steps))
	}

	fps := req.FPS
	if fps == 0 {
		fps = gen.FPS
	}
	cfgScale := req.CFG
	if cfgScale == 0 {
		cfgScale = gen.CFG
	}

	mode := req.Mode
	if mode == "" {
		mode = graph.ModeTextToVideo
	}
	switch mode {
	case graph.ModeTextToVideo, graph.ModeImageToVideo:
	default:
		return plan{}, validationError(fmt.Sprintf("unsupported generation mode %q", mode))
	}

	params := graph.Params{
		Prompt:         presets.EnhancePrompt(prompt, style.Name, camera),
		NegativePrompt: strings.TrimSpace(req.NegativePrompt),
		Width:          width,
		Height:         height,
		Frames:         frames,
		Steps:          steps,
		CFG:            cfgScale,
		Seed:           req.Seed,
		FPS:            fps,
		Mode:           mode,
		VAETiling:      tier.VAETiling,
		LowVRAM:        tier.CPUOffload,
	}
	return plan{
		params:     params,
		resolution: resolution,
		aspect:     aspect,
		style:      style,
		camera:     camera,
		tier:       tier,
	}, nil
}

// downgradeForMemory reshapes a plan to the low tier's budget with every
// memory-saving measure enabled, preserving the requested aspect ratio.
func downgradeForMemory(p plan) plan {
	out := p
	out.params.VAETiling = true
	out.params.LowVRAM = true

	low, ok := presets.TierByName(lowTierName)
	if !ok {
		return out
	}
	out.tier = low
	if low.MaxFrames > 0 && out.params.Frames > low.MaxFrames {
		out.params.Frames = low.MaxFrames
	}
	if floor, ok := presets.ResolutionByName(low.MaxResolution); ok {
		if out.params.Width*out.params.Height > floor.Width*floor.Height {
			if width, height, err := presets.Dimensions(floor.Name, p.aspect.Name); err == nil {
				out.params.Width = width
				out.params.Height = height
				out.resolution = floor
			}
		}
	}
	return out
}

// recordedParams is the JSON shape persisted with each history record.
type recordedParams struct {
	EnhancedPrompt string  `json:"enhanced_prompt"`
	Mode           string  `json:"mode"`
	Resolution     string  `json:"resolution"`
	AspectRatio    string  `json:"aspect_ratio"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Frames         int     `json:"frames"`
	FPS            int     `json:"fps"`
	Steps          int     `json:"steps"`
	CFG            float64 `json:"cfg"`
	Seed           *int64  `json:"seed,omitempty"`
	Style          string  `json:"style,omitempty"`
	CameraMotion   string  `json:"camera_motion,omitempty"`
	Tier           string  `json:"tier"`
	VAETiling      bool    `json:"vae_tiling"`
	LowVRAM        bool    `json:"low_vram"`
}

func encodeParams(p plan) (string, error) {
	data, err := json.Marshal(recordedParams{
		EnhancedPrompt: p.params.Prompt,
		Mode:           string(p.params.Mode),
		Resolution:     p.resolution.Name,
		AspectRatio:    p.aspect.Name,
		Width:          p.params.Width,
		Height:         p.params.Height,
		Frames:         p.params.Frames,
		FPS:            p.params.FPS,
		Steps:          p.params.Steps,
		CFG:            p.params.CFG,
		Seed:           p.params.Seed,
		Style:          p.style.Name,
		CameraMotion:   p.camera,
		Tier:           p.tier.Name,
		VAETiling:      p.params.VAETiling,
		LowVRAM:        p.params.LowVRAM,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func validationError(message string) error {
	return services.Wrap(services.ErrValidation, component, "validate", message, nil)
}

func fallback(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}
