package graph

import (
	"fmt"
	"math/rand"
	"strconv"
)

// Mode selects which model variant a workflow targets.
type Mode string

const (
	// ModeTextToVideo generates video from a text prompt alone.
	ModeTextToVideo Mode = "t2v"
	// ModeImageToVideo swaps in the image-conditioned diffusion weights.
	// TODO: attach the image conditioning nodes; until then the source
	// image only influences generation through the swapped weights.
	ModeImageToVideo Mode = "i2v"
)

// Model files resolved by the server relative to its models directory.
const (
	clipPrimary   = "qwen_2.5_vl_7b_fp8_scaled.safetensors"
	clipSecondary = "byt5_small_glyphxl_fp16.safetensors"
	clipKind      = "hunyuan_video_15"

	unetTextToVideo  = "hunyuanvideo1.5_720p_t2v_fp16.safetensors"
	unetImageToVideo = "hunyuanvideo1.5_720p_i2v_fp16.safetensors"

	vaeFile = "hunyuanvideo15_vae_fp16.safetensors"
)

// Sampling settings from the published 720p workflows.
const (
	shiftTextToVideo  = 9
	shiftImageToVideo = 7
	schedulerName     = "simple"
	samplerName       = "euler"

	tileSize        = 512
	tileOverlap     = 64
	temporalSize    = 16
	temporalOverlap = 4

	defaultFPS = 24

	outputPrefix = "video/hunyuan_video_1.5"
	outputFormat = "video/h264-mp4"
	outputCodec  = "h264"
)

// Params carries everything needed to assemble one workflow graph.
type Params struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Frames         int
	Steps          int
	CFG            float64
	// Seed pins the noise generator. Nil draws a fresh seed at build time.
	Seed *int64
	FPS  int
	Mode Mode
	// VAETiling decodes latents in tiles, trading speed for a smaller
	// memory peak.
	VAETiling bool
	// LowVRAM loads the diffusion weights in fp8.
	LowVRAM bool
}

// Build assembles the 15-node workflow graph for the given parameters. Node
// identifiers are sequential integers assigned from 1 in a fixed order, so
// two builds with the same parameters and a pinned seed produce identical
// graphs.
func Build(params Params) (Graph, error) {
	if params.Width <= 0 || params.Height <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %dx%d", params.Width, params.Height)
	}
	if params.Width%8 != 0 || params.Height%8 != 0 {
		return nil, fmt.Errorf("dimensions must be divisible by 8, got %dx%d", params.Width, params.Height)
	}

	unet := unetTextToVideo
	shift := shiftTextToVideo
	switch params.Mode {
	case "", ModeTextToVideo:
	case ModeImageToVideo:
		unet = unetImageToVideo
		shift = shiftImageToVideo
	default:
		return nil, fmt.Errorf("unsupported generation mode %q", params.Mode)
	}

	weightDtype := "default"
	if params.LowVRAM {
		weightDtype = "fp8_e4m3fn"
	}

	seed := int64(0)
	if params.Seed != nil {
		seed = *params.Seed
	} else {
		seed = rand.Int63n(1 << 32)
	}

	fps := params.FPS
	if fps <= 0 {
		fps = defaultFPS
	}

	g := make(Graph, 15)
	next := 0
	add := func(classType string, inputs map[string]any) string {
		next++
		id := strconv.Itoa(next)
		g[id] = Node{ClassType: classType, Inputs: inputs}
		return id
	}

	clipLoader := add("DualCLIPLoader", map[string]any{
		"clip_name1":  clipPrimary,
		"clip_name2":  clipSecondary,
		"type":        clipKind,
		"device_mode": "default",
	})
	unetLoader := add("UNETLoader", map[string]any{
		"unet_name":    unet,
		"weight_dtype": weightDtype,
	})
	vaeLoader := add("VAELoader", map[string]any{
		"vae_name": vaeFile,
	})
	positive := add("CLIPTextEncode", map[string]any{
		"text": params.Prompt,
		"clip": Ref(clipLoader, 0),
	})
	negative := add("CLIPTextEncode", map[string]any{
		"text": params.NegativePrompt,
		"clip": Ref(clipLoader, 0),
	})
	// Video latents reuse the image latent node with one batch entry per
	// frame.
	latent := add("EmptyLatentImage", map[string]any{
		"width":      params.Width,
		"height":     params.Height,
		"batch_size": params.Frames,
	})
	sampling := add("ModelSamplingSD3", map[string]any{
		"model": Ref(unetLoader, 0),
		"shift": shift,
	})
	guider := add("CFGGuider", map[string]any{
		"model":    Ref(sampling, 0),
		"positive": Ref(positive, 0),
		"negative": Ref(negative, 0),
		"cfg":      params.CFG,
	})
	scheduler := add("BasicScheduler", map[string]any{
		"model":     Ref(sampling, 0),
		"scheduler": schedulerName,
		"steps":     params.Steps,
		"denoise":   1.0,
	})
	samplerSelect := add("KSamplerSelect", map[string]any{
		"sampler_name": samplerName,
	})
	noise := add("RandomNoise", map[string]any{
		"noise_seed": seed,
	})
	sampler := add("SamplerCustomAdvanced", map[string]any{
		"noise":        Ref(noise, 0),
		"guider":       Ref(guider, 0),
		"sampler":      Ref(samplerSelect, 0),
		"sigmas":       Ref(scheduler, 0),
		"latent_image": Ref(latent, 0),
	})
	var decode string
	if params.VAETiling {
		decode = add("VAEDecodeTiled", map[string]any{
			"samples":          Ref(sampler, 0),
			"vae":              Ref(vaeLoader, 0),
			"tile_size":        tileSize,
			"overlap":          tileOverlap,
			"temporal_size":    temporalSize,
			"temporal_overlap": temporalOverlap,
		})
	} else {
		decode = add("VAEDecode", map[string]any{
			"samples": Ref(sampler, 0),
			"vae":     Ref(vaeLoader, 0),
		})
	}
	video := add("CreateVideo", map[string]any{
		"images": Ref(decode, 0),
		"fps":    fps,
	})
	add("SaveVideo", map[string]any{
		"video":           Ref(video, 0),
		"filename_prefix": outputPrefix,
		"format":          outputFormat,
		"codec":           outputCodec,
		"pingpong":        false,
		"save_output":     true,
	})

	return g, nil
}
