package graph_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mohammednabarawy/video-gen/internal/graph"
	"github.com/sebdah/goldie/v2"
	"pgregory.net/rapid"
)

func baseParams() graph.Params {
	seed := int64(42)
	return graph.Params{
		Prompt:         "a red fox dashes across fresh snow",
		NegativePrompt: "",
		Width:          1280,
		Height:         720,
		Frames:         129,
		Steps:          50,
		CFG:            7.0,
		Seed:           &seed,
		FPS:            24,
	}
}

func TestBuildTextToVideoGraph(t *testing.T) {
	g, err := graph.Build(baseParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g) != 15 {
		t.Fatalf("expected 15 nodes, got %d", len(g))
	}

	classes := make(map[string]int)
	for _, node := range g {
		classes[node.ClassType]++
	}
	singles := []string{
		"DualCLIPLoader", "UNETLoader", "VAELoader", "EmptyLatentImage",
		"ModelSamplingSD3", "CFGGuider", "BasicScheduler", "KSamplerSelect",
		"RandomNoise", "SamplerCustomAdvanced", "VAEDecode", "CreateVideo",
		"SaveVideo",
	}
	for _, class := range singles {
		if classes[class] != 1 {
			t.Errorf("expected exactly one %s node, got %d", class, classes[class])
		}
	}
	if classes["CLIPTextEncode"] != 2 {
		t.Errorf("expected two CLIPTextEncode nodes, got %d", classes["CLIPTextEncode"])
	}

	latent := g["6"].Inputs
	if latent["width"] != 1280 || latent["height"] != 720 || latent["batch_size"] != 129 {
		t.Errorf("unexpected latent inputs: %v", latent)
	}
	if got := g["7"].Inputs["shift"]; got != 9 {
		t.Errorf("shift = %v, want 9", got)
	}
	if got := g["2"].Inputs["unet_name"]; got != "hunyuanvideo1.5_720p_t2v_fp16.safetensors" {
		t.Errorf("unet_name = %v", got)
	}
	if got := g["2"].Inputs["weight_dtype"]; got != "default" {
		t.Errorf("weight_dtype = %v, want default", got)
	}
	if got := g["4"].Inputs["text"]; got != "a red fox dashes across fresh snow" {
		t.Errorf("positive prompt = %v", got)
	}
	if got := g["8"].Inputs["cfg"]; got != 7.0 {
		t.Errorf("cfg = %v, want 7", got)
	}
	if got := g["9"].Inputs["steps"]; got != 50 {
		t.Errorf("steps = %v, want 50", got)
	}
	if got := g["10"].Inputs["sampler_name"]; got != "euler" {
		t.Errorf("sampler_name = %v, want euler", got)
	}
	if got := g["11"].Inputs["noise_seed"]; got != int64(42) {
		t.Errorf("noise_seed = %v, want 42", got)
	}
	if got := g["13"].ClassType; got != "VAEDecode" {
		t.Errorf("decode class = %s, want VAEDecode", got)
	}
	if target, ok := graph.RefTarget(g["12"].Inputs["latent_image"]); !ok || target != "6" {
		t.Errorf("latent_image reference = %v", g["12"].Inputs["latent_image"])
	}
	if target, ok := graph.RefTarget(g["14"].Inputs["images"]); !ok || target != "13" {
		t.Errorf("images reference = %v", g["14"].Inputs["images"])
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBuildImageToVideoSwapsModelAndShift(t *testing.T) {
	params := baseParams()
	params.Mode = graph.ModeImageToVideo
	g, err := graph.Build(params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := g["2"].Inputs["unet_name"]; got != "hunyuanvideo1.5_720p_i2v_fp16.safetensors" {
		t.Errorf("unet_name = %v", got)
	}
	if got := g["7"].Inputs["shift"]; got != 7 {
		t.Errorf("shift = %v, want 7", got)
	}
	if got := g["13"].ClassType; got != "VAEDecode" {
		t.Errorf("decode class = %s, want VAEDecode", got)
	}
}

func TestBuildLowMemoryVariants(t *testing.T) {
	params := baseParams()
	params.LowVRAM = true
	params.VAETiling = true
	g, err := graph.Build(params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := g["2"].Inputs["weight_dtype"]; got != "fp8_e4m3fn" {
		t.Errorf("weight_dtype = %v, want fp8_e4m3fn", got)
	}
	decode := g["13"]
	if decode.ClassType != "VAEDecodeTiled" {
		t.Fatalf("decode class = %s, want VAEDecodeTiled", decode.ClassType)
	}
	if decode.Inputs["tile_size"] != 512 || decode.Inputs["overlap"] != 64 {
		t.Errorf("unexpected tile inputs: %v", decode.Inputs)
	}
	if decode.Inputs["temporal_size"] != 16 || decode.Inputs["temporal_overlap"] != 4 {
		t.Errorf("unexpected temporal inputs: %v", decode.Inputs)
	}
	if target, ok := graph.RefTarget(g["14"].Inputs["images"]); !ok || target != "13" {
		t.Errorf("images reference = %v", g["14"].Inputs["images"])
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestBuildRejectsBadParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*graph.Params)
	}{
		{"width not divisible by 8", func(p *graph.Params) { p.Width = 1281 }},
		{"height not divisible by 8", func(p *graph.Params) { p.Height = 721 }},
		{"zero width", func(p *graph.Params) { p.Width = 0 }},
		{"negative height", func(p *graph.Params) { p.Height = -480 }},
		{"unknown mode", func(p *graph.Params) { p.Mode = "v2v" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := baseParams()
			tt.mutate(&params)
			if _, err := graph.Build(params); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildDefaultsFPS(t *testing.T) {
	params := baseParams()
	params.FPS = 0
	g, err := graph.Build(params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := g["14"].Inputs["fps"]; got != 24 {
		t.Errorf("fps = %v, want 24", got)
	}
}

func TestBuildRandomSeed(t *testing.T) {
	params := baseParams()
	params.Seed = nil
	a, err := graph.Build(params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	seed, ok := a["11"].Inputs["noise_seed"].(int64)
	if !ok {
		t.Fatalf("noise_seed is %T, want int64", a["11"].Inputs["noise_seed"])
	}
	if seed < 0 || seed >= 1<<32 {
		t.Errorf("seed %d outside 32-bit range", seed)
	}

	// Seedless builds must agree on everything except the drawn seed.
	b, err := graph.Build(params)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	a["11"].Inputs["noise_seed"] = int64(0)
	b["11"].Inputs["noise_seed"] = int64(0)
	aJSON, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(aJSON) != string(bJSON) {
		t.Error("seedless builds differ outside the noise node")
	}
}

func TestBuildDeterministicWithPinnedSeed(t *testing.T) {
	first, err := graph.Build(baseParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := graph.Build(baseParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	secondJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(firstJSON) != string(secondJSON) {
		t.Error("pinned-seed builds are not reproducible")
	}
}

func TestBuildGoldenTextToVideo(t *testing.T) {
	built, err := graph.Build(baseParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	assertGolden(t, "t2v_default", built)
}

func TestBuildGoldenImageToVideoLowMemory(t *testing.T) {
	seed := int64(7)
	built, err := graph.Build(graph.Params{
		Prompt:         "slow pan across a rain soaked neon alley",
		NegativePrompt: "blurry, washed out",
		Width:          848,
		Height:         480,
		Frames:         49,
		Steps:          30,
		CFG:            5.5,
		Seed:           &seed,
		FPS:            16,
		Mode:           graph.ModeImageToVideo,
		VAETiling:      true,
		LowVRAM:        true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	assertGolden(t, "i2v_low_memory", built)
}

func assertGolden(t *testing.T, name string, built graph.Graph) {
	t.Helper()
	data, err := json.MarshalIndent(built, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, append(data, '\n'))
}

func TestValidateSurvivesJSONRoundTrip(t *testing.T) {
	built, err := graph.Build(baseParams())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data, err := json.Marshal(built)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded graph.Graph
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := decoded.Validate(); err != nil {
		t.Fatalf("decoded graph failed validation: %v", err)
	}
	if target, ok := graph.RefTarget(decoded["4"].Inputs["clip"]); !ok || target != "1" {
		t.Errorf("decoded reference not recognised: %v", decoded["4"].Inputs["clip"])
	}
}

func TestValidateRejectsDanglingReference(t *testing.T) {
	g := graph.Graph{
		"1": {ClassType: "CLIPTextEncode", Inputs: map[string]any{"clip": graph.Ref("9", 0)}},
	}
	err := g.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown node 9") {
		t.Fatalf("expected dangling reference error, got %v", err)
	}
}

func TestValidateRejectsCycle(t *testing.T) {
	g := graph.Graph{
		"1": {ClassType: "A", Inputs: map[string]any{"in": graph.Ref("2", 0)}},
		"2": {ClassType: "B", Inputs: map[string]any{"in": graph.Ref("1", 0)}},
	}
	err := g.Validate()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestBuildAlwaysProducesValidGraphs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		params := graph.Params{
			Prompt:         rapid.SampledFrom([]string{"a fox", "city at night", "ocean waves rolling in"}).Draw(t, "prompt"),
			NegativePrompt: rapid.SampledFrom([]string{"", "blurry"}).Draw(t, "negative"),
			Width:          rapid.IntRange(1, 480).Draw(t, "w") * 8,
			Height:         rapid.IntRange(1, 270).Draw(t, "h") * 8,
			Frames:         rapid.IntRange(1, 241).Draw(t, "frames"),
			Steps:          rapid.IntRange(1, 200).Draw(t, "steps"),
			CFG:            rapid.Float64Range(1, 20).Draw(t, "cfg"),
			FPS:            rapid.IntRange(0, 60).Draw(t, "fps"),
			Mode:           rapid.SampledFrom([]graph.Mode{"", graph.ModeTextToVideo, graph.ModeImageToVideo}).Draw(t, "mode"),
			VAETiling:      rapid.Bool().Draw(t, "tiling"),
			LowVRAM:        rapid.Bool().Draw(t, "lowvram"),
		}
		built, err := graph.Build(params)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if len(built) != 15 {
			t.Fatalf("expected 15 nodes, got %d", len(built))
		}
		if err := built.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})
}
