package presets_test

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/mohammednabarawy/video-gen/internal/presets"
)

func TestResolutionLookup(t *testing.T) {
	res, ok := presets.ResolutionByName("720p")
	if !ok {
		t.Fatal("expected 720p to resolve")
	}
	if res.Width != 1280 || res.Height != 720 {
		t.Fatalf("unexpected 720p dimensions: %dx%d", res.Width, res.Height)
	}

	if _, ok := presets.ResolutionByName(" 1080P "); !ok {
		t.Fatal("expected lookup to be case-insensitive and trimmed")
	}
	if _, ok := presets.ResolutionByName("4k"); ok {
		t.Fatal("expected unknown resolution to fail")
	}
}

func TestDimensionsAtSixteenNine(t *testing.T) {
	width, height, err := presets.Dimensions("720p", "16:9")
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if width != 1280 || height != 720 {
		t.Fatalf("expected 1280x720, got %dx%d", width, height)
	}

	width, height, err = presets.Dimensions("480p", "16:9")
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if width != 848 || height != 480 {
		t.Fatalf("expected 848x480, got %dx%d", width, height)
	}
}

func TestDimensionsUnknownInputs(t *testing.T) {
	if _, _, err := presets.Dimensions("4k", "16:9"); err == nil {
		t.Fatal("expected error for unknown resolution")
	}
	if _, _, err := presets.Dimensions("720p", "2:1"); err == nil {
		t.Fatal("expected error for unknown aspect ratio")
	}
}

func TestDimensionsAlwaysAligned(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		resolution := rapid.SampledFrom(presets.ResolutionNames()).Draw(t, "resolution")
		ratio := rapid.SampledFrom(presets.AspectRatioNames()).Draw(t, "ratio")

		width, height, err := presets.Dimensions(resolution, ratio)
		if err != nil {
			t.Fatalf("Dimensions(%s, %s): %v", resolution, ratio, err)
		}
		if !presets.DivisibleBy8(width, height) {
			t.Fatalf("Dimensions(%s, %s) = %dx%d, not aligned to 8", resolution, ratio, width, height)
		}

		res, _ := presets.ResolutionByName(resolution)
		budget := res.Width * res.Height
		if width*height > budget {
			t.Fatalf("Dimensions(%s, %s) = %dx%d exceeds pixel budget %d", resolution, ratio, width, height, budget)
		}
	})
}

func TestEnhancePrompt(t *testing.T) {
	got := presets.EnhancePrompt("a red fox", "Cinematic", "pan_left")
	want := "a red fox, cinematic, film grain, professional lighting, dramatic, camera pan left"
	if got != want {
		t.Fatalf("EnhancePrompt = %q, want %q", got, want)
	}

	if got := presets.EnhancePrompt("a red fox", "none", ""); got != "a red fox" {
		t.Fatalf("expected untouched prompt, got %q", got)
	}

	if got := presets.EnhancePrompt("a red fox", "vaporwave", "barrel_roll"); got != "a red fox" {
		t.Fatalf("expected unknown presets to be ignored, got %q", got)
	}
}

func TestTierCaps(t *testing.T) {
	tier, ok := presets.TierByName("low")
	if !ok {
		t.Fatal("expected low tier to resolve")
	}
	if !tier.CPUOffload || !tier.VAETiling {
		t.Fatalf("unexpected low tier flags: %+v", tier)
	}
	if tier.MaxResolution != "480p" || tier.MaxFrames != 49 {
		t.Fatalf("unexpected low tier caps: %+v", tier)
	}

	high, ok := presets.TierByName("high")
	if !ok {
		t.Fatal("expected high tier to resolve")
	}
	if high.CPUOffload || high.VAETiling {
		t.Fatalf("unexpected high tier flags: %+v", high)
	}
}
