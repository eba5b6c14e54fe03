// Package presets holds the generation preset tables: resolutions, aspect
// ratios, prompt styles, camera motions, and performance tiers. All lookups
// are case-insensitive on trimmed names.
package presets

import "strings"

// Resolution is a named pixel size at 16:9. Other aspect ratios are derived
// from the resolution's pixel budget, see Dimensions.
type Resolution struct {
	Name   string
	Width  int
	Height int
}

// Model constraint: both dimensions must divide evenly by 8, so the 480p
// preset is 848 wide rather than the nominal 854.
var resolutions = []Resolution{
	{Name: "480p", Width: 848, Height: 480},
	{Name: "720p", Width: 1280, Height: 720},
	{Name: "1080p", Width: 1920, Height: 1080},
}

// AspectRatio is a named width:height proportion.
type AspectRatio struct {
	Name   string
	RatioW int
	RatioH int
}

var aspectRatios = []AspectRatio{
	{Name: "16:9", RatioW: 16, RatioH: 9},
	{Name: "9:16", RatioW: 9, RatioH: 16},
	{Name: "1:1", RatioW: 1, RatioH: 1},
	{Name: "4:3", RatioW: 4, RatioH: 3},
	{Name: "21:9", RatioW: 21, RatioH: 9},
}

// Style is a prompt preset appended to the user's prompt text.
type Style struct {
	Name   string
	Suffix string
}

var styles = []Style{
	{Name: "cinematic", Suffix: "cinematic, film grain, professional lighting, dramatic"},
	{Name: "realistic", Suffix: "photorealistic, high quality, detailed"},
	{Name: "anime", Suffix: "anime style, vibrant colors, detailed animation"},
	{Name: "3d", Suffix: "3d render, octane render, high quality"},
	{Name: "artistic", Suffix: "artistic, stylized, creative"},
}

var cameraMotions = []string{
	"static",
	"zoom_in",
	"zoom_out",
	"pan_left",
	"pan_right",
	"tilt_up",
	"tilt_down",
	"orbit",
	"dynamic",
}

// Tier is a performance profile bounding how much work a generation may ask
// of the server. Tiers are an explicit input; nothing probes the hardware.
type Tier struct {
	Name          string
	CPUOffload    bool
	VAETiling     bool
	MaxResolution string
	MaxFrames     int
}

var tiers = []Tier{
	{Name: "low", CPUOffload: true, VAETiling: true, MaxResolution: "480p", MaxFrames: 49},
	{Name: "medium", CPUOffload: false, VAETiling: true, MaxResolution: "720p", MaxFrames: 73},
	{Name: "high", CPUOffload: false, VAETiling: false, MaxResolution: "1080p", MaxFrames: 125},
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ResolutionByName resolves a resolution preset.
func ResolutionByName(name string) (Resolution, bool) {
	normalized := normalizeName(name)
	for _, res := range resolutions {
		if res.Name == normalized {
			return res, true
		}
	}
	return Resolution{}, false
}

// AspectRatioByName resolves an aspect ratio preset.
func AspectRatioByName(name string) (AspectRatio, bool) {
	normalized := normalizeName(name)
	for _, ratio := range aspectRatios {
		if ratio.Name == normalized {
			return ratio, true
		}
	}
	return AspectRatio{}, false
}

// StyleByName resolves a style preset. Empty and "none" resolve to the zero
// Style with ok=true so callers can treat "no style" uniformly.
func StyleByName(name string) (Style, bool) {
	normalized := normalizeName(name)
	if normalized == "" || normalized == "none" {
		return Style{}, true
	}
	for _, style := range styles {
		if style.Name == normalized {
			return style, true
		}
	}
	return Style{}, false
}

// ValidCameraMotion reports whether the named camera motion exists. Empty is
// valid and means no camera direction.
func ValidCameraMotion(name string) bool {
	normalized := normalizeName(name)
	if normalized == "" {
		return true
	}
	for _, motion := range cameraMotions {
		if motion == normalized {
			return true
		}
	}
	return false
}

// TierByName resolves a performance tier.
func TierByName(name string) (Tier, bool) {
	normalized := normalizeName(name)
	for _, tier := range tiers {
		if tier.Name == normalized {
			return tier, true
		}
	}
	return Tier{}, false
}

// ResolutionNames returns the ordered resolution preset names.
func ResolutionNames() []string {
	names := make([]string, len(resolutions))
	for i, res := range resolutions {
		names[i] = res.Name
	}
	return names
}

// AspectRatioNames returns the ordered aspect ratio preset names.
func AspectRatioNames() []string {
	names := make([]string, len(aspectRatios))
	for i, ratio := range aspectRatios {
		names[i] = ratio.Name
	}
	return names
}

// StyleNames returns the ordered style preset names.
func StyleNames() []string {
	names := make([]string, len(styles))
	for i, style := range styles {
		names[i] = style.Name
	}
	return names
}

// CameraMotionNames returns the ordered camera motion names.
func CameraMotionNames() []string {
	names := make([]string, len(cameraMotions))
	copy(names, cameraMotions)
	return names
}

// TierNames returns the ordered performance tier names.
func TierNames() []string {
	names := make([]string, len(tiers))
	for i, tier := range tiers {
		names[i] = tier.Name
	}
	return names
}
