package presets

import "fmt"

// Dimensions converts a resolution preset and aspect ratio into concrete
// pixel dimensions. The 16:9 presets are returned as-is; other ratios keep
// the preset's pixel budget and reshape it, rounding each side down to a
// multiple of 8 as the model requires.
func Dimensions(resolution, aspectRatio string) (int, int, error) {
	res, ok := ResolutionByName(resolution)
	if !ok {
		return 0, 0, fmt.Errorf("unknown resolution %q", resolution)
	}
	ratio, ok := AspectRatioByName(aspectRatio)
	if !ok {
		return 0, 0, fmt.Errorf("unknown aspect ratio %q", aspectRatio)
	}
	if ratio.RatioW == 16 && ratio.RatioH == 9 {
		return res.Width, res.Height, nil
	}

	area := res.Width * res.Height
	height := isqrt(area * ratio.RatioH / ratio.RatioW)
	width := height * ratio.RatioW / ratio.RatioH

	width = roundDownToMultiple(width, 8)
	height = roundDownToMultiple(height, 8)
	if width < 8 {
		width = 8
	}
	if height < 8 {
		height = 8
	}
	return width, height, nil
}

// DivisibleBy8 reports whether both dimensions satisfy the model's alignment
// constraint.
func DivisibleBy8(width, height int) bool {
	return width > 0 && height > 0 && width%8 == 0 && height%8 == 0
}

func roundDownToMultiple(value, multiple int) int {
	if multiple <= 0 {
		return value
	}
	return (value / multiple) * multiple
}

// isqrt returns the floor of the square root of n.
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
