package presets

import "strings"

// EnhancePrompt appends the style preset's descriptor and a camera direction
// to the base prompt. Unknown style or motion names are ignored so a prompt
// is never lost to a bad preset reference.
func EnhancePrompt(prompt, styleName, cameraMotion string) string {
	enhanced := strings.TrimSpace(prompt)

	if style, ok := StyleByName(styleName); ok && style.Suffix != "" {
		enhanced = enhanced + ", " + style.Suffix
	}

	motion := normalizeName(cameraMotion)
	if motion != "" && ValidCameraMotion(motion) {
		enhanced = enhanced + ", camera " + strings.ReplaceAll(motion, "_", " ")
	}

	return enhanced
}
