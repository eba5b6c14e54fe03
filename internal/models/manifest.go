package models

// File describes one entry in the model manifest. Category is the
// subdirectory under the models root where the server expects the file.
type File struct {
	Name     string
	Category string
	SizeGB   float64
	Required bool
	Purpose  string
}

var manifest = []File{
	{
		Name:     "qwen_2.5_vl_7b_fp8_scaled.safetensors",
		Category: "text_encoders",
		SizeGB:   7.5,
		Required: true,
		Purpose:  "primary text encoder",
	},
	{
		// Every workflow wires this into the dual CLIP loader, so it is
		// required even though it only matters for rendered text.
		Name:     "byt5_small_glyphxl_fp16.safetensors",
		Category: "text_encoders",
		SizeGB:   0.5,
		Required: true,
		Purpose:  "glyph text encoder",
	},
	{
		Name:     "hunyuanvideo1.5_720p_t2v_fp16.safetensors",
		Category: "diffusion_models",
		SizeGB:   16.0,
		Required: true,
		Purpose:  "text-to-video diffusion weights",
	},
	{
		Name:     "hunyuanvideo1.5_720p_i2v_fp16.safetensors",
		Category: "diffusion_models",
		SizeGB:   16.0,
		Required: false,
		Purpose:  "image-to-video diffusion weights",
	},
	{
		Name:     "hunyuanvideo1.5_1080p_sr_distilled_fp16.safetensors",
		Category: "diffusion_models",
		SizeGB:   8.0,
		Required: false,
		Purpose:  "super resolution pass",
	},
	{
		Name:     "hunyuanvideo15_vae_fp16.safetensors",
		Category: "vae",
		SizeGB:   1.0,
		Required: true,
		Purpose:  "video VAE",
	},
}

// Manifest returns the model files the generation workflows reference.
func Manifest() []File {
	out := make([]File, len(manifest))
	copy(out, manifest)
	return out
}
