package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// NewImageDescriptionTools builds the image description tool.
func NewImageDescriptionTools(b Binding) []Tool {
	return []Tool{&imageDescriptionTool{b: b}}
}

type imageDescriptionTool struct {
	b Binding
}

func (t *imageDescriptionTool) Name() string { return "describe_image" }

func (t *imageDescriptionTool) Description() string {
	return "Describe and analyze images from URLs using AI vision. Useful for " +
		"understanding image content, extracting text from images, analyzing " +
		"visual elements, or answering questions about images. Use this when the " +
		"user provides an image URL or asks about image content. Supports detail " +
		"levels (low/standard/high) and custom prompts for specific analysis."
}

func (t *imageDescriptionTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"image_url": {
				"type": "string",
				"description": "URL of the image to describe. Must be publicly accessible (http:// or https://)."
			},
			"detail_level": {
				"type": "string",
				"description": "Level of detail: 'low' (1-2 sentences), 'standard' (balanced, default), 'high' (comprehensive analysis)"
			},
			"custom_prompt": {
				"type": "string",
				"description": "Optional prompt overriding the detail level, e.g. a specific question about the image"
			}
		},
		"required": ["image_url"]
	}`)
}

type imageDescriptionInput struct {
	ImageURL     string `json:"image_url"`
	DetailLevel  string `json:"detail_level,omitempty"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
}

var detailPrompts = map[string]string{
	"low": "Briefly describe what you see in this image in 1-2 sentences.",
	"standard": "Describe this image in detail. Include the main subject, " +
		"important visual elements and colors, the context or setting, any " +
		"visible text, and the overall mood or style.",
	"high": "Provide a comprehensive analysis of this image: all subjects and " +
		"objects, composition, lighting and color palette, setting and " +
		"background, any text or symbols, artistic style, and mood.",
}

// Execute degrades through an ordered chain of soft failures, mirroring the
// transcript tool. It never returns an error past this boundary.
func (t *imageDescriptionTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in imageDescriptionInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &Result{Content: "Invalid image description arguments: " + err.Error(), IsError: true}, nil
	}

	in.ImageURL = strings.TrimSpace(in.ImageURL)
	if in.ImageURL == "" {
		return &Result{Content: "Please provide an image URL to describe.", IsError: true}, nil
	}
	if !strings.HasPrefix(in.ImageURL, "http://") && !strings.HasPrefix(in.ImageURL, "https://") {
		return &Result{Content: "Invalid image URL. Please provide a URL starting with http:// or https://", IsError: true}, nil
	}

	if !t.b.VisionEnabled {
		return &Result{Content: "Image description is currently disabled. " +
			"Ask an administrator to enable the vision feature if you need it."}, nil
	}
	if t.b.Vision == nil {
		return &Result{Content: "The vision service is not available right now. Please try again later."}, nil
	}

	prompt := in.CustomPrompt
	if prompt == "" {
		level := in.DetailLevel
		if _, ok := detailPrompts[level]; !ok {
			if level != "" {
				t.b.Logger.Warn("unknown detail level, using standard",
					"thread_id", t.b.ThreadID,
					"detail_level", level)
			}
			level = "standard"
		}
		prompt = detailPrompts[level]
	}

	description, err := t.b.Vision.Describe(ctx, in.ImageURL, prompt)
	if err != nil {
		t.b.Logger.Warn("image description failed",
			"thread_id", t.b.ThreadID,
			"error", err)
		return &Result{Content: classifyVisionError(err)}, nil
	}
	return &Result{Content: description}, nil
}

// classifyVisionError maps backend failures onto tailored user-facing
// messages by substring, falling back to a generic explanation.
func classifyVisionError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return "Unable to connect to the vision service. Please try again in a moment."
	case strings.Contains(msg, "model") && strings.Contains(msg, "not found"):
		return "The vision model is not available right now. Please try again later."
	case strings.Contains(msg, "image") && (strings.Contains(msg, "invalid") || strings.Contains(msg, "format")):
		return "Unable to process the image. Please check that the URL points to a " +
			"supported image format (JPG, PNG, GIF, WebP) and is not corrupted."
	case strings.Contains(msg, "empty description"):
		return "Unable to describe the image. The vision model did not return a description."
	default:
		return "Unable to describe the image. Please verify the image URL is " +
			"publicly accessible and try again."
	}
}
