package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// NewTranscriptTools builds the video transcript tool.
func NewTranscriptTools(b Binding) []Tool {
	return []Tool{&transcriptTool{b: b}}
}

type transcriptTool struct {
	b Binding
}

func (t *transcriptTool) Name() string { return "get_video_transcript" }

func (t *transcriptTool) Description() string {
	return "Get the transcript of a video. Useful for summarizing videos, answering " +
		"questions about video content, or extracting key points. Use this when the " +
		"user provides a video URL or asks about video content."
}

func (t *transcriptTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"video_url": {
				"type": "string",
				"description": "Video URL"
			},
			"language": {
				"type": "string",
				"description": "Preferred transcript language (e.g. 'en', 'ru')"
			}
		},
		"required": ["video_url"]
	}`)
}

type transcriptInput struct {
	VideoURL string `json:"video_url"`
	Language string `json:"language,omitempty"`
}

// Execute degrades through an ordered chain of soft failures, each with its
// own user-facing message. It never returns an error past this boundary.
func (t *transcriptTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in transcriptInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &Result{Content: "Invalid transcript arguments: " + err.Error(), IsError: true}, nil
	}

	if !t.b.TranscriptsEnabled {
		return &Result{Content: "The video transcript feature is currently disabled. " +
			"Ask an administrator to enable it if you need transcripts."}, nil
	}
	if t.b.Transcripts == nil {
		return &Result{Content: "The transcript service is not available right now. Please try again later."}, nil
	}

	lang := in.Language
	if lang == "" {
		lang = t.b.Language
	}

	text, err := t.b.Transcripts.Fetch(ctx, in.VideoURL, lang)
	if err != nil {
		t.b.Logger.Warn("transcript fetch failed",
			"thread_id", t.b.ThreadID,
			"error", err)
		return &Result{Content: classifyTranscriptError(err, lang)}, nil
	}
	if strings.TrimSpace(text) == "" {
		return &Result{Content: "The video has no transcript content."}, nil
	}
	return &Result{Content: text}, nil
}

// classifyTranscriptError maps backend failures onto tailored user-facing
// messages by substring, falling back to a generic explanation.
func classifyTranscriptError(err error, language string) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unavailable") || strings.Contains(msg, "private"):
		return "This video is unavailable or private. Please check that the URL is " +
			"correct and the video is publicly accessible."
	case strings.Contains(msg, "transcript") && (strings.Contains(msg, "disabled") || strings.Contains(msg, "not available")):
		return "This video does not have transcripts available. Transcripts may be " +
			"disabled by the uploader or not yet generated."
	case strings.Contains(msg, "language"):
		return "Transcript not available in language '" + language + "'. " +
			"Try requesting a different language or check available languages for this video."
	default:
		return "Unable to fetch the video transcript. Please verify the URL is correct " +
			"and try again. If the problem persists, the video may not have transcripts available."
	}
}
