package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haldis/strand/internal/agent"
	"github.com/haldis/strand/internal/checkpoint"
	"github.com/haldis/strand/internal/config"
	"github.com/haldis/strand/internal/observability"
	"github.com/haldis/strand/pkg/models"
)

func newChatCommand() *cobra.Command {
	var (
		configPath string
		persona    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "One-shot local chat against the in-memory stack",
		Long: "Starts a local REPL with memory checkpoints and no search backend.\n" +
			"Useful for trying prompts and personas without any infrastructure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			return runChat(cfg, persona)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "optional configuration file (for llm credentials)")
	cmd.Flags().StringVar(&persona, "persona", "", "persona bundle id to start with")
	return cmd
}

func runChat(cfg *config.Config, persona string) error {
	logger := observability.NewLogger(observability.LogConfig{Level: "warn", Format: "text"})

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	runtime, err := agent.NewRuntime(provider, checkpoint.NewMemoryStore(), agent.Options{
		Logger: logger,
		Loop: agent.LoopConfig{
			MaxCycles: cfg.Agent.MaxCycles,
			MaxTokens: cfg.Agent.MaxTokens,
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	enabled := []string(nil)
	if persona != "" {
		enabled = []string{"persona"}
	}

	fmt.Println("strand chat — type a message, ctrl-d to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		req := models.TurnRequest{
			ThreadID:     "local",
			UserID:       1,
			Platform:     models.PlatformWeb,
			Language:     "en",
			Text:         text,
			EnabledTools: enabled,
		}
		for ev := range runtime.SubmitTurn(ctx, req) {
			switch ev.Type {
			case models.EventTextChunk:
				fmt.Println(ev.Text)
			case models.EventSuggestions:
				if len(ev.Suggestions) > 0 {
					fmt.Println("suggestions:", strings.Join(ev.Suggestions, " | "))
				}
			}
		}
	}
}
