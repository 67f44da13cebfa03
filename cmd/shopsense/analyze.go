package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/IshaanNene/ShopSense/internal/chatlog"
	"github.com/IshaanNene/ShopSense/internal/config"
)

var analyzeJSON bool

// analyzeCmd creates the "analyze" subcommand.
func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze a product page and print the report",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	cmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the whole run as JSON instead of the markdown report")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	rawURL := strings.TrimSpace(args[0])
	if err := config.ValidateURL(rawURL); err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, true)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	run, err := a.analyzer.Analyze(ctx, rawURL)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(run)
	}
	fmt.Fprintln(out, run.Markdown)
	return nil
}

// chatCmd creates the "chat" subcommand.
func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <url> <question...>",
		Short: "Ask a follow-up question about a product",
		Long: `Ask a question about the product at url. The product is analyzed first,
then the question is answered with the last few recorded turns as context.`,
		Args: cobra.MinimumNArgs(2),
		RunE: runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	rawURL := strings.TrimSpace(args[0])
	if err := config.ValidateURL(rawURL); err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	question := strings.TrimSpace(strings.Join(args[1:], " "))
	if question == "" {
		return fmt.Errorf("question is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg, true)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	answer, err := a.analyzer.Chat(ctx, rawURL, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)
	return nil
}

// historyCmd creates the "history" subcommand.
func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <url>",
		Short: "Print the recorded conversation for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg, true)
			url := strings.TrimSpace(args[0])
			store := chatlog.New(cfg.ChatLog.Path, logger)
			entries := store.Entries(url)
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, store.LastN(url, cfg.ChatLog.Retain))
				return nil
			}
			for i, e := range entries {
				fmt.Fprintf(out, "[%d] %s\nQ: %s\nA: %s\n\n", i+1, e.Timestamp, e.Question, e.Response)
			}
			return nil
		},
	}
}
