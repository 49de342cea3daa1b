package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/medscript-analyzer/internal/bootstrap"
	"github.com/kirillkom/medscript-analyzer/internal/config"
	"github.com/kirillkom/medscript-analyzer/internal/core/domain"
	"github.com/kirillkom/medscript-analyzer/internal/core/pipeline"
	"github.com/kirillkom/medscript-analyzer/internal/observability/logging"
)

type globalFlags struct {
	logLevel  string
	rulesPath string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "medscript",
		Short:         "Medical document analysis pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.rulesPath, "rules", "", "Safety rules YAML file (overrides SAFETY_RULES_PATH)")

	cmd.AddCommand(analyzeCmd(flags), rulesCmd(flags))
	return cmd
}

func analyzeCmd(flags *globalFlags) *cobra.Command {
	var (
		contentType string
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Extract text from a document and print the analysis envelope as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(flags)
			if timeout <= 0 {
				timeout = cfg.JobTimeout
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runAnalyze(ctx, cfg, flags, args[0], contentType, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type of the file; detected from the extension when empty")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall analysis timeout (default JOB_TIMEOUT)")
	return cmd
}

func rulesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the effective safety rule set as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRules(loadConfig(flags), cmd.OutOrStdout())
		},
	}
}

func loadConfig(flags *globalFlags) config.Config {
	cfg := config.Load()
	if flags.rulesPath != "" {
		cfg.SafetyRulesPath = flags.rulesPath
	}
	return cfg
}

func runAnalyze(ctx context.Context, cfg config.Config, flags *globalFlags, path, contentType string, out io.Writer) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	resolved := domain.ResolveContentType(contentType, filepath.Base(path))
	if !domain.IsSupportedContentType(resolved) {
		return domain.WrapError(domain.ErrUnsupportedMediaType, "analyze", fmt.Errorf("%q", resolved))
	}

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Role:   bootstrap.RoleCLI,
		Logger: logging.NewCLILogger(flags.logLevel),
	})
	if err != nil {
		return err
	}
	defer app.Close()

	text, err := app.Extractor.Extract(ctx, content, resolved)
	if err != nil {
		return fmt.Errorf("extract text: %w", err)
	}
	result, err := app.Orchestrator.Analyze(ctx, text)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func runRules(cfg config.Config, out io.Writer) error {
	rules, err := pipeline.LoadSafetyRules(cfg.SafetyRulesPath)
	if err != nil {
		return err
	}
	data, err := rules.YAML()
	if err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	_, err = out.Write(data)
	return err
}
