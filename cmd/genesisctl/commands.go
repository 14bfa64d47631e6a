package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/genesis/internal/buildconfig"
	"github.com/Harshitk-cp/genesis/internal/config"
	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/events"
	"github.com/Harshitk-cp/genesis/internal/llm"
	"github.com/Harshitk-cp/genesis/internal/strategy"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          "genesisctl",
		Short:        "Run and inspect genesis uncertainty refinement",
		Version:      buildconfig.Version(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Load()
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")

	logger := func() *zap.Logger {
		if !verbose {
			return zap.NewNop()
		}
		l, err := zap.NewDevelopment()
		if err != nil {
			return zap.NewNop()
		}
		return l
	}

	root.SetVersionTemplate(buildconfig.String() + "\n")
	root.AddCommand(newSimulateCmd(logger), newStrategiesCmd(), newWatchCmd(logger))
	return root
}

func newSimulateCmd(logger func() *zap.Logger) *cobra.Command {
	var (
		file     string
		userID   string
		provider string
		opts     simulationOptions
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Answer probes interactively for the declarations in a YAML file",
		Long: `simulate loads uncertainty declarations from a YAML file, opens a session and asks each
probe on stdout, reading answers from stdin. Confirmed fields are printed as they happen.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open declarations: %w", err)
			}
			defer f.Close()

			decls, err := domain.LoadDeclarationsYAML(f)
			if err != nil {
				return err
			}
			if userID != "" {
				for i := range decls {
					decls[i].UserID = userID
				}
			}

			if provider == "" {
				provider = config.LLMProvider()
			}
			p, err := llm.NewClient(provider, providerKey(provider), config.LLMModel())
			if err != nil {
				return err
			}

			if opts.MaxProbesPerSession <= 0 {
				opts.MaxProbesPerSession = config.MaxProbesPerSession()
			}
			if opts.MaxProbesPerField <= 0 {
				opts.MaxProbesPerField = config.MaxProbesPerField()
			}
			opts.Declarations = decls
			opts.Provider = p
			opts.Logger = logger()
			_, err = runSimulation(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with a top-level declarations list")
	cmd.Flags().StringVar(&userID, "user", "", "override the user_id of every declaration")
	cmd.Flags().StringVar(&provider, "provider", "", "probe content provider (template, openai, anthropic, gemini, mock)")
	cmd.Flags().IntVar(&opts.MaxProbesPerSession, "max-probes", 0, "probe budget for the session (defaults to MAX_PROBES_PER_SESSION)")
	cmd.Flags().IntVar(&opts.MaxProbesPerField, "max-per-field", 0, "probe budget per field (defaults to MAX_PROBES_PER_FIELD)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func providerKey(provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return config.OpenAIAPIKey()
	case llm.ProviderAnthropic:
		return config.AnthropicAPIKey()
	case llm.ProviderGemini:
		return config.GeminiAPIKey()
	default:
		return ""
	}
}

func newStrategiesCmd() *cobra.Command {
	var field string

	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List the registered probing strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := strategy.NewDefaultRegistry()
			templates := registry.All()
			if field != "" {
				templates = registry.StrategiesForField(field)
			}

			out := cmd.OutOrStdout()
			for _, t := range templates {
				fmt.Fprintf(out, "%-22s %-14s %s\n", t.Name(), t.ProbeType(), strings.Join(t.ApplicableFields(), ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&field, "field", "", "only strategies applicable to this field")
	return cmd
}

func newWatchCmd(logger func() *zap.Logger) *cobra.Command {
	var channel string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print events published by genesis servers through Postgres NOTIFY",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL := config.DatabaseURL()
			if dbURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			if channel == "" {
				channel = config.EventChannel()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := pgxpool.New(ctx, dbURL)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			out := cmd.OutOrStdout()
			notifier := events.NewPGNotifier(pool, channel, logger())
			fmt.Fprintf(out, "listening on %s\n", channel)
			return notifier.Listen(ctx, func(_ context.Context, e domain.Event) {
				fmt.Fprintln(out, formatEvent(e))
			})
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "NOTIFY channel (defaults to EVENT_CHANNEL)")
	return cmd
}

func formatEvent(e domain.Event) string {
	ts := e.OccurredAt.Format("15:04:05")
	switch e.Type {
	case domain.EventFieldConfirmed:
		return fmt.Sprintf("%s %s confirmed %v = %v", ts, e.UserID, e.Payload["field"], e.Payload["value"])
	case domain.EventSessionCompleted:
		return fmt.Sprintf("%s %s session completed (%v)", ts, e.UserID, e.Payload["reason"])
	default:
		return fmt.Sprintf("%s %s %s %v", ts, e.UserID, e.Type, e.Payload)
	}
}
