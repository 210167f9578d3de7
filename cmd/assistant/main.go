package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obd-backend/internal/database"
	"obd-backend/internal/llm"
	"obd-backend/internal/logging"
	"obd-backend/internal/services"
	"obd-backend/pkg/config"
)

func main() {
	var userID, question string

	cmd := &cobra.Command{
		Use:   "assistant",
		Short: "Ask a one-off diagnostics question from the terminal",
		Long: `Builds a full fault summary for the user (14-day window unless the
question names one), sends it to the language model and prints the answer.
Missing flags are prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if userID == "" {
				userID = prompt(cmd, in, "Enter user_id: ")
			}
			if question == "" {
				question = prompt(cmd, in, "Ask your question: ")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			db, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger.Named("clickhouse"))
			if err != nil {
				return err
			}
			defer db.Close()

			responder := llm.NewResponder(llm.NewOllamaClient(cfg.Ollama), logger)
			answer, err := services.NewDiagnosticsService(db, responder, nil, logger).Report(ctx, userID, question)
			if err != nil {
				logger.Error("report failed", zap.Error(err))
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "\n--- DiagnosticsAgent Response ---")
			fmt.Fprintln(out, answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "User UUID to report on")
	cmd.Flags().StringVarP(&question, "question", "q", "", "Question to ask")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) string {
	cmd.Print(label)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}
