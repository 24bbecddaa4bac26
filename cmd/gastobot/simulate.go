package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/console"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/intake"
	"github.com/susu3304/gastobot/internal/ledger"
	"github.com/susu3304/gastobot/internal/logging"
	"github.com/susu3304/gastobot/internal/money"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Classify one transaction in the terminal",
	Long: `Runs the classification dialog against an in-memory ledger. Type a button
number to press it, or any other text to answer an amount prompt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rawAmount, _ := cmd.Flags().GetString("amount")
		description, _ := cmd.Flags().GetString("description")
		payer, _ := cmd.Flags().GetString("payer")
		taxonomyPath, _ := cmd.Flags().GetString("taxonomy")

		amount, err := money.ParseAmount(rawAmount)
		if err != nil {
			return fmt.Errorf("--amount: %w", err)
		}
		tax, err := loadTaxonomy(taxonomyPath)
		if err != nil {
			return err
		}
		logger, err := logging.New("warn", "console")
		if err != nil {
			return err
		}
		defer logger.Sync()

		out := cmd.OutOrStdout()
		term := console.NewTerminal(out)
		dialogs := dialog.NewService(dialog.NewMachine(tax), term, logger)
		book := console.NewLedger(out)
		processor := intake.NewProcessor(dialogs, book, nil, nil, nil, logger)

		ctx := cmd.Context()
		done := make(chan struct{})
		go func() {
			defer close(done)
			report, err := processor.Process(ctx, intake.Item{
				ID:          "simulate",
				Operator:    intake.Operator{Name: payer, Recipient: "console"},
				Transaction: ledger.Transaction{Amount: amount, Description: description},
			})
			switch {
			case err != nil:
				logger.Error("simulation failed", zap.Error(err))
			case report.Declined:
				fmt.Fprintln(out, "Transacción descartada.")
			default:
				fmt.Fprintf(out, "%d entradas guardadas.\n", len(report.Saved))
			}
		}()

		return console.Drive(ctx, cmd.InOrStdin(), term, dialogs, done)
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().String("amount", "", "Transaction amount, e.g. 85.000 or 85k")
	simulateCmd.Flags().String("description", "Simulación", "Transaction description")
	simulateCmd.Flags().String("payer", "Operador", "Operator name recorded as payer")
	simulateCmd.Flags().String("taxonomy", "", "Taxonomy YAML file (defaults to the built-in one)")
	simulateCmd.MarkFlagRequired("amount")
}
