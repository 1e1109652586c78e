package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/alenia-group/quotation-cli/internal/generator"
)

var (
	batchesUser  string
	batchesLimit int
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect quotation batches",
}

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("read"); err != nil {
			return err
		}

		st, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		batches, err := generator.NewReader(st).ListUserBatches(ctx, batchesUser, batchesLimit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(batches)
	},
}

var batchesProgressCmd = &cobra.Command{
	Use:   "progress <batch-id>",
	Short: "Show a batch's progress snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("read"); err != nil {
			return err
		}

		st, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		progress, err := generator.NewReader(st).Progress(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(progress)
	},
}

func init() {
	batchesListCmd.Flags().StringVar(&batchesUser, "user", "", "user id (required)")
	batchesListCmd.Flags().IntVar(&batchesLimit, "limit", 50, "max batches to list")
	_ = batchesListCmd.MarkFlagRequired("user")

	batchesCmd.AddCommand(batchesListCmd)
	batchesCmd.AddCommand(batchesProgressCmd)
	rootCmd.AddCommand(batchesCmd)
}
