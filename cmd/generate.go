package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alenia-group/quotation-cli/internal/ingest"
	"github.com/alenia-group/quotation-cli/internal/model"
)

var (
	generateFile     string
	generateTemplate string
	generateUser     string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Ingest a quotation spreadsheet and generate the batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("generate"); err != nil {
			return err
		}

		st, err := openStorage(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(generateFile)
		if err != nil {
			return eris.Wrapf(err, "open %s", generateFile)
		}
		defer f.Close()

		batch, err := ingest.ParseWorkbook(f, generateUser)
		if err != nil {
			return err
		}
		if err := st.SaveBatch(ctx, batch, model.ConfirmTTL); err != nil {
			return eris.Wrap(err, "save batch")
		}

		zap.L().Info("batch ingested",
			zap.String("batch_id", batch.ID),
			zap.Int("quotations", batch.TotalCount()),
		)

		templates, err := newTemplateRepo()
		if err != nil {
			return err
		}

		// CLI mode runs the pipeline in the foreground.
		gen := buildGenerator(templates)(st)
		if err := gen.Execute(ctx, batch.ID, generateTemplate); err != nil {
			return eris.Wrap(err, "generate batch")
		}

		final, err := st.GetBatch(ctx, batch.ID)
		if err != nil {
			return eris.Wrap(err, "reload batch")
		}
		zap.L().Info("batch generated",
			zap.String("batch_id", final.ID),
			zap.String("status", string(final.Status)),
			zap.Int("completed", final.CompletedCount()),
			zap.Int("failed", final.FailedCount()),
			zap.String("merged_pdf", final.MergedPDFPath),
			zap.String("zip", final.ZipFilePath),
		)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateFile, "file", "", "quotation spreadsheet (xlsx, required)")
	generateCmd.Flags().StringVar(&generateTemplate, "template", "standard", "template name")
	generateCmd.Flags().StringVar(&generateUser, "user", "cli", "user id owning the batch")
	_ = generateCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(generateCmd)
}
