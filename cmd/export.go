package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/internal/export"
	"github.com/xkilldash9x/deedharvest/internal/observability"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all harvested records to an Excel workbook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := observability.GetLogger()
		defer observability.Sync()

		deps, err := buildDependencies(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer deps.close()

		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("creating %s: %w", exportOutput, err)
		}
		defer f.Close()

		exporter := export.New(deps.store, logger)
		if err := exporter.WriteTo(cmd.Context(), f); err != nil {
			return err
		}
		logger.Info("Workbook written", zap.String("path", exportOutput))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", export.Filename, "output workbook path")
}
