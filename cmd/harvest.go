package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/internal/observability"
	"github.com/xkilldash9x/deedharvest/internal/scrape"
)

var harvestInputs scrape.Inputs

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Run one scraping session from the command line.",
	Long: `Runs a single scraping session to completion. CAPTCHA prompts are
published to the status feed; answer them through the serve front end's
/captcha endpoint (or write the value into the run's Redis slot directly).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := observability.GetLogger()
		defer observability.Sync()

		if err := harvestInputs.Validate(); err != nil {
			return err
		}

		deps, err := buildDependencies(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer deps.close()

		res := deps.orchestrator.Run(cmd.Context(), harvestInputs)
		logger.Info("Run finished", zap.String("outcome", string(res.Outcome)))
		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		if !res.OK() {
			return fmt.Errorf("run ended with outcome %s", res.Outcome)
		}
		return nil
	},
}

func init() {
	flags := harvestCmd.Flags()
	flags.StringVar(&harvestInputs.Username, "username", "", "portal login username")
	flags.StringVar(&harvestInputs.Password, "password", "", "portal login password")
	flags.StringVar(&harvestInputs.District, "district", "", "district option label, exactly as the portal shows it")
	flags.StringVar(&harvestInputs.DeedType, "deed-type", "", "deed type to search for")
	flags.StringVar(&harvestInputs.DateFrom, "date-from", "", "period start, YYYY-MM-DD")
	flags.StringVar(&harvestInputs.DateTo, "date-to", "", "period end, YYYY-MM-DD")

	_ = harvestCmd.MarkFlagRequired("username")
	_ = harvestCmd.MarkFlagRequired("password")
	_ = harvestCmd.MarkFlagRequired("district")
	_ = harvestCmd.MarkFlagRequired("deed-type")
	_ = harvestCmd.MarkFlagRequired("date-from")
	_ = harvestCmd.MarkFlagRequired("date-to")
}
