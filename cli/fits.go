package cli

import (
	"github.com/absmach/cohort/estimator"
	"github.com/absmach/cohort/manager"
	"github.com/absmach/cohort/pkg/dataset"
	"github.com/absmach/cohort/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	defOffset  uint64 = 0
	defLimit   uint64 = 10
	configPath string
	remote     bool
)

var csdk sdk.SDK

func SetSDK(s sdk.SDK) {
	csdk = s
}

func NewFitsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fits [start|view|list|cancel|rounds|predict]",
		Short: "Fits manager",
		Long:  `Start, view, list and cancel fits, and run predictions on finished ones.`,
	}

	startCmd := &cobra.Command{
		Use:   "start <name> <rows.json>",
		Short: "Start fit",
		Long: `Start a fit on a JSON array of rows.

Examples:
  # Fit on local workers with the manager defaults
  cohort-cli fits start iris ./iris.json

  # Fit on registered remote workers with a config file
  cohort-cli fits start iris ./iris.json --config=./fit.json --remote`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			var rows []dataset.Row
			if err := readJSONFile(args[1], &rows); err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			cfg := estimator.DefaultConfig()
			if configPath != "" {
				if err := readJSONFile(configPath, &cfg); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			f, err := csdk.StartFit(manager.FitRequest{
				Name:   args[0],
				Config: cfg,
				Rows:   rows,
				Remote: remote,
			})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, f)
		},
	}

	startCmd.Flags().StringVarP(&configPath, "config", "c", "", "JSON file with fit settings")
	startCmd.Flags().BoolVarP(&remote, "remote", "r", false, "Fit on registered remote workers")

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View fit",
		Long:  `View fit.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			f, err := csdk.GetFit(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, f)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List fits",
		Long:  `List fits.`,
		Run: func(cmd *cobra.Command, _ []string) {
			page, err := csdk.ListFits(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel fit",
		Long:  `Cancel a running fit.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			if err := csdk.CancelFit(args[0]); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logOKCmd(*cmd)
		},
	}

	roundsCmd := &cobra.Command{
		Use:   "rounds <id>",
		Short: "List rounds",
		Long:  `List the round history of a fit.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			page, err := csdk.ListRounds(args[0], defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	predictCmd := &cobra.Command{
		Use:   "predict <id> <feature>...",
		Short: "Predict",
		Long: `Predict a single row with a finished fit.

Examples:
  cohort-cli fits predict 3f1c... 5.1 3.5 1.4 0.2`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) < 2 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			features, err := parseFloats(args[1:])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}

			preds, err := csdk.Predict(args[0], [][]float64{features})
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, preds)
		},
	}

	cmd.AddCommand(startCmd)
	cmd.AddCommand(viewCmd)
	cmd.AddCommand(listCmd)
	cmd.AddCommand(cancelCmd)
	cmd.AddCommand(roundsCmd)
	cmd.AddCommand(predictCmd)

	cmd.PersistentFlags().Uint64VarP(
		&defOffset,
		"offset",
		"o",
		defOffset,
		"Offset",
	)

	cmd.PersistentFlags().Uint64VarP(
		&defLimit,
		"limit",
		"l",
		defLimit,
		"Limit",
	)

	return cmd
}
