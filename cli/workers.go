package cli

import "github.com/spf13/cobra"

func NewWorkersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers [view|list]",
		Short: "Workers registry",
		Long:  `View registered workers and their liveness.`,
	}

	viewCmd := &cobra.Command{
		Use:   "view <id>",
		Short: "View worker",
		Long:  `View worker.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			w, err := csdk.GetWorker(args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, w)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		Long:  `List workers.`,
		Run: func(cmd *cobra.Command, _ []string) {
			page, err := csdk.ListWorkers(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	cmd.AddCommand(viewCmd)
	cmd.AddCommand(listCmd)

	cmd.PersistentFlags().Uint64VarP(&defOffset, "offset", "o", defOffset, "Offset")
	cmd.PersistentFlags().Uint64VarP(&defLimit, "limit", "l", defLimit, "Limit")

	return cmd
}
