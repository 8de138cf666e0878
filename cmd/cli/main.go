package main

import (
	"log"

	"github.com/absmach/cohort/cli"
	"github.com/absmach/cohort/pkg/sdk"
	"github.com/spf13/cobra"
)

const (
	defManagerURL      = "http://localhost:7070"
	defTLSVerification = false
)

func main() {
	var (
		managerURL      string
		tlsVerification bool
	)

	rootCmd := &cobra.Command{
		Use:   "cohort-cli",
		Short: "Cohort CLI",
		Long:  `Cohort CLI is a command line interface for starting fits and querying the Cohort manager.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			sdkConf := sdk.Config{
				ManagerURL:      managerURL,
				TLSVerification: tlsVerification,
			}
			cli.SetSDK(sdk.NewSDK(sdkConf))
		},
	}

	rootCmd.PersistentFlags().StringVarP(&managerURL, "manager-url", "m", defManagerURL, "Manager URL")
	rootCmd.PersistentFlags().BoolVarP(&tlsVerification, "tls-verification", "t", defTLSVerification, "Verify TLS certificates")

	rootCmd.AddCommand(cli.NewFitsCmd())
	rootCmd.AddCommand(cli.NewWorkersCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
