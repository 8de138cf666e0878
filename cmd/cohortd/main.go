package main

import (
	"log"
	"os"

	"github.com/absmach/cohort/cohortd"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const pathEnv = ".env"

func main() {
	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	rootCmd := &cobra.Command{
		Use:   "cohortd",
		Short: "Cohort Daemon",
		Long:  `Cohort Daemon runs the manager and the remote workers of a Cohort deployment.`,
	}

	rootCmd.AddCommand(cohortd.NewManagerCmd())
	rootCmd.AddCommand(cohortd.NewWorkerCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
