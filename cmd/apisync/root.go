package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "apisync",
	Short:         "Synchronize service API definitions and the product catalog",
	Long:          `apisync creates or updates one draft API per service on the API-management platform and publishes a product referencing all of them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}
