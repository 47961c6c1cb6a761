// Forge CLI — инструмент командной строки для сборок и выполнений
// функций через HTTP API.
//
// Использование:
//
//	forge [--api-url URL] --tenant ID [--token TOKEN] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	build      Управление сборками
//	execution  Выполнения и синхронные вызовы функций
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Forge/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL, tenantID, token string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "forge",
		Short:         "Forge CLI — functions build and execution tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", os.Getenv("FORGE_TENANT"), "Tenant ID")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("FORGE_OPERATOR_TOKEN"), "Operator API token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, tenantID, token) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewBuildCmd(clientFn, outputFn),
		cli.NewExecutionCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
