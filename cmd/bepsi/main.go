package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
	"github.com/dctrlwtf/bepsi/pkg/benchmark"
)

func main() {
	config, err := bepsi.LoadConfig(os.Getenv("BEPSI_CONFIG"))
	if err != nil {
		fmt.Println("failed to load config: ", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use: "bepsi",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	// Flags override whatever the config file and environment set
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Port, "webapi-port", config.WebAPI.Port, "Web API port")
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Bind, "webapi-bind", config.WebAPI.Bind, "Web API bind address")
	rootCmd.PersistentFlags().IntVar(&config.Machine.PulseMs, "pulse-ms", config.Machine.PulseMs, "GPIO pulse width in milliseconds")
	rootCmd.PersistentFlags().StringVar(&config.Machine.JournalDB, "journal-db", config.Machine.JournalDB, "Purchase journal DB file")
	rootCmd.PersistentFlags().StringVar(&config.Spark.BridgeURL, "spark-bridge", config.Spark.BridgeURL, "Spark bridge sidecar URL")
	viper.BindPFlags(rootCmd.PersistentFlags())

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the vending machine service",
		Run: func(cmd *cobra.Command, args []string) {
			Server(config)
		},
	}

	var benchStrategy string
	var benchPayments int
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark payment detection strategies against real wallets",
		Run: func(cmd *cobra.Command, args []string) {
			Bench(config, benchmark.Strategy(benchStrategy), benchPayments)
		},
	}
	benchCmd.Flags().StringVar(&benchStrategy, "strategy", string(benchmark.Hybrid),
		"detection strategy: hybrid, experimental or sats-race")
	benchCmd.Flags().IntVar(&benchPayments, "payments", 5, "payments to send per asset kind")

	configCmd := &cobra.Command{
		Use:   "showconf",
		Short: "Print the config state and exit",
		Run: func(cmd *cobra.Command, args []string) {
			o, _ := json.MarshalIndent(config, ">", " ")
			fmt.Println(string(o))
			os.Exit(0)
		},
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}
