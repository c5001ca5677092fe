package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	flagConfig string
	flagAddr   string
	flagToken  string
)

var rootCmd = &cobra.Command{
	Use:   "flowdeskd",
	Short: "Notification scheduling and delivery daemon",
	Long: `flowdeskd runs the notification core for a team workspace: cron-driven
reminder jobs (weekly plans and reports, task due dates, meetings), a
durable delivery queue with retries, compliance alerts, and an admin HTTP
API for introspection and manual control.`,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "./config.json", "path to config file (json or yaml)")
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "http://127.0.0.1:8744", "admin API base URL (client commands)")
	rootCmd.PersistentFlags().StringVar(&flagToken, "token", "", "admin API bearer token (client commands)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(triggerCmd())
	rootCmd.AddCommand(rescheduleCmd())
	rootCmd.AddCommand(cancelCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
