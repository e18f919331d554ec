// Package cli implements the ansibot command line interface.
package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/ansibot/ansibot/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"     _              _ ____        _\n" +
		"    / \\   _ __  ___(_) __ )  ___ | |_\n" +
		"   / _ \\ | '_ \\/ __| |  _ \\ / _ \\| __|\n" +
		"  / ___ \\| | | \\__ \\ | |_) | (_) | |_\n" +
		" /_/   \\_\\_| |_|___/_|____/ \\___/ \\__|\n"
)

var rootCmd = &cobra.Command{
	Use:   "ansibot",
	Short: "AnsiBot - conversational automation assistant",
	Long:  color.CyanString(logo) + "\nDrive your automation controller through conversation, with every write gated by human approval.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title != "" {
		fmt.Println(title)
		fmt.Println("─────────────────────")
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(toolsCmd)
}
