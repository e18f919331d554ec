package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ansibot/ansibot/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ AnsiBot Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 AnsiBot Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:     ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:     ✗ Not found (" + path + ")")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:     ✗ %v\n", err)
			return
		}
		if cfg.Controller.BaseURL != "" {
			fmt.Println("Controller: ✓ " + cfg.Controller.BaseURL)
		} else {
			fmt.Println("Controller: ✗ Not configured")
		}
		if cfg.Planner.Model != "" {
			fmt.Println("Planner:    ✓ " + cfg.Planner.Model)
		} else {
			fmt.Println("Planner:    ✗ Not configured")
		}
		if cfg.Reasoner.Model != "" {
			fmt.Println("Reasoner:   ✓ " + cfg.Reasoner.Model)
		} else {
			fmt.Println("Reasoner:   ✗ Not configured")
		}
		if cfg.Channels.Slack.Enabled {
			fmt.Println("Slack:      ✓ Enabled")
		} else {
			fmt.Println("Slack:      ✗ Disabled")
		}
		if cfg.Audit.Enabled {
			fmt.Printf("Audit:      ✓ %d broker(s), topic %s\n", len(cfg.Audit.Brokers), cfg.Audit.Topic)
		} else {
			fmt.Println("Audit:      ✗ Disabled")
		}
	},
}
