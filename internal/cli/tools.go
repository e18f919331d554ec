package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ansibot/ansibot/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the automation actions the assistant can propose",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🧰 AnsiBot Tools")
		registry := tools.Builtin()
		for _, s := range registry.List() {
			kind := "read"
			if s.Kind == tools.KindWrite {
				kind = "write, requires approval"
			}
			fmt.Printf("%s (%s)\n  %s\n", s.Name, kind, s.Description)
		}
	},
}
