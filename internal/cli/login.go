package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ansibot/ansibot/internal/config"
	"github.com/ansibot/ansibot/internal/controller"
	"github.com/ansibot/ansibot/internal/redact"
)

var loginUsername string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against the automation controller and store a token",
	RunE:  runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Controller username")
}

func runLogin(cmd *cobra.Command, args []string) error {
	printHeader("🔑 AnsiBot Login")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.Controller.BaseURL) == "" {
		return fmt.Errorf("controller.baseUrl is not configured")
	}

	reader := bufio.NewReader(os.Stdin)
	username := strings.TrimSpace(loginUsername)
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return err
		}
		username = strings.TrimSpace(line)
	}
	fmt.Print("Password: ")
	line, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	password := strings.TrimRight(line, "\r\n")

	client := controller.NewClient(cfg.Controller.BaseURL, cfg.Controller.RequestTimeout, cfg.Controller.InsecureSkipVerify)
	creds, err := client.Login(context.Background(), username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Println(color.GreenString("Authenticated against %s", cfg.Controller.BaseURL))

	if creds.Token == "" {
		fmt.Println(color.YellowString("The controller did not issue a token; credentials were verified but nothing was stored."))
		return nil
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()
	if err := rt.timeline.SetSetting("controller.token", creds.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	fmt.Printf("Stored controller token %s\n", redact.MaskSecret(creds.Token))
	return nil
}
