package main

import (
	"fmt"
	"os"

	"github.com/mgarrido/lumicat/internal/client"
	"github.com/spf13/cobra"
)

var bansFlags struct {
	adminKey string
	apiURL   string
}

var bansCmd = &cobra.Command{
	Use:   "bans",
	Short: "List actively banned IPs",
	RunE:  runBans,
}

var unbanCmd = &cobra.Command{
	Use:   "unban <ip>",
	Short: "Remove the ban for an IP",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnban,
}

func init() {
	rootCmd.AddCommand(bansCmd)
	rootCmd.AddCommand(unbanCmd)

	for _, cmd := range []*cobra.Command{bansCmd, unbanCmd} {
		cmd.Flags().StringVar(&bansFlags.adminKey, "admin-key", os.Getenv("LUMICAT_ADMIN_KEY"), "admin key for authentication")
		cmd.Flags().StringVar(&bansFlags.apiURL, "api-url", getEnv("LUMICAT_API_URL", "http://localhost:8080"), "API server URL")
	}
}

func adminClient() (*client.Client, error) {
	if bansFlags.adminKey == "" {
		return nil, fmt.Errorf("admin key required (use --admin-key flag or LUMICAT_ADMIN_KEY env var)")
	}
	return client.NewClient(bansFlags.apiURL, bansFlags.adminKey, getEnv("LUMICAT_ADMIN_KEY_HEADER", "X-Admin-Key")), nil
}

func runBans(cmd *cobra.Command, args []string) error {
	c, err := adminClient()
	if err != nil {
		return err
	}

	resp, err := c.ListBans()
	if err != nil {
		return err
	}

	if len(resp.Bans) == 0 {
		fmt.Println("No active bans.")
		return nil
	}
	for _, ip := range resp.Bans {
		fmt.Println(ip)
	}
	return nil
}

func runUnban(cmd *cobra.Command, args []string) error {
	c, err := adminClient()
	if err != nil {
		return err
	}

	resp, err := c.Unban(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Ban removed for %s.\n", resp.IP)
	return nil
}
