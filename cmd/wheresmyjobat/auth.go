package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wheresmyjobat/wheresmyjobat/internal/cli"
)

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Connect a mailbox from the terminal",
		Long: `Run the OAuth flow without the web UI: print the authorization URL,
then paste the code Google hands back after consent.

For IMAP accounts no URL is involved; this just verifies the stored
credentials by logging in.`,
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	mbox, err := createMailbox()
	if err != nil {
		return fmt.Errorf("failed to configure mailbox: %w", err)
	}

	code := ""
	if url, err := mbox.AuthURL(); err == nil {
		fmt.Println(cli.FormatTitle("Connect your mailbox"))
		fmt.Println("Open this URL in a browser and grant read access:")
		fmt.Println()
		fmt.Println("  " + url)
		fmt.Println()
		fmt.Print("Paste the authorization code: ")

		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read code: %w", err)
		}
		code = strings.TrimSpace(line)
		if code == "" {
			return fmt.Errorf("no authorization code provided")
		}
	}

	identity, err := mbox.Authenticate(ctx, code)
	if err != nil {
		fmt.Println(cli.FormatError("Authentication failed"))
		return err
	}

	if identity == "" {
		identity = "mailbox"
	}
	fmt.Println(cli.FormatSuccess("Connected to " + identity))
	return nil
}
