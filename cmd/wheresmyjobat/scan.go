package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/wheresmyjobat/wheresmyjobat/internal/cli"
	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
	"github.com/wheresmyjobat/wheresmyjobat/internal/monitor"
	"github.com/wheresmyjobat/wheresmyjobat/internal/store"
)

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan recent mail once and print what was found",
		Long: `Connect to the mailbox, classify recent job-related emails, and print
the resulting application list. Results are saved to the database so the
server picks them up on its next login.`,
		RunE: runScan,
	}

	cmd.Flags().Int64("max", 25, "maximum number of messages to scan")

	return cmd
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	maxMessages, _ := cmd.Flags().GetInt64("max")

	mbox, err := createMailbox()
	if err != nil {
		return fmt.Errorf("failed to configure mailbox: %w", err)
	}

	classifier, err := createClassifier()
	if err != nil {
		return fmt.Errorf("failed to configure classifier: %w", err)
	}
	if !classifier.Available() {
		return fmt.Errorf("no LLM API key configured; scanning needs a classifier")
	}

	code := ""
	if url, authErr := mbox.AuthURL(); authErr == nil {
		fmt.Println("Open this URL in a browser and grant read access:")
		fmt.Println()
		fmt.Println("  " + url)
		fmt.Println()
		fmt.Print("Paste the authorization code: ")
		line, readErr := bufio.NewReader(os.Stdin).ReadString('\n')
		if readErr != nil {
			return fmt.Errorf("failed to read code: %w", readErr)
		}
		code = strings.TrimSpace(line)
	}

	identity, err := mbox.Authenticate(ctx, code)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	db, err := openStorage()
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	st := store.New(db)
	if identity != "" {
		userID, userErr := db.EnsureUser(ctx, identity)
		if userErr != nil {
			return fmt.Errorf("failed to create user: %w", userErr)
		}
		apps, listErr := db.ListApplications(ctx, userID)
		if listErr != nil {
			return fmt.Errorf("failed to load applications: %w", listErr)
		}
		st.Reset(apps)
		st.SetUser(userID)
	}

	ids, err := mbox.ListCandidates(ctx, maxMessages)
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}
	if len(ids) == 0 {
		fmt.Println(cli.FormatSuccess("No new job-related mail found"))
		return nil
	}

	mon := monitor.New(monitor.Config{BatchSize: maxMessages}, mbox, classifier, st, nil)

	bar := progressbar.NewOptions(len(ids),
		progressbar.OptionSetDescription("classifying"),
		progressbar.OptionClearOnFinish(),
	)

	var result monitor.ScanResult
	// One batch per tick; loop until the candidate list is drained.
	for {
		r, scanErr := mon.ManualScan(ctx)
		_ = bar.Add(r.Scanned)
		result.Scanned += r.Scanned
		result.Created += r.Created
		result.Updated += r.Updated
		if scanErr != nil {
			_ = bar.Finish()
			return fmt.Errorf("scan failed: %w", scanErr)
		}
		if r.Scanned == 0 {
			break
		}
	}
	_ = bar.Finish()

	fmt.Println(cli.FormatTitle("Scan complete"))
	fmt.Printf("Scanned %d messages: %d new, %d advanced\n\n", result.Scanned, result.Created, result.Updated)

	printGrouped(st.Grouped())
	return nil
}

func printGrouped(snapshot model.Snapshot) {
	for _, stage := range model.Stages() {
		apps := snapshot[stage]
		if len(apps) == 0 {
			continue
		}
		fmt.Println(cli.FormatStage(stage))
		for _, app := range apps {
			fmt.Printf("  %s - %s\n", app.Company, app.Position)
		}
		fmt.Println()
	}
}
