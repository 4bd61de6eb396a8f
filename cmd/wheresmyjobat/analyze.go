package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wheresmyjobat/wheresmyjobat/internal/cli"
)

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Classify a single email without touching the tracker",
		Long: `Run one email through the classifier and print what it extracted.
The email body is read from the given file, or from stdin when no file
is named. Use --subject and --sender to supply the headers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().String("subject", "", "email subject line")
	cmd.Flags().String("sender", "", "email sender address")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	subject, _ := cmd.Flags().GetString("subject")
	sender, _ := cmd.Flags().GetString("sender")

	classifier, err := createClassifier()
	if err != nil {
		return fmt.Errorf("failed to configure classifier: %w", err)
	}
	if !classifier.Available() {
		return fmt.Errorf("no LLM API key configured")
	}

	var body []byte
	if len(args) == 1 {
		body, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
	} else {
		body, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	if subject == "" && len(strings.TrimSpace(string(body))) == 0 {
		return fmt.Errorf("nothing to analyze: provide a body or --subject")
	}

	cls, err := classifier.Classify(ctx, subject, string(body), sender)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	if cls.Company == "" && cls.Title == "" {
		fmt.Println(cli.FormatWarning("No job application information found"))
		return nil
	}

	fmt.Println(cli.FormatTitle("Analysis"))
	fmt.Printf("Company:    %s\n", cls.Company)
	fmt.Printf("Position:   %s\n", cls.Title)
	fmt.Printf("Stage:      %s (%s)\n", cli.FormatStage(cls.Tag.Canonical()), cls.Tag)
	fmt.Printf("Confidence: %d%%\n", cls.Confidence)
	return nil
}
