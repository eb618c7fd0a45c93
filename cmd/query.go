package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/agent"
)

var (
	queryIntent string
	queryJSON   bool
	queryTrace  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Answer a question with row citations",
	Long: `Runs the full pipeline: classify the question, retrieve similar
facilities, run desert detection or validation when asked for, and have the
language model write an answer that cites rows.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryIntent, "intent", "", "Force the intent: search, desert, validate or general")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output the full result as JSON")
	queryCmd.Flags().BoolVar(&queryTrace, "trace", false, "Show the reasoning steps")
	rootCmd.AddCommand(queryCmd)
}

func parseHint(s string) (*models.Intent, error) {
	if s == "" {
		return nil, nil
	}
	intent, ok := models.ParseIntent(s)
	if !ok {
		return nil, fmt.Errorf("unknown intent %q", s)
	}
	return &intent, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	hint, err := parseHint(queryIntent)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	query := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	var res *agent.Result
	if cfg.UI.Streaming && !queryJSON {
		assistant.Fprint(out, "Assistant: ")
		res, err = svc.ProcessStream(ctx, query, hint, func(chunk string) {
			assistant.Fprint(out, chunk)
		})
		fmt.Fprintln(out)
	} else {
		spinner := getSpinner("Thinking...")
		res, err = svc.Process(ctx, query, hint)
		spinner.Finish()
		if err == nil && !queryJSON {
			assistant.Fprintf(out, "Assistant: %s\n", res.Answer)
		}
	}

	if queryJSON && res != nil {
		data, jerr := json.MarshalIndent(res, "", "  ")
		if jerr != nil {
			return fmt.Errorf("failed to marshal result: %w", jerr)
		}
		fmt.Fprintln(out, string(data))
		return err
	}
	if err != nil {
		// Show what was gathered before the failure.
		if res != nil {
			printResult(out, res, true)
		}
		return err
	}
	printResult(out, res, queryTrace)
	return nil
}
