package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Ask questions interactively",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	color.Cyan("\nAsk about facilities, deserts or a specific facility (type 'exit' to quit)")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	userPrompt := color.New(color.FgGreen).FprintfFunc()

	for {
		userPrompt(out, "\nYou: ")
		if !scanner.Scan() {
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if strings.ToLower(query) == "exit" {
			break
		}

		if cfg.UI.Streaming {
			assistant.Fprint(out, "Assistant: ")
			res, err := svc.ProcessStream(ctx, query, nil, func(chunk string) {
				assistant.Fprint(out, chunk)
			})
			fmt.Fprintln(out)
			if err != nil {
				color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			printResult(out, res, false)
			continue
		}

		spinner := getSpinner("Thinking...")
		res, err := svc.Process(ctx, query, nil)
		spinner.Finish()
		if err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		assistant.Fprintf(out, "Assistant: %s\n", res.Answer)
		printResult(out, res, false)
	}
	return scanner.Err()
}
