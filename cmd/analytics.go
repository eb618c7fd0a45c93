package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	desertRegion string
	outputJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Find the facilities most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var desertCmd = &cobra.Command{
	Use:   "desert [specialty]",
	Short: "Detect medical deserts for a specialty",
	Long: `Counts facilities offering the specialty in a region and grades the
gap: critical (none), severe (1-2), moderate (3-4) or none (5 or more).
Without --region every region is scanned, most severe first.`,
	Args: cobra.ExactArgs(1),
	RunE: runDesert,
}

var validateCmd = &cobra.Command{
	Use:   "validate [facility name]",
	Short: "Check a facility record for missing fields and implausible claims",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "Maximum number of results")
	desertCmd.Flags().StringVarP(&desertRegion, "region", "r", "", "Region to check")
	for _, c := range []*cobra.Command{searchCmd, desertCmd, validateCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
		rootCmd.AddCommand(c)
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.Search(cmd.Context(), strings.Join(args, " "), searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if outputJSON {
		return writeJSON(cmd, results)
	}
	printSearch(cmd.OutOrStdout(), results)
	return nil
}

func runDesert(cmd *cobra.Command, args []string) error {
	svc, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	specialty := args[0]
	if desertRegion == "" {
		coverage, err := svc.Coverage(specialty)
		if err != nil {
			return err
		}
		if outputJSON {
			return writeJSON(cmd, coverage)
		}
		printCoverage(cmd.OutOrStdout(), specialty, coverage)
		return nil
	}

	res, err := svc.DetectDesert(specialty, desertRegion)
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd, res)
	}
	printDesert(cmd.OutOrStdout(), res)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	svc, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer svc.Close()

	finding, err := svc.ValidateFacility(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if outputJSON {
		return writeJSON(cmd, finding)
	}
	printFinding(cmd.OutOrStdout(), finding)
	return nil
}
