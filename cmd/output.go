package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/carescope/internal/models"
	"github.com/xhad/carescope/pkg/agent"
	"github.com/xhad/carescope/pkg/citation"
	"github.com/xhad/carescope/pkg/desert"
	"github.com/xhad/carescope/pkg/index"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionClearOnFinish(),
	)
}

// buildProgress drives a progress bar from index build callbacks. A new bar
// starts with each build.
func buildProgress() func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = getProgressBar(total, "Embedding facility profiles...")
		}
		bar.Set(done)
		if done >= total {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
			bar = nil
		}
	}
}

var (
	heading   = color.New(color.FgCyan, color.Bold)
	dim       = color.New(color.Faint)
	good      = color.New(color.FgGreen)
	bad       = color.New(color.FgRed)
	assistant = color.New(color.FgCyan)
)

func severityColor(s models.Severity) *color.Color {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case models.SeveritySevere:
		return color.New(color.FgRed)
	case models.SeverityModerate:
		return color.New(color.FgYellow)
	}
	return good
}

func printCitations(w io.Writer, cs []models.Citation) {
	if len(cs) == 0 {
		return
	}
	heading.Fprintln(w, "\nSources:")
	fmt.Fprint(w, citation.Render(cs))
}

func printTrace(w io.Writer, steps []models.AgentStep) {
	heading.Fprintln(w, "\nReasoning steps:")
	for i, s := range steps {
		fmt.Fprintf(w, "%d. %s: %s\n", i+1, s.Name, s.OutputSummary)
		if len(s.Citations) > 0 {
			dim.Fprintf(w, "   cites %d rows\n", len(s.Citations))
		}
	}
}

func printResult(w io.Writer, res *agent.Result, showTrace bool) {
	if res.Analysis != nil && res.Analysis.Note != "" {
		dim.Fprintf(w, "\n(%s)\n", res.Analysis.Note)
	}
	if showTrace {
		printTrace(w, res.Trace)
	}
	printCitations(w, res.FinalCitations)
}

func printSearch(w io.Writer, results []index.Result) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No facilities found.")
		return
	}
	for i, r := range results {
		rec := r.Record
		heading.Fprintf(w, "[%d] %s", i+1, rec.Name)
		dim.Fprintf(w, " (relevance %.3f)\n", r.Score)

		var loc []string
		for _, v := range []string{rec.City, rec.Region, rec.Country} {
			if v != "" {
				loc = append(loc, v)
			}
		}
		if len(loc) > 0 {
			fmt.Fprintf(w, "    Location: %s\n", strings.Join(loc, ", "))
		}
		if len(rec.Specialties) > 0 {
			fmt.Fprintf(w, "    Specialties: %s\n", strings.Join(rec.Specialties, ", "))
		}
		fmt.Fprintf(w, "    %s\n", models.CiteRecord(&rec))
	}
}

func printDesert(w io.Writer, res desert.Result) {
	severityColor(res.Severity).Fprintf(w, "%s in %s: %s", res.Specialty, res.Region, res.Severity)
	fmt.Fprintf(w, " (%d of %d facilities in region, %d nationally)\n",
		res.Count, res.RegionalFacilities, res.TotalFacilities)
	if res.IsDesert {
		bad.Fprintln(w, "Medical desert")
	}
	printCitations(w, res.Citations)
}

func printCoverage(w io.Writer, specialty string, coverage []desert.Result) {
	heading.Fprintf(w, "%s coverage by region\n", specialty)
	for _, res := range coverage {
		fmt.Fprintf(w, "  %-16s ", res.Region)
		severityColor(res.Severity).Fprintf(w, "%-9s", res.Severity)
		fmt.Fprintf(w, " %d facilities\n", res.Count)
	}
}

func printFinding(w io.Writer, f models.ValidationFinding) {
	heading.Fprintf(w, "%s (row %d)\n", f.Name, f.RowID)
	fmt.Fprintf(w, "Completeness: %.0f%%\n", f.CompletenessScore*100)
	if len(f.MissingFields) > 0 {
		fmt.Fprintf(w, "Missing: %s\n", strings.Join(f.MissingFields, ", "))
	}
	if len(f.SuspiciousClaims) == 0 {
		good.Fprintln(w, "No suspicious claims")
	}
	for _, c := range f.SuspiciousClaims {
		bad.Fprintf(w, "Suspicious %s: %s\n", c.Field, c.Reason)
	}
	if f.Citation != nil {
		fmt.Fprintf(w, "%s\n", f.Citation)
	}
}
