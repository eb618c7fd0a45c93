package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xhad/carescope/internal/logger"
	cfgPkg "github.com/xhad/carescope/pkg/config"
	"github.com/xhad/carescope/pkg/service"
)

var (
	configPath string
	corpusPath string
	verbose    bool

	cfg *cfgPkg.Config
)

var rootCmd = &cobra.Command{
	Use:   "carescope",
	Short: "Cited answers and coverage analytics over healthcare facility records",
	Long: `carescope indexes a facility dataset and answers questions about it.
Every answer cites the rows it was built from. Desert detection and
facility validation run without a language model.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&corpusPath, "corpus", "", "Facility rows file (JSON or YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline stages")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	logger.SetVerbose(verbose)

	c, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if corpusPath != "" {
		c.Corpus.Path = corpusPath
	}
	if problems := c.Validate(); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.Error()
		}
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	cfg = c
	return nil
}

// setup builds the service and its first index from the configured corpus.
func setup(ctx context.Context) (*service.Service, error) {
	if cfg.Corpus.Path == "" {
		return nil, errors.New("no corpus file: set corpus.path, CARESCOPE_CORPUS or --corpus")
	}

	svc, err := service.NewFromConfig(ctx, cfg, buildProgress())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize service: %w", err)
	}

	h, err := svc.RebuildFile(ctx, cfg.Corpus.Path)
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to build index: %w", err)
	}
	logger.Info("indexed %d facilities from %s", h.Len(), cfg.Corpus.Path)
	return svc, nil
}
