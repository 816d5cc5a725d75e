package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"devrank/config"
	"devrank/logger"
	"devrank/models"
	"devrank/service"
)

type app struct {
	cfg      *config.Config
	logLevel string
	out      io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{cfg: config.NewConfig(), out: out}

	root := &cobra.Command{
		Use:           "devrank",
		Short:         "Rank GitHub developers by location",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Load(); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := logger.Initialize(a.cfg.LogLevel); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			if a.logLevel != "" {
				if err := logger.SetLevel(a.logLevel); err != nil {
					return fmt.Errorf("invalid --log-level: %w", err)
				}
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	root.AddCommand(a.searchCmd(), a.lookupCmd(), a.serveCmd())
	return root
}

func (a *app) searchCmd() *cobra.Command {
	var (
		location string
		sort     string
		page     int
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank developers in a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			if location == "" && len(a.cfg.Locations) > 0 {
				location = a.cfg.Locations[0]
			}
			dim := a.cfg.Sort
			if sort != "" {
				var err error
				if dim, err = models.ParseSortDimension(sort); err != nil {
					return err
				}
			}

			ranker, err := service.NewRanker(a.cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := ranker.SearchByLocation(ctx, models.SearchQuery{Location: location, Sort: dim, Page: page}, a.cfg.GitHubToken)
			if res != nil {
				if werr := a.print(res); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "Location filter (defaults to the first of LOCATIONS)")
	cmd.Flags().StringVarP(&sort, "sort", "s", "", "Sort dimension: followers, repositories or joined")
	cmd.Flags().IntVarP(&page, "page", "p", 1, "Result page")
	return cmd
}

func (a *app) lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <handle>",
		Short: "Show one developer profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ranker, err := service.NewRanker(a.cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			profile, ok := ranker.LookupByHandle(ctx, args[0], a.cfg.GitHubToken)
			if !ok {
				return fmt.Errorf("no profile found for %q", args[0])
			}
			return a.print(profile)
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ranking service with its refresh loop and HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := service.NewService(a.cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Error during service shutdown: %v\n", err)
				}
			}()
			return svc.Start()
		},
	}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
