package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"streamrelay/config"
	"streamrelay/internal/browser"
	"streamrelay/models"
	"streamrelay/services/batch"
	"streamrelay/services/bypass"
	"streamrelay/services/catalog"
	"streamrelay/services/episodes"
	"streamrelay/services/resolver"
)

type commandContext struct {
	configPath string
	plain      bool
}

func (c *commandContext) settings() (config.Settings, error) {
	path := c.configPath
	if path == "" {
		path = os.Getenv("STREAMRELAY_CONFIG")
	}
	if path == "" {
		path = "cache/settings.json"
	}
	return config.NewManager(path).Load()
}

func requireCatalog(s config.Settings) error {
	if s.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.baseUrl is not set in the settings file")
	}
	return nil
}

func (c *commandContext) catalog(s config.Settings) *catalog.Client {
	httpClient := browser.NewClient(browser.Options{Timeout: s.CatalogTimeout(), Fingerprint: s.Upstream.TLSFingerprint})
	return catalog.NewClient(s.Catalog.BaseURL, httpClient, s.Relay.UserAgent)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "linkdump",
		Short:         "Resolve episode links from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", "", "Settings file path")
	rootCmd.PersistentFlags().BoolVar(&ctx.plain, "plain", false, "Print plain \"<episode>: <link>\" lines even on a terminal")

	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	return rootCmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var (
		mode    string
		trigger string
		title   string
		pages   int
	)
	cmd := &cobra.Command{
		Use:   "batch <series-session>",
		Short: "Resolve every episode of a series",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.settings()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			batchMode, ok := models.ParseBatchMode(mode)
			if !ok {
				return fmt.Errorf("unknown mode %q (parallel or sequential)", mode)
			}
			if err := requireCatalog(s); err != nil {
				return err
			}

			cc := episodes.NewCachedCatalog(episodes.NewCache(), ctx.catalog(s))
			bp := bypass.NewClient(s.Bypass.BaseURL, browser.NewClient(browser.Options{Timeout: s.BypassTimeout()}))
			orch := batch.New(cc, resolver.New(cc, bp, s.Relay.PublicURL), batch.Options{
				MaxParallel:    s.Batch.MaxParallel,
				FilenameSuffix: s.Batch.FilenameSuffix,
			})

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stderr := cmd.ErrOrStderr()
			req := batch.Request{
				SeriesSession: args[0],
				Title:         title,
				TotalPages:    pages,
				Mode:          batchMode,
				Trigger:       models.ParseTrigger(trigger, batchMode.DefaultTrigger()),
			}
			entries, runErr := orch.ResolveAll(runCtx, req, batch.Hooks{
				OnStatus: func(status string) { fmt.Fprintln(stderr, status) },
			})

			out := cmd.OutOrStdout()
			writeEntries(out, entries, ctx.plain || !isTerminal(out))
			if runErr != nil {
				return fmt.Errorf("batch stopped after %d entries: %w", len(entries), runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "sequential", "Batch mode: parallel or sequential")
	cmd.Flags().StringVar(&trigger, "trigger", "", "Link intent: open (playback) or background (download)")
	cmd.Flags().StringVar(&title, "title", "", "Series title for download filenames (defaults to the catalog title)")
	cmd.Flags().IntVar(&pages, "pages", 0, "Number of listing pages (defaults to the catalog's count)")
	return cmd
}

func newSearchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search the catalog for a series session id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.settings()
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			if err := requireCatalog(s); err != nil {
				return err
			}
			result, err := ctx.catalog(s).Search(context.Background(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(result.Data))
			for _, item := range result.Data {
				rows = append(rows, []string{item.Title, item.Type, strconv.Itoa(item.Episodes), item.Status, item.Session})
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Title", "Type", "Episodes", "Status", "Session"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func writeEntries(out io.Writer, entries []models.BatchEntry, plain bool) {
	if plain {
		for _, e := range entries {
			fmt.Fprintf(out, "%s: %s\n", e.DisplayNumber, e.Result.Display())
		}
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		state := "ok"
		if !e.Result.OK() {
			state = e.Result.Error
		}
		rows = append(rows, []string{e.DisplayNumber, e.Result.Label, state, e.Result.Display()})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Episode", "Quality", "State", "Link"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
	))
}
