package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/glimte/combus-go/config"
	"github.com/glimte/combus-go/internal/journal"
)

var (
	version = "dev"
)

func main() {
	var (
		configPath string
		journalDir string
	)

	loadConfig := func() (config.Config, error) {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return cfg, err
			}
			cfg = loaded
		}
		if journalDir != "" {
			cfg.Broker.JournalDir = journalDir
		}
		return cfg, nil
	}

	openJournal := func() (*journal.Journal, error) {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		return journal.Open(cfg.Broker.JournalDir, journal.WithLogger(cfg.Logger()))
	}

	rootCmd := &cobra.Command{
		Use:     "combus",
		Short:   "Inspect a combus broker journal",
		Long:    "combus inspects the append-only journal of a combus broker: event counts, the queue a restart would rebuild, and dead-lettered envelopes.",
		Version: version,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a combus YAML config file")
	rootCmd.PersistentFlags().StringVarP(&journalDir, "dir", "d", "", "Journal directory (overrides config)")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show journal event counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			jnl, err := openJournal()
			if err != nil {
				return err
			}
			defer jnl.Close()

			stats, err := jnl.Stats()
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "EVENT\tCOUNT")
			for _, event := range []journal.Event{
				journal.EventSend, journal.EventReceive, journal.EventAck,
				journal.EventRetry, journal.EventDLQ,
			} {
				fmt.Fprintf(w, "%s\t%d\n", event, stats.Records[event])
			}
			fmt.Fprintf(w, "\nrecords with errors\t%d\n", stats.Errors)
			fmt.Fprintf(w, "dead-letter entries\t%d\n", stats.DeadLetter)
			return w.Flush()
		},
	}

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Preview the queue a restart would rebuild",
		RunE: func(cmd *cobra.Command, args []string) error {
			jnl, err := openJournal()
			if err != nil {
				return err
			}
			defer jnl.Close()

			result, err := jnl.Replay()
			if err != nil {
				return fmt.Errorf("failed to replay journal: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATE\tID\tTO\tTYPE\tTOPIC\tATTEMPTS")
			for _, env := range result.Pending {
				fmt.Fprintf(w, "pending\t%s\t%s\t%s\t%s\t%d\n",
					env.ID, env.To, env.Type, env.Topic, env.Attempts)
			}
			for _, env := range result.Inflight {
				fmt.Fprintf(w, "inflight\t%s\t%s\t%s\t%s\t%d\n",
					env.ID, env.To, env.Type, env.Topic, env.Attempts)
			}
			if result.Skipped > 0 {
				fmt.Fprintf(w, "\nskipped corrupt lines\t%d\n", result.Skipped)
			}
			return w.Flush()
		},
	}

	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "List dead-lettered envelopes",
		RunE: func(cmd *cobra.Command, args []string) error {
			jnl, err := openJournal()
			if err != nil {
				return err
			}
			defer jnl.Close()

			records, err := jnl.ReadDeadLetters()
			if err != nil {
				return fmt.Errorf("failed to read dead-letter journal: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTO\tTOPIC\tATTEMPTS\tERROR")
			for _, rec := range records {
				if rec.Envelope == nil {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					rec.Envelope.ID, rec.Envelope.To, rec.Envelope.Topic,
					rec.Envelope.Attempts, rec.Error)
			}
			return w.Flush()
		},
	}

	rootCmd.AddCommand(statsCmd, queueCmd, dlqCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
