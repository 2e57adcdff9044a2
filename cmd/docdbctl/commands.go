package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/andreyvit/docdb/localdb"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	dbPath      string
	backendName string
	compression string
	verbose     bool

	rootCmd = &cobra.Command{
		Use:           "docdbctl",
		Short:         "Inspect and edit a local docdb database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Print every document, view row and key",
		Args:  cobra.NoArgs,
		RunE:  runDump,
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print document counts and storage sizes",
		Args:  cobra.NoArgs,
		RunE:  runStats,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&dbPath, "db", "", "database file (bolt) or directory (badger)")
	pf.StringVar(&backendName, "backend", "", "storage engine: bolt, badger or memory")
	pf.StringVar(&compression, "compression", "", "compression for written documents: none, snappy, zstd or lz4")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log every write")

	dumpCmd.Flags().Bool("rows-only", false, "omit view rows and keys")

	rootCmd.AddCommand(dumpCmd, statsCmd, kvCmd)
}

// withDB loads the config, applies flag overrides and runs f against the
// opened database.
func withDB(cmd *cobra.Command, f func(ctx context.Context, db *localdb.DB) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if dbPath != "" {
		cfg.Path = dbPath
	}
	if backendName != "" {
		cfg.Backend = backendName
	}
	if compression != "" {
		if cfg.Compression, err = localdb.ParseCompression(compression); err != nil {
			return err
		}
	}
	if verbose {
		cfg.Verbose = true
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	db, err := cfg.open()
	if err != nil {
		return err
	}
	defer db.Close()
	return f(cmd.Context(), db)
}

func runDump(cmd *cobra.Command, args []string) error {
	flags := localdb.DumpAll
	if rowsOnly, _ := cmd.Flags().GetBool("rows-only"); rowsOnly {
		flags = localdb.DumpCollectionHeaders | localdb.DumpRows
	}
	return withDB(cmd, func(ctx context.Context, db *localdb.DB) error {
		s, err := db.Dump(ctx, flags)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), s)
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withDB(cmd, func(ctx context.Context, db *localdb.DB) error {
		s, err := db.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), s.String())
		return nil
	})
}
