package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/streetferret/crudo"
	"github.com/streetferret/crudo/catalog"
	"github.com/streetferret/crudo/config"
	"github.com/streetferret/crudo/import_"
	"github.com/streetferret/crudo/log"
	"github.com/streetferret/crudo/stats"
)

func main() {
	if os.Getenv("GOMAXPROCS") == "" {
		runtime.GOMAXPROCS(runtime.NumCPU())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal("[fatal] ", err)
	}
}

func rootCmd() *cobra.Command {
	opts := &config.Options{}

	cmd := &cobra.Command{
		Use:           "crudo",
		Short:         crudo.Name,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.Quiet {
				log.SetMinLevel(log.LWarn)
			}
			if opts.Httpprofile != "" {
				stats.StartHttpPProf(opts.Httpprofile)
			}
		},
	}
	config.AddBaseFlags(cmd.PersistentFlags(), opts)

	cmd.AddCommand(catalogCmd(opts))
	cmd.AddCommand(allowlistCmd(opts))
	cmd.AddCommand(runCmd(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(crudo.Version)
		},
	})
	return cmd
}

func catalogCmd(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the layer keys in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.Resolve(cmd.Flags())
			if err != nil {
				return err
			}
			c, err := conf.LoadCatalog()
			if err != nil {
				return err
			}
			for _, k := range c.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func allowlistCmd(opts *config.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "allowlist [LAYER...]",
		Short: "Fetch and print the attribute allow-list of each layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := opts.Resolve(cmd.Flags())
			if err != nil {
				return err
			}
			c, err := conf.LoadCatalog()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				for _, layer := range args {
					if !c.Contains(layer) {
						return fmt.Errorf("layer %q not in catalog", layer)
					}
				}
				if c, err = catalog.New(args); err != nil {
					return err
				}
			}
			table, err := import_.AllowList(cmd.Context(), conf, c)
			if err != nil {
				return err
			}
			for _, layer := range c.Keys() {
				if _, ok := table.Lookup(layer); !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: -\n", layer)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", layer, strings.Join(table.Keys(layer), " "))
			}
			return nil
		},
	}
}

func runCmd(opts *config.Options) *cobra.Command {
	var pbfFile string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify all features of a PBF file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pbfFile == "" {
				return fmt.Errorf("missing --pbf")
			}
			conf, err := opts.Resolve(cmd.Flags())
			if err != nil {
				return err
			}
			summary, err := import_.Pbf(cmd.Context(), conf, pbfFile)
			if err != nil {
				return err
			}
			for _, c := range summary.Counts() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-8s %d\n", c.Layer, c.Geometry, c.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pbfFile, "pbf", "", "OSM PBF file")
	return cmd
}
