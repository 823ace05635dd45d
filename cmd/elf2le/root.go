package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ceionia/elf2le/internal/convert"
	"github.com/ceionia/elf2le/internal/lestub"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type rootOptions struct {
	verbose       bool
	configPath    string
	outDir        string
	stubProfile   string
	loaderVersion string
	parallelism   int
	strict        bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "elf2le [-v] <path-to-elf> [paths...]",
		Short: "Convert i386 ELF relocatable objects into DOS/OS2 LE executables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, args, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose diagnostics")
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to an optional config file")
	flags.StringVar(&opts.outDir, "out-dir", "", "directory to write <name>.elf/<name>.exe into")
	flags.StringVar(&opts.stubProfile, "stub-profile", "", fmt.Sprintf("LE stub profile to use (%v)", lestub.Names()))
	flags.StringVar(&opts.loaderVersion, "loader-version", "", "target loader version, checked against the stub profile's constraint")
	flags.IntVar(&opts.parallelism, "parallelism", 0, "maximum number of input files converted concurrently")
	flags.BoolVar(&opts.strict, "strict", false, "treat unsupported or unresolvable relocations as fatal")

	return cmd
}

func runConvert(cmd *cobra.Command, args []string, opts *rootOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	applyFlagOverrides(cmd, opts, cfg)

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	convOpts := convert.Options{
		OutDir:        cfg.OutDir,
		StubProfile:   cfg.StubProfile,
		LoaderVersion: cfg.LoaderVersion,
		Strict:        cfg.Strict,
	}

	eg := &errgroup.Group{}
	eg.SetLimit(max(cfg.Parallelism, 1))

	for _, path := range args {
		eg.Go(func() error {
			result, err := convert.File(logger, path, convOpts)
			if err != nil {
				return fmt.Errorf("failed to convert '%s': %w", path, err)
			}

			reportSuccess(cmd, path, result)

			return nil
		})
	}

	return eg.Wait()
}

func applyFlagOverrides(cmd *cobra.Command, opts *rootOptions, cfg *config) {
	flags := cmd.Flags()

	if flags.Changed("out-dir") {
		cfg.OutDir = opts.outDir
	}

	if flags.Changed("stub-profile") {
		cfg.StubProfile = opts.stubProfile
	}

	if flags.Changed("loader-version") {
		cfg.LoaderVersion = opts.loaderVersion
	}

	if flags.Changed("parallelism") {
		cfg.Parallelism = opts.parallelism
	}

	if flags.Changed("strict") {
		cfg.Strict = opts.strict
	}
}

func reportSuccess(cmd *cobra.Command, path string, result *convert.Result) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s: %d text page(s), %d data page(s)\n", path, result.Stats.TextPages, result.Stats.DataPages)
	fmt.Fprintf(out, "%s: %d bytes of fixup records\n", path, result.Stats.FixupBytes)
	fmt.Fprintf(out, "%s: wrote %s, %d bytes (data pages at 0x%x)\n", path, result.ExecutablePath, result.Stats.TotalSize, result.Stats.DataPagesOffset)
}
