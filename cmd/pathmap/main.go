package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/pathmap/internal/config"
	"github.com/standardbeagle/pathmap/internal/debug"
	"github.com/standardbeagle/pathmap/internal/remap"
	"github.com/standardbeagle/pathmap/internal/version"
	"github.com/standardbeagle/pathmap/internal/watch"
	"github.com/standardbeagle/pathmap/pkg/pathutil"
)

var Version = version.Version

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", c.String("config"), err)
	}

	if dir := c.String("storage-dir"); dir != "" {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve storage dir %q: %w", dir, err)
		}
		cfg.StorageDir = absDir
	}
	if policy := c.String("policy"); policy != "" {
		if _, err := watch.ParsePolicy(policy); err != nil {
			return nil, err
		}
		cfg.Reload.Policy = policy
	}

	return cfg, nil
}

func newRemapper(cfg *config.Config) *remap.Remapper {
	r := remap.NewRemapper(cfg.StorageDir, cfg.Exclude)
	if err := r.Reload(); err != nil {
		// A broken mapping document is a warning, not a startup failure:
		// resolution falls back to identity until the file is fixed.
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	return r
}

func main() {
	app := &cli.App{
		Name:                   "pathmap",
		Usage:                  "Rewrite sandbox build paths back to developer-visible paths",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.ConfigFileName,
			},
			&cli.StringFlag{
				Name:    "storage-dir",
				Aliases: []string{"s"},
				Usage:   "Directory holding " + remap.MappingFileName + " (overrides config)",
			},
			&cli.StringFlag{
				Name:  "policy",
				Usage: "Reload policy: restart, ignore or prompt (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug output to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				debug.SetDebugOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "resolve",
				Aliases:   []string{"r"},
				Usage:     "Resolve paths against the mapping (use '-' to read paths from stdin)",
				ArgsUsage: "PATH [PATH...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "relative-to",
						Usage: "Print results relative to this directory when they fall under it",
					},
				},
				Action: resolveCommand,
			},
			{
				Name:   "watch",
				Usage:  "Watch the mapping document and reload on changes until interrupted",
				Action: watchCommand,
			},
			{
				Name:   "check",
				Usage:  "Validate the mapping document and report its rules",
				Action: checkCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func resolveCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	remapper := newRemapper(cfg)

	if c.NArg() == 0 {
		return cli.Exit("no paths given (pass paths or '-' for stdin)", 1)
	}

	paths := c.Args().Slice()
	if c.NArg() == 1 && paths[0] == "-" {
		var err error
		if paths, err = readPathsFromStdin(); err != nil {
			return err
		}
	}

	resolved := resolveAll(remapper, paths)
	if root := c.String("relative-to"); root != "" {
		resolved = pathutil.ToRelativeAll(resolved, root)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for _, p := range resolved {
		fmt.Fprintln(out, p)
	}
	return nil
}

func readPathsFromStdin() ([]string, error) {
	var paths []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			paths = append(paths, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return paths, nil
}

// resolveAll resolves paths concurrently while keeping input order in the
// output. Each resolution does its own disk existence check, so batches
// benefit from overlapping the I/O.
func resolveAll(remapper *remap.Remapper, paths []string) []string {
	resolved := make([]string, len(paths))
	var g errgroup.Group
	g.SetLimit(16)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			resolved[i] = remapper.Resolve(path)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors
	return resolved
}

func watchCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	remapper := newRemapper(cfg)

	policy, err := watch.ParsePolicy(cfg.Reload.Policy)
	if err != nil {
		return err
	}

	controller := watch.NewController(remapper, policy,
		time.Duration(cfg.Reload.DebounceMs)*time.Millisecond)
	controller.SetRestartHook(func() {
		fmt.Fprintln(os.Stderr, "mapping changed, restart requested by policy")
	})
	if err := controller.Start(); err != nil {
		// Degraded mode: resolution still works, it just never refreshes.
		fmt.Fprintf(os.Stderr, "Warning: watch not established: %v\n", err)
	}
	defer controller.Close()

	fmt.Fprintf(os.Stderr, "pathmap %s watching %s (%d rules, policy %s)\n",
		version.Info(), remapper.MappingPath(), remapper.RuleCount(), policy)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	stats := controller.GetStats()
	fmt.Fprintf(os.Stderr, "shutting down: %d events seen, %d reloads\n",
		stats.EventsSeen, stats.Reloads)
	return nil
}

func checkCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	mappingPath := filepath.Join(cfg.StorageDir, remap.MappingFileName)
	data, err := os.ReadFile(mappingPath)
	if os.IsNotExist(err) {
		fmt.Printf("%s: absent (no rules configured, all paths pass through)\n", mappingPath)
		return nil
	}
	if err != nil {
		return err
	}

	var rules map[string]string
	if err := json.Unmarshal(data, &rules); err != nil {
		return cli.Exit(fmt.Sprintf("%s: malformed: %v", mappingPath, err), 1)
	}

	fmt.Printf("%s: %d rules\n", mappingPath, len(rules))
	for sandboxPrefix, realPrefix := range rules {
		note := ""
		if !filepath.IsAbs(sandboxPrefix) {
			note = " (warning: key is not absolute)"
		} else if _, err := os.Stat(realPrefix); err != nil {
			note = " (warning: target does not exist)"
		}
		fmt.Printf("  %s -> %s%s\n", sandboxPrefix, realPrefix, note)
	}
	return nil
}
