package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/pkganalyzer/pkg/config"
	perrors "github.com/matzehuels/pkganalyzer/pkg/errors"
	"github.com/matzehuels/pkganalyzer/pkg/store"
)

// analyzeOptions holds flags for the analyze command.
type analyzeOptions struct {
	noCache     bool
	refresh     bool
	save        bool
	json        bool
	keepSources bool
}

// analyzeCommand creates the analyze command.
func (c *CLI) analyzeCommand() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze <package>",
		Short: "Analyze a single package without the queue",
		Long: `Analyze a single package and print the collected signals.

The result is not saved unless --save is given, in which case it is written
to NPMS_ADDR exactly as the consume command would.`,
		Example: `  pkganalyzer analyze cross-spawn
  pkganalyzer analyze @babel/core --json
  pkganalyzer analyze react --save --refresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAnalyze(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the response cache")
	cmd.Flags().BoolVar(&opts.refresh, "refresh", false, "bypass cached repository metadata")
	cmd.Flags().BoolVar(&opts.save, "save", false, "save the analysis to NPMS_ADDR")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the analysis as JSON")
	cmd.Flags().BoolVar(&opts.keepSources, "keep-sources", false, "keep the downloaded source tree")

	return cmd
}

func (c *CLI) runAnalyze(ctx context.Context, name string, opts analyzeOptions) error {
	if err := perrors.ValidateNpmPackageName(name); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.KeepSources = cfg.KeepSources || opts.keepSources

	cacheCfg := cfg.Cache
	fallback := ""
	if opts.noCache {
		cacheCfg = config.CacheConfig{}
	} else if dir, err := cacheDir(); err == nil {
		fallback = dir
	}
	cch, err := newCache(ctx, cacheCfg, fallback)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cch.Close()

	var st store.Store = store.NewMemoryStore()
	if opts.save {
		mongo, err := store.DialMongo(ctx, cfg.NPMSAddr)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		st = mongo
	}
	defer st.Close(context.WithoutCancel(ctx))

	w, err := c.newWorker(&cfg, cch, st, opts.refresh)
	if err != nil {
		return err
	}

	prog := newProgress(c.Logger)
	var spinner *Spinner
	if !opts.json {
		spinner = newSpinnerWithContext(ctx, "Analyzing "+name+"...")
		spinner.Start()
	}
	analysis, err := w.analyzer.Analyze(ctx, name, nil)
	if err != nil {
		if spinner != nil {
			spinner.StopWithError(perrors.UserMessage(err))
		}
		return err
	}
	if spinner != nil {
		spinner.Stop()
	}
	prog.done("Analyzed " + analysis.Name + "@" + analysis.Version)

	if opts.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}
	printSuccess("%s@%s", analysis.Name, analysis.Version)
	for _, row := range summarize(analysis) {
		printKeyValue(row[0], row[1])
	}
	if opts.save {
		printDetail("Saved to %s", cfg.NPMSAddr)
	}
	return nil
}

// summarize renders the collected signals as label/value rows.
func summarize(a *store.Analysis) [][2]string {
	r := a.Collected
	rows := [][2]string{
		{"source", a.Source},
		{"duration", a.Duration().Round(time.Millisecond).String()},
	}
	if r.Files != nil {
		rows = append(rows,
			[2]string{"readme", bytesLabel(r.Files.ReadmeSize)},
			[2]string{"tests", bytesLabel(r.Files.TestsSize)},
		)
	}
	if r.Coverage != nil {
		rows = append(rows, [2]string{"coverage", fmt.Sprintf("%.0f%%", *r.Coverage*100)})
	} else {
		rows = append(rows, [2]string{"coverage", "unknown"})
	}
	rows = append(rows,
		[2]string{"badges", strconv.Itoa(len(r.Badges))},
		[2]string{"linters", listLabel(r.Linters)},
	)
	if r.Outdated.Known {
		rows = append(rows, [2]string{"outdated", listLabel(r.Outdated.Names())})
	} else {
		rows = append(rows, [2]string{"outdated", "unknown"})
	}
	if r.Vulnerabilities.Known {
		rows = append(rows, [2]string{"vulns", strconv.Itoa(len(r.Vulnerabilities.Items))})
	} else {
		rows = append(rows, [2]string{"vulns", "unknown"})
	}
	if gh := a.GitHub; gh != nil {
		rows = append(rows,
			[2]string{"repository", gh.FullName},
			[2]string{"stars", strconv.Itoa(gh.Stars)},
			[2]string{"issues", strconv.Itoa(gh.OpenIssues)},
		)
	}
	return rows
}

func bytesLabel(n int64) string {
	return strconv.FormatInt(n, 10) + " bytes"
}

func listLabel(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
