// Command ivclassify classifies I-V sweep files as memristive, ohmic,
// capacitive or memcapacitive devices.
//
//	ivclassify [-config f] [-workers n] [-format json|text] [-db results.db]
//	           [-read-voltage v] [-report-dir dir] files-or-directories...
//
// With -db, stored results can be read back instead of classifying:
//
//	ivclassify -db results.db [-format json|text] -show id | -history source | -recent n
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/banshee-data/memristive.report/internal/batch"
	"github.com/banshee-data/memristive.report/internal/config"
	"github.com/banshee-data/memristive.report/internal/ivsweep"
	"github.com/banshee-data/memristive.report/internal/resultstore"
	"github.com/banshee-data/memristive.report/internal/security"
	"github.com/banshee-data/memristive.report/internal/units"
	"github.com/banshee-data/memristive.report/internal/version"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

var sweepExtensions = map[string]bool{".csv": true, ".tsv": true, ".txt": true, ".dat": true, ".json": true}

type options struct {
	configPath  string
	workers     int
	format      string
	dbPath      string
	readVoltage float64
	reportDir   string
	verbose     bool
	showVersion bool
	inputs      []string

	showID  string
	history string
	recent  int
}

// querying reports whether the run reads the results database back rather
// than classifying sweeps.
func (o *options) querying() bool {
	return o.showID != "" || o.history != "" || o.recent > 0
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fset := flag.NewFlagSet("ivclassify", flag.ContinueOnError)
	fset.SetOutput(stderr)

	o := &options{}
	fset.StringVar(&o.configPath, "config", "", "Classification weights/thresholds file (.json, .yaml, .yml); SIGHUP reloads it")
	fset.IntVar(&o.workers, "workers", 0, "Concurrent classifications (0 = GOMAXPROCS)")
	fset.StringVar(&o.format, "format", units.Text, "Output format: "+units.GetValidFormatsString())
	fset.StringVar(&o.dbPath, "db", "", "SQLite database to store results in")
	fset.Float64Var(&o.readVoltage, "read-voltage", 0, "Read voltage in volts for Ron/Roff (0 = infer from peak bias)")
	fset.StringVar(&o.reportDir, "report-dir", "", "Write one JSON report per sweep into this directory")
	fset.BoolVar(&o.verbose, "verbose", false, "Log per-sweep diagnostics to stderr")
	fset.BoolVar(&o.showVersion, "version", false, "Print build information and exit")
	fset.StringVar(&o.showID, "show", "", "Print the stored classification with this id (needs -db)")
	fset.StringVar(&o.history, "history", "", "List stored classifications of this source, oldest first (needs -db)")
	fset.IntVar(&o.recent, "recent", 0, "List the n most recent stored classifications (needs -db)")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}
	o.inputs = fset.Args()

	if !units.IsValid(o.format) {
		return nil, fmt.Errorf("invalid -format %q: must be one of %s", o.format, units.GetValidFormatsString())
	}
	if o.workers < 0 {
		return nil, fmt.Errorf("-workers must not be negative, got %d", o.workers)
	}
	if o.readVoltage < 0 {
		return nil, fmt.Errorf("-read-voltage must not be negative, got %g", o.readVoltage)
	}
	if o.recent < 0 {
		return nil, fmt.Errorf("-recent must not be negative, got %d", o.recent)
	}
	if o.querying() {
		switch {
		case o.dbPath == "":
			return nil, errors.New("-show, -history and -recent need -db")
		case len(o.inputs) > 0:
			return nil, errors.New("sweep files cannot be combined with -show, -history or -recent")
		}
		return o, nil
	}
	if !o.showVersion && len(o.inputs) == 0 {
		return nil, errors.New("no sweep files given")
	}
	return o, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	logger := log.New(stderr, "", log.LstdFlags)

	opts, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		logger.Print(err)
		return exitUsage
	}

	provider, err := config.NewProvider(ivsweep.DefaultConfig())
	if err != nil {
		logger.Printf("failed to build default classifier: %v", err)
		return exitUsage
	}
	if opts.configPath != "" {
		if err := provider.Reload(opts.configPath); err != nil {
			logger.Printf("failed to load config: %v", err)
			return exitUsage
		}
	}

	if opts.showVersion {
		fmt.Fprintln(stdout, version.String(provider.Classifier().Weights().Version()))
		return exitOK
	}

	configureLogging(stderr, opts.verbose)
	defer configureLogging(nil, false)

	if opts.querying() {
		return runQuery(ctx, opts, stdout, logger)
	}

	if opts.configPath != "" {
		stopReload := reloadOnHangup(provider, opts.configPath, logger)
		defer stopReload()
	}

	sources, err := expandInputs(opts.inputs)
	if err != nil {
		logger.Print(err)
		return exitUsage
	}

	var store *resultstore.Store
	if opts.dbPath != "" {
		store, err = resultstore.Open(opts.dbPath)
		if err != nil {
			logger.Printf("failed to open results database: %v", err)
			return exitUsage
		}
		defer store.Close()
	}
	var namer *security.ReportNamer
	if opts.reportDir != "" {
		if err := os.MkdirAll(opts.reportDir, 0o755); err != nil {
			logger.Printf("failed to create report directory: %v", err)
			return exitUsage
		}
		namer = security.NewReportNamer(opts.reportDir)
	}

	jobs := make([]batch.Job, len(sources))
	for k, src := range sources {
		jobs[k] = withReadVoltage(fileJob(src), opts.readVoltage)
	}

	outcomes, runErr := batch.Run(ctx, provider, jobs, opts.workers)
	if runErr != nil {
		logger.Printf("run interrupted: %v", runErr)
	}

	entries := make([]entry, len(outcomes))
	failed := runErr != nil
	// Finished results are kept even when the run was interrupted.
	persistCtx := context.WithoutCancel(ctx)
	for k, o := range outcomes {
		entries[k] = entry{Source: o.Name, Result: o.Result, Skipped: o.Skipped}
		if o.Err != nil {
			entries[k].Error = o.Err.Error()
			failed = true
			continue
		}
		if o.Result == nil {
			continue
		}
		if store != nil {
			id, err := store.Save(persistCtx, o.Name, o.Result)
			if err != nil {
				logger.Printf("failed to store %s: %v", o.Name, err)
				failed = true
			}
			entries[k].ID = id
		}
		if namer != nil {
			p, err := writeReport(namer, o.Name, o.Result)
			if err != nil {
				logger.Printf("failed to write report for %s: %v", o.Name, err)
				failed = true
			}
			entries[k].Report = p
		}
	}

	rep := report{
		WeightsVersion: provider.Classifier().Weights().Version(),
		ConfigSource:   provider.Source(),
		Results:        entries,
		Summary:        batch.Summarize(outcomes),
	}
	if opts.format == units.JSON {
		err = writeJSON(stdout, rep)
	} else {
		err = writeText(stdout, rep)
	}
	if err != nil {
		logger.Printf("failed to write output: %v", err)
		return exitFailed
	}
	if failed {
		return exitFailed
	}
	return exitOK
}

func configureLogging(w io.Writer, verbose bool) {
	var diag io.Writer
	if verbose {
		diag = w
	}
	ivsweep.SetLogWriters(w, diag, nil)
	batch.SetLogWriters(w, diag, nil)
	resultstore.SetLogWriters(w, diag, nil)
}

// reloadOnHangup swaps in a fresh classifier from path on every SIGHUP.
// Sweeps already being classified finish with the old configuration.
func reloadOnHangup(p *config.Provider, path string, logger *log.Logger) (stop func()) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-hup:
				if err := p.Reload(path); err != nil {
					logger.Printf("reload failed, keeping weights %s: %v", p.Classifier().Weights().Version(), err)
					continue
				}
				logger.Printf("reloaded %s (weights %s)", path, p.Classifier().Weights().Version())
			}
		}
	}()
	return func() {
		signal.Stop(hup)
		close(done)
	}
}

// expandInputs replaces each directory argument with the sweep files below
// it, in lexical order. Plain file arguments are kept whatever their
// extension.
func expandInputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			// Missing files surface as per-sweep errors.
			out = append(out, arg)
			continue
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		var found []string
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && sweepExtensions[strings.ToLower(filepath.Ext(p))] {
				found = append(found, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	if len(out) == 0 {
		return nil, errors.New("no sweep files found")
	}
	return out, nil
}

func fileJob(src string) batch.Job {
	clean := filepath.Clean(src)
	job := batch.FileJob(os.DirFS(filepath.Dir(clean)), filepath.Base(clean))
	job.Name = src
	return job
}

// withReadVoltage fixes the read voltage of every sweep the job loads. A
// read_voltage already present in the file's metadata is overridden.
func withReadVoltage(job batch.Job, v float64) batch.Job {
	if v <= 0 {
		return job
	}
	load := job.Load
	job.Load = func() (ivsweep.Input, error) {
		in, err := load()
		if err != nil {
			return in, err
		}
		md := make(map[string]any, len(in.Metadata)+1)
		for k, val := range in.Metadata {
			md[k] = val
		}
		md["read_voltage"] = v
		in.Metadata = md
		return in, nil
	}
	return job
}

func writeReport(namer *security.ReportNamer, source string, r *ivsweep.Result) (string, error) {
	p, err := namer.Next(source)
	if err != nil {
		return "", err
	}
	body, err := json.MarshalIndent(struct {
		Source string          `json:"source"`
		Result *ivsweep.Result `json:"result"`
	}{source, r}, "", "  ")
	if err != nil {
		return "", err
	}
	return p, os.WriteFile(p, append(body, '\n'), 0o644)
}

type entry struct {
	Source  string          `json:"source"`
	ID      string          `json:"id,omitempty"`
	Report  string          `json:"report,omitempty"`
	Result  *ivsweep.Result `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Skipped bool            `json:"skipped,omitempty"`
}

type report struct {
	WeightsVersion string        `json:"weights_version"`
	ConfigSource   string        `json:"config_source"`
	Results        []entry       `json:"results"`
	Summary        batch.Summary `json:"summary"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeText(w io.Writer, rep report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range rep.Results {
		switch {
		case e.Skipped:
			fmt.Fprintf(tw, "%s\tskipped\n", e.Source)
		case e.Error != "":
			fmt.Fprintf(tw, "%s\terror: %s\n", e.Source, e.Error)
		case e.Result != nil:
			r := e.Result
			line := fmt.Sprintf("%s\t%s\t%.3f", e.Source, r.DeviceType, r.Confidence)
			if r.Resistance.ReadPairs > 0 {
				line += fmt.Sprintf("\tRon %s\tRoff %s\tratio %.3g",
					units.Resistance(r.Resistance.RonMean), units.Resistance(r.Resistance.RoffMean), r.Features.SwitchingRatio)
			} else {
				line += "\t\t\t"
			}
			if len(r.Warnings) > 0 {
				line += "\t" + strings.Join(r.Warnings, ",")
			}
			fmt.Fprintln(tw, line)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := rep.Summary
	classified := typeCounts(s.ByType)
	if classified == "" {
		classified = "none classified"
	}
	_, err := fmt.Fprintf(w, "%d sweeps (weights %s): %s; %d failed, %d skipped\n",
		s.Total, rep.WeightsVersion, classified, s.Failed, s.Skipped)
	return err
}

// typeCounts renders non-zero counts as "memristive 2, ohmic 1" in the
// fixed device type order.
func typeCounts(counts map[ivsweep.DeviceType]int) string {
	var parts []string
	types := append([]ivsweep.DeviceType{}, ivsweep.ScoredTypes...)
	for _, dt := range append(types, ivsweep.Unknown) {
		if n := counts[dt]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", dt, n))
		}
	}
	return strings.Join(parts, ", ")
}
