package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrajab/timer"
	"github.com/jrajab/timer/internal/clock"
	"github.com/jrajab/timer/internal/hostsim"
)

var pretty bool

type opts struct {
	// replay
	iterations int
	interval   time.Duration

	// runtime
	clockBackend  string
	outputPath    string
	outputRaw     bool
	reducedOutput bool
	excludeInit   bool
	scale         int64

	// outputs
	csvPath  string
	jsonPath string
	htmlPath string
}

// row is one final per-bin record, written to the CSV/JSON/HTML sinks once
// the replay loop finishes. Unlike the live tabwriter view, which shows
// loop progress, the sinks show the runtime's own accounting — the thing a
// caller actually wants to keep.
type row struct {
	Name     string `json:"name"`
	Prefix   string `json:"prefix"`
	SumSelf  int64  `json:"sum_self"`
	SumTotal int64  `json:"sum_total"`
	Starts   uint64 `json:"starts"`
	Aborts   uint64 `json:"aborts"`
	BCode    bool   `json:"bcode"`
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "timerdemo",
		Short: "Deterministic profiling runtime demo",
		Long: `timerdemo drives a synthetic, instrumented call tree through the timer
runtime and writes the resulting self/total accounting. It stands in for a
host interpreter's eval loop: every call in the tree opens and closes a
measurement frame exactly once, so the reported numbers are exact, not
sampled.

Examples:
  timerdemo -n 50 -i 10ms -o report.txt
  timerdemo -n 1 --raw --csv bins.csv --json bins.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().BoolVar(&pretty, "pretty", true, "format the live loop view as a table instead of CSV-like lines")
	root.Flags().IntVarP(&o.iterations, "iterations", "n", 20, "number of times to replay the synthetic call tree (0 = run until Ctrl-C)")
	root.Flags().DurationVarP(&o.interval, "interval", "i", 50*time.Millisecond, "pacing between replays (e.g. 10ms, 1s)")

	root.Flags().StringVar(&o.clockBackend, "clock", "wall", "clock backend: wall or cpucycle")
	root.Flags().StringVarP(&o.outputPath, "output", "o", "", "path to write the runtime's own tab-separated report")
	root.Flags().BoolVar(&o.outputRaw, "raw", false, "emit bins in allocation order instead of de-duplicated and sorted by self time")
	root.Flags().BoolVar(&o.reducedOutput, "reduced", false, "suppress bins that were never entered")
	root.Flags().BoolVar(&o.excludeInit, "exclude-init", false, "zero all accumulators once startup completes")
	root.Flags().Int64Var(&o.scale, "scale", 0, "divide every reported tick value by this factor (0 or 1 = no scaling)")

	root.Flags().StringVar(&o.csvPath, "csv", "", "write final per-bin rows to a CSV file")
	root.Flags().StringVar(&o.jsonPath, "json", "", "write final per-bin rows to a JSON file")
	root.Flags().StringVar(&o.htmlPath, "html", "", "write final per-bin rows and summary to an HTML file")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	if o.interval <= 0 {
		return fmt.Errorf("interval must be > 0")
	}

	var clk clock.Kind
	switch o.clockBackend {
	case "cpucycle":
		clk = clock.CPUCycle
	case "wall", "":
		clk = clock.Wall
	default:
		return fmt.Errorf("unknown clock backend %q (want wall or cpucycle)", o.clockBackend)
	}

	cfg := timer.DefaultConfig()
	cfg.ClockBackend = clk
	cfg.OutputPath = o.outputPath
	cfg.OutputRaw = o.outputRaw
	cfg.ReducedOutput = o.reducedOutput
	cfg.ExcludeInit = o.excludeInit
	cfg.Scale = o.scale

	rt := timer.New(cfg)
	if err := rt.InitEarly(hostsim.DefaultTable()); err != nil {
		return fmt.Errorf("init early: %w", err)
	}
	rt.StartupDone()

	bins := map[string]timer.BinID{}
	enter := func(label string) func() {
		id, ok := bins[label]
		if !ok {
			id = rt.AllocateUserBin()
			rt.NameBin(id, label)
			bins[label] = id
		}
		h := rt.Begin(id)
		return func() { rt.End(h) }
	}

	var tw *tabwriter.Writer
	if pretty {
		tw = newTable()
		printTableHeader(tw)
	} else {
		fmt.Println("# iteration, elapsed")
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	start := time.Now()
	iter := 0

loop:
	for {
		select {
		case <-ctx.Done():
			slog.Info("interrupted")
			break loop

		case <-ticker.C:
			hostsim.Walk(hostsim.SampleCallTree(), enter)
			iter++

			if pretty {
				printTableRow(tw, iter, time.Since(start))
			} else {
				printCsvLike(iter, time.Since(start))
			}

			if o.iterations > 0 && iter >= o.iterations {
				break loop
			}
		}
	}

	if err := rt.Finish(); err != nil {
		return fmt.Errorf("finish: %w", err)
	}

	if err := writeSinks(o, rt.Bins()); err != nil {
		slog.Error("write sinks", "err", err)
	}

	fmt.Println()
	fmt.Printf("timerdemo ran %d replays over %s; bins allocated: %d\n", iter, time.Since(start).Round(time.Millisecond), len(rt.Bins()))
	fmt.Println()

	return nil
}

func writeSinks(o opts, bins []timer.BinSnapshot) error {
	rows := make([]row, 0, len(bins))
	for _, b := range bins {
		if b.Starts == 0 {
			continue
		}
		rows = append(rows, row{
			Name:     b.Name,
			Prefix:   b.Prefix,
			SumSelf:  b.SumSelf,
			SumTotal: b.SumTotal,
			Starts:   b.Starts,
			Aborts:   b.Aborts,
			BCode:    b.BCode,
		})
	}

	if o.csvPath != "" {
		if err := writeCSV(o.csvPath, rows); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	if o.jsonPath != "" {
		if err := writeJSON(o.jsonPath, rows); err != nil {
			return fmt.Errorf("json: %w", err)
		}
	}
	if o.htmlPath != "" {
		if err := writeHTMLReport(o.htmlPath, rows); err != nil {
			return fmt.Errorf("html: %w", err)
		}
	}
	return nil
}

func writeCSV(path string, rows []row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"prefix", "name", "sum_self", "sum_total", "starts", "aborts", "bcode"})
	for _, r := range rows {
		_ = w.Write([]string{
			r.Prefix, r.Name,
			strconv.FormatInt(r.SumSelf, 10), strconv.FormatInt(r.SumTotal, 10),
			strconv.FormatUint(r.Starts, 10), strconv.FormatUint(r.Aborts, 10),
			strconv.FormatBool(r.BCode),
		})
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, rows []row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func writeHTMLReport(path string, rows []row) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var totalSelf int64
	for _, r := range rows {
		totalSelf += r.SumSelf
	}

	return tpl.Execute(f, struct {
		Rows      []row
		TotalSelf int64
	}{Rows: rows, TotalSelf: totalSelf})
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
}

func printTableHeader(tw *tabwriter.Writer) {
	fmt.Fprintln(tw, "ITER\tELAPSED")
	fmt.Fprintln(tw, "----\t-------")
	tw.Flush()
}

func printTableRow(tw *tabwriter.Writer, iter int, elapsed time.Duration) {
	fmt.Fprintf(tw, "%d\t%s\n", iter, elapsed.Round(time.Millisecond))
	tw.Flush()
}

func printCsvLike(iter int, elapsed time.Duration) {
	fmt.Printf("%d, %s\n", iter, elapsed.Round(time.Millisecond))
}

var tpl = template.Must(template.New("rep").Parse(`<!doctype html>
<html lang="en"><meta charset="utf-8">
<title>Timer Report</title>
<style>
body{font-family:system-ui,Segoe UI,Roboto,Helvetica,Arial,sans-serif;margin:20px}
h1,h2{margin:0 0 8px}
table{border-collapse:collapse;width:100%;font-size:14px}
th,td{border:1px solid #ddd;padding:6px 8px;text-align:right}
th:first-child,td:first-child{text-align:left}
.small{color:#555}
</style>

<h1>Timer Report</h1>

<p class="small">
Bins: {{len .Rows}} &nbsp;|&nbsp;
Total self time: {{.TotalSelf}}
</p>

<table>
<tr><th>Prefix</th><th>Name</th><th>Self</th><th>Total</th><th>Starts</th><th>Aborts</th><th>BCode</th></tr>
{{range .Rows}}<tr><td>{{.Prefix}}</td><td>{{.Name}}</td><td>{{.SumSelf}}</td><td>{{.SumTotal}}</td><td>{{.Starts}}</td><td>{{.Aborts}}</td><td>{{.BCode}}</td></tr>
{{end}}
</table>
`))
