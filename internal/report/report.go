// Package report renders the final profiling dump: a plain-text,
// tab-separated file with a header, a resource-usage block, overhead
// estimates, total runtime, optional group sums, and per-bin rows in
// either raw or processed (de-duplicated, sorted) order.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jrajab/timer/internal/registry"
	"github.com/jrajab/timer/internal/rusage"
	"github.com/jrajab/timer/pkg/types"
)

// Namespace prefixes used for display and for the reporter's group sums.
const (
	PrefixInternal  = "<.Internal>"
	PrefixPrimitive = "<.Primitive>"
	PrefixExternal  = "<ExternalCode>"
)

// Config controls the shape of the emitted report. Field names match
// spec.md §6's enumerated configuration knobs.
type Config struct {
	OutputRaw     bool
	ReducedOutput bool
	Scale         int64
}

// Data is everything the reporter needs to render one dump. It holds no
// behavior of its own — Runtime assembles this from its internal state at
// finish() time.
type Data struct {
	WorkDir        string
	Timestamp      string
	Unit           string
	OverheadSmall  int64 // thousand-iteration mean, in ticks
	OverheadMedium int64 // single-shot sample, in ticks
	TotalRuntime   int64
	Resource       rusage.Snapshot
	Bins           []registry.Bin
}

// Write renders data to w according to cfg. It never fails on a bin-level
// problem; the only error path is the underlying writer failing.
func Write(w io.Writer, cfg Config, data Data) error {
	scale := cfg.Scale
	if scale <= 0 {
		scale = 1
	}

	bw := &bufErrWriter{w: w}

	bw.section("Header")
	bw.kv("WorkingDirectory", data.WorkDir)
	bw.kv("Timestamp", data.Timestamp)
	bw.kv("Unit", data.Unit)
	bw.kv("Scale", scale)

	bw.section("ResourceUsage")
	bw.kv("MaxRSS", types.Bytes(data.Resource.MaxRSSKB*1024).Humanized())
	bw.kv("MinorFaults", data.Resource.MinFlt)
	bw.kv("MajorFaults", data.Resource.MajFlt)
	bw.kv("VoluntaryContextSwitches", data.Resource.NvCsw)
	bw.kv("InvoluntaryContextSwitches", data.Resource.NivCsw)
	bw.kv("BlockInputOps", data.Resource.InBlock)
	bw.kv("BlockOutputOps", data.Resource.OutBlock)

	bw.section("Overhead")
	bw.kv("MediumSingleShot", scaled(data.OverheadMedium, scale))
	bw.kv("SmallMeanOfThousand", scaled(data.OverheadSmall, scale))

	bw.section("TotalRuntime")
	bw.kv("Ticks", scaled(data.TotalRuntime, scale))

	bins := data.Bins
	if !cfg.OutputRaw {
		bw.section("GroupSums")
		sums := groupSums(bins)
		bw.kv("BuiltinSum", scaled(sums.Builtin, scale))
		bw.kv("PrimitiveSum", scaled(sums.Primitive, scale))
		bw.kv("UserFunctionSum", scaled(sums.UserFunc, scale))
	}

	bw.section("Bins")
	rows := bins
	if !cfg.OutputRaw {
		rows = processed(rows)
	}
	for _, b := range rows {
		if cfg.ReducedOutput && b.Starts == 0 {
			continue
		}
		bw.binRow(b, scale)
	}

	return bw.err
}

type groupSumResult struct {
	Builtin   int64
	Primitive int64
	UserFunc  int64
}

func groupSums(bins []registry.Bin) groupSumResult {
	var r groupSumResult
	for _, b := range bins {
		switch b.Prefix {
		case PrefixInternal:
			r.Builtin += b.SumSelf
		case PrefixPrimitive:
			r.Primitive += b.SumSelf
		default:
			r.UserFunc += b.SumSelf
		}
	}
	return r
}

// processed de-duplicates bins sharing a (prefix, name) key by folding the
// later entry into the earlier one (summing numeric fields, OR-ing bcode,
// blanking the later name), then sorts the survivors by sum_self
// descending. Matches spec.md §4.6's "De-duplication" subsection exactly.
func processed(bins []registry.Bin) []registry.Bin {
	sorted := make([]registry.Bin, len(bins))
	copy(sorted, bins)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Prefix != sorted[j].Prefix {
			return sorted[i].Prefix < sorted[j].Prefix
		}
		return sorted[i].Name < sorted[j].Name
	})

	keep := 0 // index of the entry that later duplicates fold into
	for i := 1; i < len(sorted); i++ {
		prev := &sorted[keep]
		cur := &sorted[i]
		if cur.Prefix == prev.Prefix && cur.Name == prev.Name {
			prev.SumSelf += cur.SumSelf
			prev.SumTotal += cur.SumTotal
			prev.Starts += cur.Starts
			prev.Aborts += cur.Aborts
			prev.BCode = prev.BCode || cur.BCode
			cur.Name = ""
			continue
		}
		keep = i
	}

	out := make([]registry.Bin, 0, len(sorted))
	for _, b := range sorted {
		if b.Name == "" {
			continue
		}
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SumSelf > out[j].SumSelf
	})
	return out
}

func scaled(v int64, scale int64) int64 {
	if scale <= 1 {
		return v
	}
	return v / scale
}

// bufErrWriter wraps an io.Writer, latching the first error so callers can
// chain writes without checking each one — the teacher's CLI sinks follow
// the same "create once, ignore individual write errors, check at the end"
// shape for file outputs.
type bufErrWriter struct {
	w   io.Writer
	err error
}

func (bw *bufErrWriter) printf(format string, args ...any) {
	if bw.err != nil {
		return
	}
	_, bw.err = fmt.Fprintf(bw.w, format, args...)
}

func (bw *bufErrWriter) section(name string) {
	bw.printf("# %s\n", name)
}

func (bw *bufErrWriter) kv(key string, value any) {
	bw.printf("%s\t%v\n", key, value)
}

func (bw *bufErrWriter) binRow(b registry.Bin, scale int64) {
	label := b.Name
	if b.Prefix != "" {
		label = b.Prefix + ":" + b.Name
	}
	pct := 0.0
	if b.SumTotal > 0 {
		pct = 100 * float64(b.SumSelf) / float64(b.SumTotal)
	}
	bw.printf("%s\t%.2f%%\t%d\t%d\t%d\t%d\t%t\n",
		label, pct, scaled(b.SumSelf, scale), scaled(b.SumTotal, scale),
		b.Starts, b.Aborts, b.BCode)
}
