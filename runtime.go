// Package timer implements a deterministic profiling runtime: every
// instrumented region of a host program is measured on entry and exit
// (never sampled), and cumulative self/total time is attributed to named
// bins. See internal/stack for the measurement engine, internal/registry
// for the bin table, internal/externsym for native-symbol attribution,
// and internal/report for the final dump.
//
// The runtime is single-threaded and single-owner: callers must serialize
// every Begin/End/Mark/Release/BeginExternal call exactly as they would a
// non-reentrant C library. There is no internal locking.
package timer

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jrajab/timer/internal/clock"
	"github.com/jrajab/timer/internal/externsym"
	"github.com/jrajab/timer/internal/hostsim"
	"github.com/jrajab/timer/internal/registry"
	"github.com/jrajab/timer/internal/report"
	"github.com/jrajab/timer/internal/rusage"
	"github.com/jrajab/timer/internal/stack"
)

// BinID identifies a profiling bin. Stable, dense, never reused.
type BinID = registry.BinID

// Handle identifies an open measurement frame, returned by Begin/Mark and
// consumed by End/Release.
type Handle = stack.Handle

// BinSnapshot is a read-only copy of one bin's accumulators, returned by
// Bins() for callers that want to build their own view of the data (a
// CLI's CSV/JSON/HTML sinks, for instance) rather than go through
// internal/report.
type BinSnapshot = registry.Bin

const overheadSamples = 1000

// Config controls Runtime construction. Field names match spec.md §6's
// enumerated configuration plus the ambient additions SPEC_FULL.md layers
// on (clock backend selection, block/bin sizing).
type Config struct {
	OutputPath    string
	OutputRaw     bool
	ReducedOutput bool
	ExcludeInit   bool
	Scale         int64

	ClockBackend clock.Kind
	MBlockSize   int
	MaxMBlocks   int

	InitialEmptyBins int
	BinGrowStep      int

	ExternSymInitialLen int
	ExternSymStep       int
}

// DefaultConfig returns teacher-scale defaults: wall clock, large blocks,
// the registry/hash-table growth increments spec.md's original carries
// forward.
func DefaultConfig() Config {
	return Config{
		ClockBackend:        clock.Wall,
		MBlockSize:          10000,
		MaxMBlocks:          100,
		InitialEmptyBins:    750,
		BinGrowStep:         100,
		ExternSymInitialLen: 256,
		ExternSymStep:       externsym.Step,
	}
}

// Runtime is the process-wide profiling state. See the package doc for
// the single-owner contract.
type Runtime struct {
	cfg Config
	clk clock.Source
	reg *registry.Registry
	stk *stack.Stack
	ext *externsym.Table

	startupHandle Handle
	startTick     clock.Tick
	endTick       clock.Tick

	overheadSmall  int64
	overheadMedium int64
}

// New constructs a Runtime without touching the clock or allocating the
// startup frame — call InitEarly to do that.
func New(cfg Config) *Runtime {
	clk := clock.New(cfg.ClockBackend)
	reg := registry.New(registry.Config{
		InitialEmptyBins: cfg.InitialEmptyBins,
		GrowStep:         cfg.BinGrowStep,
	})
	stk := stack.New(stack.Config{
		BlockSize: cfg.MBlockSize,
		MaxBlocks: cfg.MaxMBlocks,
	}, clk, reg)
	ext := externsym.New(reg, cfg.ExternSymInitialLen, cfg.ExternSymStep)

	return &Runtime{cfg: cfg, clk: clk, reg: reg, stk: stk, ext: ext}
}

// InitEarly validates the clock, tags one dynamic bin per entry in ft
// (internal vs. primitive, per R_FunTab's eval/10%10 convention), takes a
// single-shot overhead sample, and opens the startup frame. Init-fatal on
// a failed clock self-check, matching timeR_init_early's exit(2) path —
// except here the library returns an error instead of terminating the
// process; only cmd/timerdemo's main decides to os.Exit.
func (rt *Runtime) InitEarly(ft hostsim.FunctionTable) error {
	if err := rt.clk.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrClockCheckFailed, err)
	}

	for i := 0; i < ft.Len(); i++ {
		e := ft.At(i)
		id := rt.reg.AllocateDynamic()
		prefix := report.PrefixPrimitive
		if e.Kind == hostsim.Internal {
			prefix = report.PrefixInternal
		}
		rt.reg.SetPrefix(id, prefix)
		rt.reg.NameBin(id, e.Name)
	}

	rt.overheadMedium = rt.sampleOverhead(1)
	rt.startTick = rt.clk.Now()
	rt.startupHandle = rt.stk.Begin(registry.Startup)
	return nil
}

// sampleOverhead times n consecutive begin/end round trips against a
// dedicated bin so the cost never pollutes a real bin's numbers, and
// returns the mean elapsed ticks per round trip.
func (rt *Runtime) sampleOverhead(n int) int64 {
	if n <= 0 {
		n = 1
	}
	start := rt.clk.Now()
	for i := 0; i < n; i++ {
		h := rt.stk.Begin(registry.InstrumentationOverhead)
		rt.stk.End(h)
	}
	end := rt.clk.Now()
	return (int64(end) - int64(start)) / int64(n)
}

// StartupDone closes the startup frame. If ExcludeInit is set, every
// accumulator is zeroed and the stack's state is effectively restarted so
// the eventual report covers only post-startup activity.
func (rt *Runtime) StartupDone() {
	rt.stk.End(rt.startupHandle)
	if rt.cfg.ExcludeInit {
		rt.reg.Reset()
		rt.stk.ResetOpenFrameStarts(rt.clk.Now())
	}
}

// Finish closes any frames left open (crediting and counting them as
// aborts), records the end tick, takes the thousand-iteration overhead
// sample, and writes the report if OutputPath is set. A sink-open failure
// is a silent skip per spec.md §7: the run still completes successfully,
// just without a report file; Finish only fails if everything up to the
// point of writing succeeded but the write itself errors.
func (rt *Runtime) Finish() error {
	rt.stk.CloseAll()

	rt.endTick = rt.clk.Now()
	rt.overheadSmall = rt.sampleOverhead(overheadSamples)

	if rt.cfg.OutputPath == "" {
		return nil
	}

	f, err := os.Create(rt.cfg.OutputPath)
	if err != nil {
		slog.Debug("timer: could not open report sink, skipping report", "path", rt.cfg.OutputPath, "err", err)
		return nil
	}
	defer f.Close()

	wd, _ := os.Getwd()
	res, err := rusage.Take()
	if err != nil {
		slog.Warn("timer: rusage snapshot failed", "err", err)
	}

	data := report.Data{
		WorkDir:        wd,
		Timestamp:      time.Now().Format(time.RFC3339),
		Unit:           rt.clk.Unit(),
		OverheadSmall:  rt.overheadSmall,
		OverheadMedium: rt.overheadMedium,
		TotalRuntime:   int64(rt.endTick) - int64(rt.startTick),
		Resource:       res,
		Bins:           rt.reg.All(),
	}
	return report.Write(f, report.Config{
		OutputRaw:     rt.cfg.OutputRaw,
		ReducedOutput: rt.cfg.ReducedOutput,
		Scale:         rt.cfg.Scale,
	}, data)
}

// Bins returns a snapshot of every bin allocated so far, in id order. Safe
// to call before Finish for a live view; the returned slice does not track
// subsequent mutations.
func (rt *Runtime) Bins() []BinSnapshot { return rt.reg.All() }

// Forked annotates that a child process has split off. It does not stop
// any open timers in either process; per spec.md §5 each process
// subsequently mutates its own copy of all runtime state.
func (rt *Runtime) Forked(childPID int) {
	slog.Info("timer: forked", "child_pid", childPID)
}

// Begin opens a measurement frame for bin and returns a handle to close
// it with End.
func (rt *Runtime) Begin(bin BinID) Handle { return rt.stk.Begin(bin) }

// End closes the frame identified by h. If h is not the current top (a
// non-local transfer skipped over it), every frame above it is implicitly
// closed and counted as an abort.
func (rt *Runtime) End(h Handle) { rt.stk.End(h) }

// Mark returns a handle to the current stack depth, for pairing with
// Release around a scope that might exit non-locally.
func (rt *Runtime) Mark() Handle { return rt.stk.Mark() }

// Release pops every frame opened since the matching Mark.
func (rt *Runtime) Release(h Handle) { rt.stk.Release(h) }

// Scoped opens bin and returns a closer suitable for `defer`, giving Go
// callers an idiomatic RAII-style replacement for the source's
// longjmp-tolerant mark/release pattern: the returned func always runs on
// any exit path, including a panic unwinding through the deferred call.
func (rt *Runtime) Scoped(bin BinID) func() {
	h := rt.stk.Begin(bin)
	return func() { rt.stk.End(h) }
}

// AllocateUserBin reserves a new dynamic bin id for a user-defined
// function discovered at runtime.
func (rt *Runtime) AllocateUserBin() BinID { return rt.reg.AllocateDynamic() }

// NameBin sets id's display name.
func (rt *Runtime) NameBin(id BinID, name string) { rt.reg.NameBin(id, name) }

// NameBinAnonymous formats a stable synthetic name for a function with no
// source-level name.
func (rt *Runtime) NameBinAnonymous(id BinID, file string, line, col int) {
	rt.reg.NameAnonymous(id, file, line, col)
}

// MarkBCode sets id's sticky compiled-mode bit.
func (rt *Runtime) MarkBCode(id BinID) { rt.reg.MarkBCode(id) }

// GetBinName reads id's display name.
func (rt *Runtime) GetBinName(id BinID) string { return rt.reg.GetName(id) }

// BeginExternal combines external-symbol lookup-or-add with Begin: fn is
// hashed to find (or allocate) its bin, named on first sight, and a frame
// is opened against it. The lookup itself is bookkept under the dedicated
// hash-overhead bin so its cost never lands on the measured call.
func (rt *Runtime) BeginExternal(name string, fn uintptr) Handle {
	oh := rt.stk.Begin(registry.HashOverhead)
	id := rt.ext.LookupOrAdd(fn, name)
	rt.stk.End(oh)
	return rt.stk.Begin(id)
}
