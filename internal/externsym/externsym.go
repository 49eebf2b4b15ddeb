// Package externsym implements the external-symbol map: an open-addressed
// hash table from native function pointer to bin id, used to give each
// unique externally-called symbol its own profiling bin the first time it
// is seen and the same bin on every subsequent call.
package externsym

import (
	"log/slog"

	"github.com/jrajab/timer/internal/registry"
	"github.com/jrajab/timer/internal/report"
)

// Step is the fixed table-length increment applied on each rehash. Matches
// timeR-config.h's TIME_R_EXTFUNC_MAP_STEP.
const Step = 100

type entry struct {
	addr uintptr
	used bool
	bin  registry.BinID
}

// Table maps native function pointers to bin ids. Not safe for concurrent
// use — callers must serialize exactly like the rest of the runtime.
type Table struct {
	entries []entry
	count   int
	step    int
	reg     *registry.Registry
}

// New builds an empty table. initialLen should be small; it grows by step
// (or a multiple of step) whenever an insert collides with an occupied,
// mismatched slot.
func New(reg *registry.Registry, initialLen, step int) *Table {
	if initialLen <= 0 {
		initialLen = 64
	}
	if step <= 0 {
		step = Step
	}
	return &Table{
		entries: make([]entry, initialLen),
		step:    step,
		reg:     reg,
	}
}

// djb2 hashes a pointer's bit representation. Matches spec.md §4.4's
// "djb2-style bytewise hash of the pointer's representation."
func djb2(addr uintptr) uint64 {
	h := uint64(5381)
	v := uint64(addr)
	for i := 0; i < 8; i++ {
		b := byte(v >> (8 * i))
		h = h*33 + uint64(b)
	}
	return h
}

// LookupOrAdd returns the bin id for addr, allocating and naming one on
// first sight. Wrap calls to this in a hash-overhead begin/end pair so its
// cost is bookkept separately from the measured call — see
// BeginExternal in the root package.
func (t *Table) LookupOrAdd(addr uintptr, name string) registry.BinID {
	if id, ok := t.lookup(addr); ok {
		return id
	}
	return t.insert(addr, name)
}

func (t *Table) lookup(addr uintptr) (registry.BinID, bool) {
	slot := djb2(addr) % uint64(len(t.entries))
	e := t.entries[slot]
	if e.used && e.addr == addr {
		return e.bin, true
	}
	return 0, false
}

func (t *Table) insert(addr uintptr, name string) registry.BinID {
	slot := djb2(addr) % uint64(len(t.entries))
	e := &t.entries[slot]

	if !e.used {
		id := t.reg.AllocateDynamic()
		t.reg.SetPrefix(id, report.PrefixExternal)
		t.reg.NameBin(id, name)
		e.addr = addr
		e.used = true
		e.bin = id
		t.count++
		return id
	}

	if e.addr == addr {
		return e.bin
	}

	// Single collision with a different address: rehash to a larger table
	// rather than probe, per spec.md §4.4 and §9's explicit direction not
	// to substitute a probing variant.
	t.rehash(len(t.entries) + t.step)
	return t.insert(addr, name)
}

func (t *Table) rehash(newLen int) {
	t.rehashFrom(t.entries, newLen, 1)
}

// rehashFrom re-inserts every used entry of old into a fresh table of size
// newLen. old is always the true original entry set handed down from the
// first caller of rehash — never t.entries, which this function overwrites
// as its first step — so a second-level collision can retry the whole
// rehash from scratch without silently dropping entries the first attempt
// hadn't reached yet.
func (t *Table) rehashFrom(old []entry, newLen, stepMultiplier int) {
	t.entries = make([]entry, newLen)
	t.count = 0
	for _, e := range old {
		if !e.used {
			continue
		}
		slot := djb2(e.addr) % uint64(len(t.entries))
		dst := &t.entries[slot]
		if dst.used && dst.addr != e.addr {
			// The larger table also collided: escalate the step and retry
			// the whole rehash from the true original set, matching the
			// "retry with length+2*step, and so on" policy.
			stepMultiplier++
			slog.Warn("externsym: rehash collided again, escalating table size",
				"attempted_len", newLen, "multiplier", stepMultiplier)
			t.rehashFrom(old, len(old)+stepMultiplier*t.step, stepMultiplier)
			return
		}
		dst.addr = e.addr
		dst.used = true
		dst.bin = e.bin
		t.count++
	}
}

// Len returns the number of distinct symbols currently mapped.
func (t *Table) Len() int { return t.count }
