// Package stack implements the measurement stack: the chunked array of
// active-frame records that Begin/End/Mark/Release push and pop, plus the
// self/total accounting arithmetic (the "lower sum" debt scheme described
// in spec.md §4.3).
package stack

import (
	"log/slog"

	"github.com/jrajab/timer/internal/clock"
	"github.com/jrajab/timer/internal/registry"
)

type frame struct {
	start    clock.Tick
	lowerSum int64
	bin      registry.BinID
}

// block is a fixed-size contiguous chunk of frame slots. Its address is
// stable once allocated: blocks are never resized or moved, so a Handle
// referencing one stays valid for the life of the process.
type block struct {
	frames []frame
}

// Handle is an opaque (block, slot) pair identifying a specific frame
// position. Equality is structural, matching spec.md's "Frame handle"
// definition; it tolerates block-boundary traversal because it carries
// the block pointer the frame was born in.
type Handle struct {
	blk  *block
	slot int
}

// Config tunes block size and the maximum number of blocks. Defaults
// mirror timeR-config.h's TIME_R_MBLOCK_SIZE (10000) and
// TIME_R_MAX_MBLOCKS (100); tests shrink both.
type Config struct {
	BlockSize int
	MaxBlocks int
}

// DefaultConfig returns the teacher-scale defaults.
func DefaultConfig() Config {
	return Config{BlockSize: 10000, MaxBlocks: 100}
}

// Stack is the process-wide measurement stack. Not safe for concurrent
// use — see spec.md §5, callers must serialize.
type Stack struct {
	clk    clock.Source
	reg    *registry.Registry
	blocks []*block

	curBlock    *block
	curBlockIdx int
	nextIndex   int

	blockSize int
	maxBlocks int

	lowerSum int64
}

// New builds a Stack with its first block allocated and slot 0 reserved as
// the permanent sentinel/canary — it is never popped.
func New(cfg Config, clk clock.Source, reg *registry.Registry) *Stack {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 10000
	}
	if cfg.MaxBlocks <= 0 {
		cfg.MaxBlocks = 100
	}
	first := &block{frames: make([]frame, cfg.BlockSize)}
	return &Stack{
		clk:       clk,
		reg:       reg,
		blocks:    []*block{first},
		curBlock:  first,
		blockSize: cfg.BlockSize,
		maxBlocks: cfg.MaxBlocks,
		nextIndex: 1, // index 0 is the sentinel
	}
}

// Begin samples the clock, reserves the next free frame slot, and credits
// a start to bin. Mirrors timeR_begin_timer exactly, including the
// stash-then-zero of the global lower-sum accumulator.
func (s *Stack) Begin(bin registry.BinID) Handle {
	start := s.clk.Now()

	blk := s.curBlock
	idx := s.nextIndex

	blk.frames[idx].lowerSum = s.lowerSum
	s.lowerSum = 0

	s.nextIndex++
	if s.nextIndex >= s.blockSize {
		s.advanceBlock()
	}

	blk.frames[idx].start = start
	blk.frames[idx].bin = bin
	s.reg.IncStarts(bin)

	return Handle{blk: blk, slot: idx}
}

// advanceBlock switches to the next measurement block, allocating it on
// first use. Panics if the configured block cap (MaxBlocks) would be exceeded,
// matching timeR_measureblock_full's abort-on-overflow behavior — this
// indicates host misuse (too many nested unclosed frames), not a
// recoverable condition.
func (s *Stack) advanceBlock() {
	s.curBlockIdx++
	if s.curBlockIdx >= s.maxBlocks {
		panic(ErrBlockLimitExceeded)
	}
	if s.curBlockIdx == len(s.blocks) {
		s.blocks = append(s.blocks, &block{frames: make([]frame, s.blockSize)})
	}
	s.curBlock = s.blocks[s.curBlockIdx]
	s.nextIndex = 0
}

// popLatest pops the current top frame, credits its bin, and returns the
// bin id that was just credited (the caller needs this for abort
// bookkeeping during forced unwinds). Panics if asked to pop the sentinel.
func (s *Stack) popLatest(end clock.Tick) registry.BinID {
	if s.nextIndex == 0 {
		if s.curBlockIdx == 0 {
			panic(ErrSentinelUnderflow)
		}
		s.curBlockIdx--
		s.curBlock = s.blocks[s.curBlockIdx]
		s.nextIndex = s.blockSize - 1
	} else {
		s.nextIndex--
	}

	f := &s.curBlock.frames[s.nextIndex]
	diff := int64(end) - int64(f.start)

	s.reg.CreditTotal(f.bin, diff)

	if diff >= s.lowerSum {
		s.reg.CreditSelf(f.bin, diff-s.lowerSum)
	} else {
		slog.Warn("stack: negative self-time delta, clamping to zero",
			"bin", f.bin, "diff", diff, "lower_sum", s.lowerSum)
		s.reg.CreditSelf(f.bin, 0)
	}

	s.lowerSum = f.lowerSum + diff
	return f.bin
}

// End pops the matching frame for h. If one or more frames were left open
// above h by a non-local transfer, each is implicitly closed and its
// abort counter incremented — mirrors timeR_end_timer's slow path.
func (s *Stack) End(h Handle) {
	end := s.clk.Now()
	for {
		poppedBin := s.popLatest(end)
		if s.curBlock == h.blk && s.nextIndex == h.slot {
			return
		}
		s.reg.IncAborts(poppedBin)
	}
}

// Mark returns a handle to the current top-of-stack position (the next
// free slot); no frame is written. Paired with Release for unwind-safe
// scopes.
func (s *Stack) Mark() Handle {
	return Handle{blk: s.curBlock, slot: s.nextIndex}
}

// Release pops every frame opened since the matching Mark, counting every
// one of them as an abort — unlike End, a marker owns no frame of its own,
// so there is no "legitimate" final pop to exempt. A no-op if nothing was
// opened since the mark.
func (s *Stack) Release(h Handle) {
	if s.curBlock == h.blk && s.nextIndex == h.slot {
		return
	}
	end := s.clk.Now()
	for !(s.curBlock == h.blk && s.nextIndex == h.slot) {
		poppedBin := s.popLatest(end)
		s.reg.IncAborts(poppedBin)
	}
}

// Depth reports how many frames are currently open above the sentinel.
// Exposed for tests and diagnostics only.
func (s *Stack) Depth() int {
	return s.curBlockIdx*s.blockSize + s.nextIndex - 1
}

// ResetOpenFrameStarts rewrites start_tick to now for every currently open
// frame, without touching lower-sum bookkeeping. Used by StartupDone's
// exclude-init path so a frame left open across the startup/post-startup
// boundary is timed from "now" onward rather than from its true origin.
func (s *Stack) ResetOpenFrameStarts(now clock.Tick) {
	for idx := 0; idx <= s.curBlockIdx; idx++ {
		blk := s.blocks[idx]
		lo := 0
		if idx == 0 {
			lo = 1
		}
		hi := s.blockSize
		if idx == s.curBlockIdx {
			hi = s.nextIndex
		}
		for slot := lo; slot < hi; slot++ {
			blk.frames[slot].start = now
		}
	}
}

// CloseAll pops every frame still open down to the sentinel, crediting
// each and incrementing its abort counter, using a single sampled end
// time for the whole batch. Mirrors timeR_finish's "end every remaining
// timer" step at process shutdown.
func (s *Stack) CloseAll() {
	if s.Depth() == 0 {
		return
	}
	end := s.clk.Now()
	for s.Depth() > 0 {
		poppedBin := s.popLatest(end)
		s.reg.IncAborts(poppedBin)
	}
}
