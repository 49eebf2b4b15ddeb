package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrajab/timer/internal/registry"
	"github.com/jrajab/timer/internal/rusage"
)

func sampleBins() []registry.Bin {
	return []registry.Bin{
		{ID: 0, Name: "Startup", SumSelf: 5, SumTotal: 5, Starts: 1},
		{ID: 1, Prefix: PrefixPrimitive, Name: "doArith", SumSelf: 100, SumTotal: 100, Starts: 3},
		{ID: 2, Prefix: PrefixPrimitive, Name: "doArith", SumSelf: 50, SumTotal: 50, Starts: 2},
		{ID: 3, Name: "helper", SumSelf: 0, SumTotal: 0, Starts: 0},
	}
}

func TestWrite_RawOrderPreservesAllBins(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Config{OutputRaw: true, Scale: 1}, Data{
		Unit: "ns", Resource: rusage.Snapshot{}, Bins: sampleBins(),
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Startup")
	assert.Contains(t, out, "helper")
	// Raw mode keeps both doArith rows distinct (no de-dup).
	assert.Equal(t, 2, strings.Count(out, "doArith"))
}

func TestWrite_ProcessedDedupesAndSortsBySelf(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Config{OutputRaw: false, Scale: 1}, Data{
		Unit: "ns", Resource: rusage.Snapshot{}, Bins: sampleBins(),
	})
	require.NoError(t, err)
	out := buf.String()

	assert.Equal(t, 1, strings.Count(out, "doArith"), "duplicate (prefix,name) bins should fold into one row")

	startupIdx := strings.Index(out, "Startup")
	arithIdx := strings.Index(out, "doArith")
	require.NotEqual(t, -1, startupIdx)
	require.NotEqual(t, -1, arithIdx)
	assert.Less(t, arithIdx, startupIdx, "higher sum_self bin (merged doArith=150) should print before Startup=5")
}

func TestWrite_ReducedOutputSuppressesZeroStart(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Config{OutputRaw: true, ReducedOutput: true, Scale: 1}, Data{
		Unit: "ns", Resource: rusage.Snapshot{}, Bins: sampleBins(),
	})
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "helper")
}

func TestWrite_ScaleDividesValues(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Config{OutputRaw: true, Scale: 10}, Data{
		Unit: "ns", Resource: rusage.Snapshot{}, TotalRuntime: 1000,
		Bins: []registry.Bin{{Name: "x", SumSelf: 100, SumTotal: 100, Starts: 1}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Ticks\t100\n")
}

func TestGroupSums(t *testing.T) {
	sums := groupSums(sampleBins())
	assert.EqualValues(t, 150, sums.Primitive)
	assert.EqualValues(t, 5, sums.UserFunc) // Startup has no prefix -> falls into UserFunc bucket
}

func TestProcessed_BlankedDuplicateNeverAppearsAlone(t *testing.T) {
	bins := []registry.Bin{
		{Name: "a", Prefix: "p", SumSelf: 1, Starts: 1},
		{Name: "a", Prefix: "p", SumSelf: 2, Starts: 1},
		{Name: "a", Prefix: "p", SumSelf: 3, Starts: 1},
	}
	out := processed(bins)
	require.Len(t, out, 1)
	assert.EqualValues(t, 6, out[0].SumSelf)
	assert.EqualValues(t, 3, out[0].Starts)
}
