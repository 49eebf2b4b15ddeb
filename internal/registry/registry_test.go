package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() Config {
	return Config{InitialEmptyBins: 2, GrowStep: 2}
}

func TestNew_StaticBinsInterned(t *testing.T) {
	r := New(smallConfig())
	assert.Equal(t, "Startup", r.GetName(Startup))
	assert.Equal(t, "HashOverhead", r.GetName(HashOverhead))
	assert.Equal(t, int(StaticBinCount), r.Len())
}

func TestAllocateDynamic_SequentialAndDense(t *testing.T) {
	r := New(smallConfig())
	first := r.AllocateDynamic()
	second := r.AllocateDynamic()
	assert.Equal(t, StaticBinCount, first)
	assert.Equal(t, StaticBinCount+1, second)
	assert.Equal(t, int(second)+1, r.Len())
}

func TestAllocateDynamic_GrowsBeyondInitial(t *testing.T) {
	r := New(smallConfig()) // 2 initial empty dynamic slots
	ids := make([]BinID, 0, 10)
	for i := 0; i < 10; i++ {
		ids = append(ids, r.AllocateDynamic())
	}
	for i, id := range ids {
		assert.Equal(t, StaticBinCount+BinID(i), id)
	}
}

func TestNameBin_OverwritesAndFallsBackOnEmpty(t *testing.T) {
	r := New(smallConfig())
	id := r.AllocateDynamic()
	r.NameBin(id, "myFunc")
	assert.Equal(t, "myFunc", r.GetName(id))

	r.NameBin(id, "")
	assert.Equal(t, unknownName, r.GetName(id))
}

func TestNameAnonymous_Format(t *testing.T) {
	r := New(smallConfig())
	id := r.AllocateDynamic()
	r.NameAnonymous(id, "script.R", 12, 4)
	assert.Equal(t, "script.R:<anon function defined in line 12 column 4>", r.GetName(id))
}

func TestSetPrefixAndMarkBCode(t *testing.T) {
	r := New(smallConfig())
	id := r.AllocateDynamic()
	r.SetPrefix(id, "<.Primitive>")
	r.MarkBCode(id)

	b, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "<.Primitive>", b.Prefix)
	assert.True(t, b.BCode)
}

func TestCreditAndCounters(t *testing.T) {
	r := New(smallConfig())
	id := r.AllocateDynamic()

	r.CreditTotal(id, 100)
	r.CreditSelf(id, 60)
	r.IncStarts(id)
	r.IncAborts(id)

	b, ok := r.Get(id)
	require.True(t, ok)
	assert.EqualValues(t, 100, b.SumTotal)
	assert.EqualValues(t, 60, b.SumSelf)
	assert.EqualValues(t, 1, b.Starts)
	assert.EqualValues(t, 1, b.Aborts)
}

func TestReset_PreservesNamesClearsCounters(t *testing.T) {
	r := New(smallConfig())
	id := r.AllocateDynamic()
	r.NameBin(id, "foo")
	r.CreditTotal(id, 50)
	r.IncStarts(id)

	r.Reset()

	b, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, "foo", b.Name)
	assert.EqualValues(t, 0, b.SumTotal)
	assert.EqualValues(t, 0, b.Starts)
}

func TestGet_OutOfRange(t *testing.T) {
	r := New(smallConfig())
	_, ok := r.Get(BinID(9999))
	assert.False(t, ok)
}

func TestAll_OrderedStaticThenDynamic(t *testing.T) {
	r := New(smallConfig())
	a := r.AllocateDynamic()
	r.NameBin(a, "a")

	all := r.All()
	assert.Equal(t, int(StaticBinCount)+1, len(all))
	assert.Equal(t, "Startup", all[Startup].Name)
	assert.Equal(t, "a", all[a].Name)
}
