package hostsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTable_KindsPresent(t *testing.T) {
	tbl := DefaultTable()
	var internal, primitive int
	for i := 0; i < tbl.Len(); i++ {
		switch tbl.At(i).Kind {
		case Internal:
			internal++
		case Primitive:
			primitive++
		}
	}
	assert.Positive(t, internal)
	assert.Positive(t, primitive)
}

func TestWalk_EntersAndExitsEveryNode(t *testing.T) {
	var trace []string
	enter := func(label string) func() {
		trace = append(trace, "enter:"+label)
		return func() { trace = append(trace, "exit:"+label) }
	}
	Walk(SampleCallTree(), enter)

	assert.Equal(t, "enter:doArith", trace[0])
	assert.Equal(t, "enter:cons", trace[1])
	assert.Equal(t, "exit:cons", trace[2])
	assert.Equal(t, "exit:doArith", trace[3])
	assert.Equal(t, trace[len(trace)-1], "exit:doMatprod")
}

func TestFuncKindString(t *testing.T) {
	assert.Equal(t, "internal", Internal.String())
	assert.Equal(t, "primitive", Primitive.String())
	assert.Equal(t, "unknown", FuncKind(9).String())
}
