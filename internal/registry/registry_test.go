package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type object struct{ name string }

func TestIdentify_AssignsSequentialIndices(t *testing.T) {
	r := New()
	a, b := &object{"a"}, &object{"b"}

	assert.Equal(t, 0, r.Identify(a))
	assert.Equal(t, 1, r.Identify(b))
	assert.Equal(t, 2, r.Len())
}

func TestIdentify_Stable(t *testing.T) {
	r := New()
	a := &object{"a"}

	first := r.Identify(a)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Identify(a), "identity must not change")
	}
	assert.Equal(t, 1, r.Len(), "re-identifying must not grow the registry")
}

func TestIdentify_DistinctPointersWithEqualContent(t *testing.T) {
	r := New()

	a1 := &object{"same"}
	a2 := &object{"same"}

	assert.NotEqual(t, r.Identify(a1), r.Identify(a2))
}

func TestResolve(t *testing.T) {
	r := New()
	a := &object{"a"}
	idx := r.Identify(a)

	assert.Same(t, a, r.Resolve(idx))
}

func TestResolve_UnassignedPanics(t *testing.T) {
	r := New()
	r.Identify(&object{"a"})

	tests := []struct {
		name  string
		index int
	}{
		{"past end", 1},
		{"negative", -1},
		{"far past end", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				rec := recover()
				require.NotNil(t, rec, "Resolve should panic")
				err, ok := rec.(*IdentityError)
				require.True(t, ok, "panic value should be *IdentityError, got %T", rec)
				assert.Equal(t, tt.index, err.Index)
				assert.Contains(t, err.Error(), CodeIdentityViolation)
			}()
			r.Resolve(tt.index)
		})
	}
}

func TestLookup(t *testing.T) {
	r := New()
	a := &object{"a"}

	_, ok := r.Lookup(a)
	assert.False(t, ok, "lookup must not assign")
	assert.Equal(t, 0, r.Len())

	idx := r.Identify(a)
	got, ok := r.Lookup(a)
	assert.True(t, ok)
	assert.Equal(t, idx, got)
}

func TestIdentify_Concurrent(t *testing.T) {
	r := New()
	objs := make([]*object, 50)
	for i := range objs {
		objs[i] = &object{}
	}

	var wg sync.WaitGroup
	results := make([][]int, 8)
	for g := range results {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for _, o := range objs {
				results[g] = append(results[g], r.Identify(o))
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, len(objs), r.Len())
	for g := 1; g < len(results); g++ {
		assert.Equal(t, results[0], results[g], "all goroutines must observe the same identities")
	}
}
