package composer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelsynth/internal/ir"
	"modelsynth/internal/oracle"
	"modelsynth/internal/regex"
	"modelsynth/internal/types"
)

var includes = strings.Join(oracle.Includes, "\n")

func byteFn(t *testing.T, name string) *ir.Function {
	t.Helper()
	fn, err := ir.NewFunction(name, "computes "+name, []ir.Parameter{
		{Name: "x", Type: ir.Uint8, Doc: "input"},
		{Name: "y", Type: ir.Uint8, Doc: "output"},
	}, nil)
	require.NoError(t, err)
	return fn
}

func predicate(t *testing.T, name string) *ir.Function {
	t.Helper()
	fn, err := ir.NewFunction(name, "accepts x", []ir.Parameter{
		{Name: "x", Type: ir.Uint8},
		{Name: "ok", Type: ir.Bool{}},
	}, nil)
	require.NoError(t, err)
	return fn
}

// scripted answers each prompt with the source registered for the function
// whose body the prompt asks for.
type scripted struct {
	sources map[string]string
	calls   int32
	order   []string
}

func (s *scripted) Generate(_ context.Context, _, user string, _ float64) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	end := strings.Index(user, " {\n    "+oracle.BodyPlaceholder)
	if end < 0 {
		return "", fmt.Errorf("no body placeholder in prompt")
	}
	header := user[strings.LastIndex(user[:end], "\n")+1 : end]
	name := functionName(normalizeSignature(header))
	src, ok := s.sources[name]
	if !ok {
		return "", fmt.Errorf("unexpected prompt for %q", name)
	}
	s.order = append(s.order, name)
	return src, nil
}

func source(body string) string {
	return includes + "\n\n" + body
}

func TestTopologicalSort(t *testing.T) {
	a, b, c := byteFn(t, "a"), byteFn(t, "b"), byteFn(t, "c")
	g := NewGraph()
	g.AddNode(c)
	require.NoError(t, g.AddCall(c, b))
	require.NoError(t, g.AddCall(b, a))

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, []string{"a", "b", "c"}, names(order))
}

func TestAddNodeIsIdempotent(t *testing.T) {
	a, b := byteFn(t, "a"), byteFn(t, "b")
	g := NewGraph()
	g.AddNode(a)
	g.AddNode(a)
	require.NoError(t, g.AddCall(b, a))
	require.NoError(t, g.AddCall(b, a))
	assert.Len(t, g.Nodes(), 2)
	assert.Len(t, g.Dependencies(b), 1)
	assert.Equal(t, []*ir.Function{b}, g.Dependents(a))
}

func TestCycleIsGraphError(t *testing.T) {
	a, b, c := byteFn(t, "a"), byteFn(t, "b"), byteFn(t, "c")
	g := NewGraph()
	require.NoError(t, g.AddCall(b, a))
	require.NoError(t, g.AddCall(c, b))
	require.NoError(t, g.AddCall(a, c))

	_, err := g.TopologicalSort()
	require.Error(t, err)
	assert.True(t, types.IsGraph(err))
	assert.Contains(t, err.Error(), "b -> c -> a -> b")

	gen := &scripted{}
	_, err = Synthesize(context.Background(), g, Options{Generator: gen})
	assert.True(t, types.IsGraph(err))
	assert.Zero(t, gen.calls, "no generation before the graph is validated")
}

func TestSelfEdge(t *testing.T) {
	a := byteFn(t, "a")
	err := NewGraph().AddCall(a, a)
	assert.True(t, types.IsGraph(err))
}

func TestPipeNeedsPredicate(t *testing.T) {
	a, b := byteFn(t, "a"), byteFn(t, "b")
	err := NewGraph().AddPipe(a, b)
	assert.True(t, types.IsGraph(err))
}

func TestEntryPoint(t *testing.T) {
	a, b, c := byteFn(t, "a"), byteFn(t, "b"), byteFn(t, "c")
	ok := predicate(t, "ok")

	g := NewGraph()
	require.NoError(t, g.AddCall(b, a))
	require.NoError(t, g.AddPipe(b, ok))
	entry, err := g.EntryPoint(nil)
	require.NoError(t, err)
	assert.Same(t, b, entry)

	g.AddNode(c)
	_, err = g.EntryPoint(nil)
	require.Error(t, err)
	assert.True(t, types.IsGraph(err))
	assert.Contains(t, err.Error(), "multiple entry points: b, c")

	_, err = NewGraph().EntryPoint(nil)
	assert.True(t, types.IsGraph(err))
}

func TestFilterCalledAsDependency(t *testing.T) {
	e, tgt, x := byteFn(t, "e"), byteFn(t, "t"), predicate(t, "x")

	g := NewGraph()
	require.NoError(t, g.AddCall(e, x, tgt))
	require.NoError(t, g.AddPipe(tgt, x))
	_, err := g.Validate(nil)
	require.Error(t, err)
	assert.True(t, types.IsGraph(err))
	assert.Contains(t, err.Error(), "filter x is also a call dependency of e")

	gen := &scripted{}
	_, err = Synthesize(context.Background(), g, Options{Generator: gen})
	assert.True(t, types.IsGraph(err))
	assert.Zero(t, atomic.LoadInt32(&gen.calls))

	g = NewGraph()
	require.NoError(t, g.AddCall(e, x))
	_, err = g.Validate([]*ir.Function{x})
	assert.True(t, types.IsGraph(err))
}

func TestSynthesizeChain(t *testing.T) {
	a, b, c := byteFn(t, "a"), byteFn(t, "b"), byteFn(t, "c")
	g := NewGraph()
	require.NoError(t, g.AddCall(b, a))
	require.NoError(t, g.AddCall(c, b))

	gen := &scripted{sources: map[string]string{
		"a": source("uint8_t a(uint8_t x) {\n    return x + 1;\n}"),
		"b": source("uint8_t a(uint8_t x);\n\nuint8_t b(uint8_t x) {\n    return a(x) * 2;\n}"),
		"c": source("uint8_t b(uint8_t x);\n\nuint8_t c(uint8_t x) {\n    return b(x) - 3;\n}"),
	}}
	var built []string
	o, err := Synthesize(context.Background(), g, Options{
		Generator: gen,
		OnBuilt:   func(o *oracle.Oracle) { built = append(built, o.Function().Name) },
	})
	require.NoError(t, err)
	assert.Same(t, c, o.Function())
	assert.Equal(t, []string{"a", "b", "c"}, gen.order)
	assert.Equal(t, []string{"a", "b", "c"}, built)

	src := o.Implementation()
	for _, header := range []string{"uint8_t a(uint8_t x) {", "uint8_t b(uint8_t x) {", "uint8_t c(uint8_t x) {"} {
		assert.Equal(t, 1, strings.Count(src, header), header)
	}
	assert.NotContains(t, src, "uint8_t a(uint8_t x);")
	assert.NotContains(t, src, "uint8_t b(uint8_t x);")
	assert.Equal(t, 1, strings.Count(src, "#include <stdint.h>"))
	assert.Less(t, strings.Index(src, "uint8_t a(uint8_t x) {"), strings.Index(src, "uint8_t b(uint8_t x) {"))
	assert.Less(t, strings.Index(src, "uint8_t b(uint8_t x) {"), strings.Index(src, "uint8_t c(uint8_t x) {"))
	assert.Contains(t, src, "int main() {")
	assert.Greater(t, strings.Index(src, "int main() {"), strings.Index(src, "uint8_t c(uint8_t x) {"))
}

func TestSynthesizeSharedDependency(t *testing.T) {
	a, b, c := byteFn(t, "a"), byteFn(t, "b"), byteFn(t, "c")
	g := NewGraph()
	require.NoError(t, g.AddCall(b, a))
	require.NoError(t, g.AddCall(c, a, b))

	gen := &scripted{sources: map[string]string{
		"a": source("uint8_t a(uint8_t x) {\n    return x + 1;\n}"),
		"b": source("uint8_t a(uint8_t x);\n\nuint8_t b(uint8_t x) {\n    return a(x) * 2;\n}"),
		"c": source("uint8_t a(uint8_t x);\nuint8_t b(uint8_t x);\n\nuint8_t c(uint8_t x) {\n    return a(b(x));\n}"),
	}}
	o, err := Synthesize(context.Background(), g, Options{Generator: gen})
	require.NoError(t, err)
	src := o.Implementation()
	assert.Equal(t, 1, strings.Count(src, "uint8_t a(uint8_t x) {"))
	assert.Equal(t, 1, strings.Count(src, "uint8_t b(uint8_t x) {"))
	assert.Less(t, strings.Index(src, "uint8_t a(uint8_t x) {"), strings.Index(src, "uint8_t b(uint8_t x) {"))
}

func TestSynthesizeFilter(t *testing.T) {
	f, ok := byteFn(t, "f"), predicate(t, "ok")
	g := NewGraph()
	require.NoError(t, g.AddPipe(f, ok))

	gen := &scripted{sources: map[string]string{
		"f":  source("uint8_t f(uint8_t x) {\n    return x / 2;\n}"),
		"ok": source("bool ok(uint8_t x) {\n    return x % 2 == 0;\n}"),
	}}
	o, err := Synthesize(context.Background(), g, Options{Generator: gen})
	require.NoError(t, err)
	assert.Same(t, f, o.Function())
	require.Len(t, o.Filters(), 1)

	src := o.Implementation()
	assert.Equal(t, 1, strings.Count(src, "bool ok(uint8_t x) {"))
	assert.Less(t, strings.Index(src, "bool ok(uint8_t x) {"), strings.Index(src, "uint8_t f(uint8_t x) {"))
	assert.Contains(t, src, "if (ok(x0)) {")
	assert.Contains(t, src, "klee_assume(bad_input == x")
}

func TestUnusedFiltersAreNotGenerated(t *testing.T) {
	f, ok, other := byteFn(t, "f"), predicate(t, "ok"), predicate(t, "other")
	h := byteFn(t, "h")
	g := NewGraph()
	require.NoError(t, g.AddPipe(f, ok))
	require.NoError(t, g.AddCall(f, h))
	require.NoError(t, g.AddPipe(h, other))

	gen := &scripted{sources: map[string]string{
		"h":  source("uint8_t h(uint8_t x) {\n    return x;\n}"),
		"f":  source("uint8_t h(uint8_t x);\n\nuint8_t f(uint8_t x) {\n    return h(x);\n}"),
		"ok": source("bool ok(uint8_t x) {\n    return true;\n}"),
	}}
	o, err := Synthesize(context.Background(), g, Options{Generator: gen})
	require.NoError(t, err)
	assert.NotContains(t, gen.order, "other")
	assert.NotContains(t, o.Implementation(), "other(")
}

func TestSynthesizeRegexModule(t *testing.T) {
	digits, err := ir.NewRegexModule("is_digits", "[0-9]+", ir.Parameter{Name: "s", Type: ir.Must(ir.NewString(3))})
	require.NoError(t, err)
	count, err := ir.NewFunction("count", "counts digits", []ir.Parameter{
		{Name: "s", Type: ir.Must(ir.NewString(3))},
		{Name: "n", Type: ir.Uint8},
	}, nil)
	require.NoError(t, err)

	g := NewGraph()
	require.NoError(t, g.AddCall(count, digits))
	gen := &scripted{sources: map[string]string{
		"count": source("bool is_digits(char* s);\n\nuint8_t count(char* s) {\n    return is_digits(s) ? strlen(s) : 0;\n}"),
	}}
	o, err := Synthesize(context.Background(), g, Options{Generator: gen})
	require.NoError(t, err)
	assert.Equal(t, []string{"count"}, gen.order, "regex modules need no generation")

	src := o.Implementation()
	assert.Equal(t, 1, strings.Count(src, regex.RuntimeMarker))
	assert.Less(t, strings.Index(src, regex.RuntimeMarker), strings.Index(src, "bool is_digits(char* s) {"))
	assert.Less(t, strings.Index(src, "bool is_digits(char* s) {"), strings.Index(src, "uint8_t count(char* s) {"))
	assert.NotContains(t, src, "bool is_digits(char* s);")
}

func TestSynthesizeTreeSitterLocator(t *testing.T) {
	a, b := byteFn(t, "a"), byteFn(t, "b")
	g := NewGraph()
	require.NoError(t, g.AddCall(b, a))
	gen := &scripted{sources: map[string]string{
		"a": source("uint8_t a(uint8_t x) {\n    return x + 1;\n}"),
		"b": source("uint8_t a(uint8_t x);\n\nuint8_t b(uint8_t x) {\n    return a(x);\n}"),
	}}
	o, err := Synthesize(context.Background(), g, Options{Generator: gen, Locator: NewTreeSitterLocator()})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(o.Implementation(), "uint8_t a(uint8_t x) {"))
	assert.NotContains(t, o.Implementation(), "uint8_t a(uint8_t x);")
}

func TestTreeSitterLocatorConcurrentUse(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(includes)
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&sb, "\n\nuint8_t helper_%d(uint8_t x) {\n    return x + %d;\n}", i, i%7)
	}
	src := sb.String()

	l := NewTreeSitterLocator()
	var wg sync.WaitGroup
	counts := make([]int, 16)
	errs := make([]error, 16)
	for i := range counts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fns, err := l.Functions(src)
			counts[i], errs[i] = len(fns), err
		}(i)
	}
	wg.Wait()
	for i := range counts {
		require.NoError(t, errs[i])
		assert.Equal(t, 200, counts[i])
	}
}

func TestSynthesizePropagatesGeneratorErrors(t *testing.T) {
	a := byteFn(t, "a")
	g := NewGraph()
	g.AddNode(a)
	failing := types.GeneratorFunc(func(context.Context, string, string, float64) (string, error) {
		return "", types.GenerationError("complete", fmt.Errorf("rate limited"), true)
	})
	_, err := Synthesize(context.Background(), g, Options{Generator: failing})
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))
}

func TestSynthesizeHonorsCancellation(t *testing.T) {
	a := byteFn(t, "a")
	g := NewGraph()
	g.AddNode(a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Synthesize(ctx, g, Options{Generator: &scripted{}})
	assert.ErrorIs(t, err, context.Canceled)
}

func names(fns []*ir.Function) []string {
	out := make([]string, len(fns))
	for i, f := range fns {
		out[i] = f.Name
	}
	return out
}
