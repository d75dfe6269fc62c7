package permuter

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
)

// TestLiteralEmissionOrder pins the exact always-PROCEED emission order
// for |S|=3 given in the component's own algorithm description.
func TestLiteralEmissionOrder(t *testing.T) {
	p, err := New([]string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := [][]string{
		{"a"}, {"a", "b"}, {"a", "b", "c"}, {"a", "c"}, {"a", "c", "b"},
		{"b"}, {"b", "a"}, {"b", "a", "c"}, {"b", "c"}, {"b", "c", "a"},
		{"c"}, {"c", "a"}, {"c", "a", "b"}, {"c", "b"}, {"c", "b", "a"},
	}
	var got [][]string
	for {
		tuple, ok := p.Next()
		if !ok {
			break
		}
		got = append(got, tuple)
		p.Feed(Proceed)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("emission order mismatch\nwant: %v\ngot:  %v", want, got)
	}
}

// subsetsPermutations returns every non-empty permutation of every
// non-empty subset of s, as space-joined strings, for set comparison.
func subsetsPermutations(s []string) map[string]bool {
	out := map[string]bool{}
	n := len(s)
	for mask := 1; mask < (1 << n); mask++ {
		var subset []string
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				subset = append(subset, s[i])
			}
		}
		permute(subset, nil, out)
	}
	return out
}

func permute(rest, path []string, out map[string]bool) {
	if len(rest) == 0 {
		if len(path) > 0 {
			out[fmt.Sprint(path)] = true
		}
		return
	}
	for i := range rest {
		next := append(append([]string{}, path...), rest[i])
		nextRest := append(append([]string{}, rest[:i]...), rest[i+1:]...)
		permute(nextRest, next, out)
	}
}

// TestCoverageP2 checks property P2: for |S| <= 6 and always-PROCEED,
// the emitted tuples equal the set of all non-empty permutations of all
// non-empty subsets of S, exactly once.
func TestCoverageP2(t *testing.T) {
	for n := 1; n <= 6; n++ {
		var s []string
		for i := 0; i < n; i++ {
			s = append(s, fmt.Sprintf("c%d", i))
		}
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			p, err := New(s)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			want := subsetsPermutations(s)
			got := map[string]int{}
			for {
				tuple, ok := p.Next()
				if !ok {
					break
				}
				got[fmt.Sprint(tuple)]++
				p.Feed(Proceed)
			}
			if len(got) != len(want) {
				t.Fatalf("n=%d: got %d distinct tuples, want %d", n, len(got), len(want))
			}
			for k := range want {
				if got[k] != 1 {
					t.Fatalf("n=%d: tuple %q emitted %d times, want exactly 1", n, k, got[k])
				}
			}
			for k := range got {
				if !want[k] {
					t.Fatalf("n=%d: unexpected tuple %q emitted", n, k)
				}
			}
		})
	}
}

// isStrictExtension reports whether ext begins with all of base's
// elements, in order, and has at least one more element.
func isStrictExtension(base, ext []string) bool {
	if len(ext) <= len(base) {
		return false
	}
	for i := range base {
		if base[i] != ext[i] {
			return false
		}
	}
	return true
}

// TestPruningP3 checks property P3: feeding SKIP immediately after
// tuple T prevents emission of any strict extension of T, while every
// non-extension is still emitted.
func TestPruningP3(t *testing.T) {
	s := []string{"a", "b", "c", "d"}
	p, err := New(s)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var skippedAt []string
	var emitted [][]string
	count := 0
	for {
		tuple, ok := p.Next()
		if !ok {
			break
		}
		emitted = append(emitted, append([]string{}, tuple...))
		count++
		// Skip the third tuple emitted (an arbitrary interior node) and
		// proceed on everything else.
		if count == 3 {
			skippedAt = append([]string{}, tuple...)
			p.Feed(Skip)
			continue
		}
		p.Feed(Proceed)
	}

	if skippedAt == nil {
		t.Fatalf("test setup error: never reached the third emission")
	}
	for _, tuple := range emitted {
		if reflect.DeepEqual(tuple, skippedAt) {
			continue
		}
		if isStrictExtension(skippedAt, tuple) {
			t.Fatalf("tuple %v is a strict extension of skipped tuple %v but was emitted", tuple, skippedAt)
		}
	}

	// Every non-extension that an always-PROCEED run would emit must
	// still appear, since SKIP only prunes descendants of skippedAt.
	pAll, _ := New(s)
	var allProceed [][]string
	for {
		tuple, ok := pAll.Next()
		if !ok {
			break
		}
		allProceed = append(allProceed, append([]string{}, tuple...))
		pAll.Feed(Proceed)
	}
	for _, tuple := range allProceed {
		if isStrictExtension(skippedAt, tuple) {
			continue
		}
		found := false
		for _, e := range emitted {
			if reflect.DeepEqual(e, tuple) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("non-extension tuple %v was emitted under always-PROCEED but missing after SKIP", tuple)
		}
	}
}

func TestNewRejectsEmptyAndDuplicates(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for empty input set")
	}
	if _, err := New([]string{"a", "a"}); err == nil {
		t.Fatalf("expected error for duplicate input elements")
	}
}

func TestFeedWithoutNextPanics(t *testing.T) {
	p, _ := New([]string{"a"})
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic calling Feed before Next")
		}
	}()
	p.Feed(Proceed)
}

func TestNextWithoutFeedPanics(t *testing.T) {
	p, _ := New([]string{"a", "b"})
	p.Next()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic calling Next twice without Feed")
		}
	}()
	p.Next()
}

func TestExhaustionReturnsFalse(t *testing.T) {
	p, _ := New([]string{"a"})
	tuple, ok := p.Next()
	if !ok || len(tuple) != 1 {
		t.Fatalf("expected first tuple [a]")
	}
	p.Feed(Skip)
	if _, ok := p.Next(); ok {
		t.Fatalf("expected exhaustion after single-element SKIP")
	}
}

func TestSingleSkipStillExhausts(t *testing.T) {
	p, _ := New([]string{"a", "b", "c"})
	var tuples []string
	for {
		tuple, ok := p.Next()
		if !ok {
			break
		}
		tuples = append(tuples, fmt.Sprint(tuple))
		p.Feed(Skip)
	}
	sort.Strings(tuples)
	want := []string{"[a]", "[b]", "[c]"}
	if !reflect.DeepEqual(tuples, want) {
		t.Fatalf("all-SKIP run = %v, want %v", tuples, want)
	}
}
