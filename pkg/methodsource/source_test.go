package methodsource

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/odvcencio/hotreg/pkg/class"
)

func classWith(gen uint64, methods map[string]string) *class.Class {
	c := class.New("svc.go", "Service", class.Metadata{MethodHashes: methods})
	c.Generation = gen
	return c
}

type wantEvent struct {
	kind   class.EventKind
	method string
}

func checkEvents(t *testing.T, got []class.MethodEvent, want []wantEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		if got[i].Kind != w.kind || got[i].Latest().Method != w.method {
			t.Errorf("event %d = %s %s, want %s %s", i, got[i].Kind, got[i].Latest().Method, w.kind, w.method)
		}
	}
}

func TestChangedClassMethodDiff(t *testing.T) {
	prev := classWith(1, map[string]string{"f": "1", "g": "2"})
	curr := classWith(2, map[string]string{"f": "1", "g": "3", "h": "4"})

	got := Diff(class.ChangedEvent(prev, curr))
	checkEvents(t, got, []wantEvent{
		{class.Changed, "g"},
		{class.Added, "h"},
	})
	if got[0].Prev.Class != prev || got[0].Curr.Class != curr {
		t.Fatal("changed method event does not reference both generations")
	}
	if got[0].Prev.Hash != "2" || got[0].Curr.Hash != "3" {
		t.Fatalf("hashes = %s -> %s", got[0].Prev.Hash, got[0].Curr.Hash)
	}
}

func TestChangedClassRemovedMethod(t *testing.T) {
	prev := classWith(1, map[string]string{"f": "1", "g": "2"})
	curr := classWith(2, map[string]string{"f": "9"})

	checkEvents(t, Diff(class.ChangedEvent(prev, curr)), []wantEvent{
		{class.Changed, "f"},
		{class.Removing, "g"},
	})
}

func TestAddedAndRemovedClass(t *testing.T) {
	c := classWith(1, map[string]string{"b": "1", "a": "2"})
	checkEvents(t, Diff(class.AddedEvent(c)), []wantEvent{
		{class.Added, "a"},
		{class.Added, "b"},
	})
	checkEvents(t, Diff(class.RemovingEvent(c)), []wantEvent{
		{class.Removing, "a"},
		{class.Removing, "b"},
	})
}

func TestNoMethods(t *testing.T) {
	c := classWith(1, nil)
	if got := Diff(class.AddedEvent(c)); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestHandleClassEventEmits(t *testing.T) {
	s := New()
	var seen []class.MethodEvent
	s.On(func(ev class.MethodEvent) { seen = append(seen, ev) })

	prev := classWith(1, map[string]string{"f": "1"})
	curr := classWith(2, map[string]string{"f": "2"})
	returned := s.HandleClassEvent(class.ChangedEvent(prev, curr))
	if len(returned) != 1 || len(seen) != 1 {
		t.Fatalf("returned %d, emitted %d", len(returned), len(seen))
	}
	if seen[0].Kind != class.Changed {
		t.Fatalf("kind = %s", seen[0].Kind)
	}
}

// Every method present on either side of a change appears in at most one
// event, and unchanged methods never appear.
func TestDiffCoversChangedMethodsOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		names := []string{"a", "b", "c", "d", "e"}
		hashes := rapid.SampledFrom([]string{"1", "2", "3"})
		draw := func(label string) map[string]string {
			m := make(map[string]string)
			for _, n := range names {
				if rapid.Bool().Draw(rt, label+n) {
					m[n] = hashes.Draw(rt, label+n+"hash")
				}
			}
			return m
		}
		prevMethods, currMethods := draw("prev"), draw("curr")
		events := Diff(class.ChangedEvent(classWith(1, prevMethods), classWith(2, currMethods)))

		seen := make(map[string]class.EventKind)
		for _, ev := range events {
			name := ev.Latest().Method
			if _, dup := seen[name]; dup {
				rt.Fatalf("method %s reported twice", name)
			}
			seen[name] = ev.Kind
		}
		for _, n := range names {
			ph, inPrev := prevMethods[n]
			ch, inCurr := currMethods[n]
			kind, reported := seen[n]
			switch {
			case inPrev && inCurr && ph == ch:
				if reported {
					rt.Fatalf("unchanged method %s reported as %s", n, kind)
				}
			case inPrev && inCurr:
				if kind != class.Changed {
					rt.Fatalf("method %s: %s, want changed", n, kind)
				}
			case inCurr:
				if kind != class.Added {
					rt.Fatalf("method %s: %s, want added", n, kind)
				}
			case inPrev:
				if kind != class.Removing {
					rt.Fatalf("method %s: %s, want removing", n, kind)
				}
			default:
				if reported {
					rt.Fatalf("absent method %s reported", n)
				}
			}
		}
	})
}
