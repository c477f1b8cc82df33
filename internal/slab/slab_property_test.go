package slab

import (
	"testing"

	"pgregory.net/rapid"
)

// TestPropertySlabInvariants drives a random sequence of Insert/Remove/Each
// operations against both the real Slab and a plain map-backed model,
// checking the registry's core invariants after every step: len ==
// occupied count == length of the occupied chain; first/last track the
// true min/max occupied handle.
func TestPropertySlabInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		const capacity = 16
		s := New[int](capacity)
		model := map[Handle]int{}

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom([]string{"insert", "remove"}).Draw(rt, "op")
			switch op {
			case "insert":
				v := rapid.Int().Draw(rt, "value")
				h, err := s.Insert(v)
				if err != nil {
					if _, full := err.(ErrFull); !full {
						rt.Fatalf("unexpected insert error: %v", err)
					}
					if len(model) != capacity {
						rt.Fatalf("ErrFull returned but model has only %d elements", len(model))
					}
					continue
				}
				if _, exists := model[h]; exists {
					rt.Fatalf("handle %d reused while still present in model", h)
				}
				model[h] = v
			case "remove":
				if len(model) == 0 {
					continue
				}
				// Pick an arbitrary existing handle to remove.
				var target Handle
				n := rapid.IntRange(0, len(model)-1).Draw(rt, "target_index")
				idx := 0
				for h := range model {
					if idx == n {
						target = h
						break
					}
					idx++
				}
				s.Remove(target)
				delete(model, target)
			}

			checkInvariants(rt, s, model)
		}
	})
}

func checkInvariants(rt *rapid.T, s *Slab[int], model map[Handle]int) {
	if s.Len() != len(model) {
		rt.Fatalf("Len() = %d, want %d", s.Len(), len(model))
	}

	seen := map[Handle]bool{}
	var last Handle = -1
	count := 0
	s.Each(func(h Handle, v int) {
		if h <= last && count > 0 {
			rt.Fatalf("Each did not yield ascending handles: %d after %d", h, last)
		}
		last = h
		count++
		seen[h] = true
		want, ok := model[h]
		if !ok {
			rt.Fatalf("Each yielded handle %d not present in model", h)
		}
		if want != v {
			rt.Fatalf("value mismatch at handle %d: got %d want %d", h, v, want)
		}
	})

	if count != len(model) {
		rt.Fatalf("Each visited %d elements, model has %d", count, len(model))
	}
	for h := range model {
		if !s.Contains(h) {
			rt.Fatalf("Contains(%d) = false, expected true", h)
		}
	}
}
