package stackless

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestRecordLifecycle(t *testing.T) {
	r := NewRecord()
	if s := r.Status(); s != StatusUnresumed {
		t.Fatalf("unexpected status %s", s)
	}

	if err := r.Enter("Resume"); err != nil {
		t.Fatal(err)
	}
	if s := r.Status(); s != StatusRunning {
		t.Errorf("unexpected status %s", s)
	}
	var misuse *MisuseError
	if err := r.Enter("Resume"); !errors.As(err, &misuse) || misuse.Err != ErrRunning {
		t.Errorf("expected ErrRunning, got %v", err)
	}
	r.Suspend(0)
	r.Set(0, 42)
	r.Leave(nil)
	if s := r.Status(); s != StatusSuspended {
		t.Errorf("unexpected status %s", s)
	}

	if err := r.Enter("Resume"); err != nil {
		t.Fatal(err)
	}
	r.Complete()
	r.Leave(nil)
	if s := r.Status(); s != StatusReturned {
		t.Errorf("unexpected status %s", s)
	}
	if r.Len() != 0 {
		t.Error("slots not released on completion")
	}
	err := r.Enter("Resume")
	if !errors.Is(err, ErrCompleted) {
		t.Errorf("expected ErrCompleted, got %v", err)
	}
	if msg := err.Error(); msg != "stackless.Resume: generator already completed" {
		t.Errorf("unexpected message: %s", msg)
	}
	if r.Status() == StatusRunning {
		t.Error("failed Enter left the record running")
	}
}

func TestRecordLeavePoisons(t *testing.T) {
	r := NewRecord()
	unwound := false

	func() {
		defer func() {
			if v := recover(); v != "boom" {
				t.Errorf("unexpected panic value: %v", v)
			}
		}()
		if err := r.Enter("Resume"); err != nil {
			t.Fatal(err)
		}
		defer r.Leave(func() { unwound = true })
		panic("boom")
	}()

	if !unwound {
		t.Error("unwind was not called")
	}
	if s := r.Status(); s != StatusPoisoned {
		t.Errorf("unexpected status %s", s)
	}
	if r.Discriminant != Returned {
		t.Errorf("poisoned record at %s", r.Discriminant)
	}
	if err := r.Enter("Resume"); !errors.Is(err, ErrPoisoned) {
		t.Errorf("expected ErrPoisoned, got %v", err)
	}
}

func TestRecordMarshal(t *testing.T) {
	for _, test := range []struct {
		name   string
		disc   Discriminant
		poison bool
		slots  []any
	}{
		{name: "unresumed", disc: Unresumed, slots: []any{1}},
		{name: "returned", disc: Returned},
		{name: "poisoned", disc: Returned, poison: true},
		{
			name:  "scalars",
			disc:  3,
			slots: []any{nil, Unit{}, true, -7, int64(math.MinInt64), 0.5, "hello"},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			var r Record
			r.Discriminant = test.disc
			r.Poisoned = test.poison
			for i, v := range test.slots {
				r.Set(i*2, v)
			}
			b, err := r.MarshalAppend(nil)
			if err != nil {
				t.Fatal(err)
			}

			var got Record
			n, err := got.Unmarshal(b)
			if err != nil {
				t.Fatal(err)
			}
			if n != len(b) {
				t.Errorf("read %d bytes out of %d", n, len(b))
			}
			if got.Discriminant != test.disc || got.Poisoned != test.poison {
				t.Errorf("got %s (poisoned=%t)", got.Discriminant, got.Poisoned)
			}
			var slots []any
			got.Range(func(i int, v any) bool {
				if i%2 != 0 {
					t.Errorf("unexpected slot %d", i)
				}
				slots = append(slots, v)
				return true
			})
			if diff := cmp.Diff(test.slots, slots); diff != "" {
				t.Errorf("slots mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecordMarshalUnsupported(t *testing.T) {
	var r Record
	r.Set(0, []int{1})
	if _, err := r.MarshalAppend(nil); err == nil {
		t.Error("expected an error serializing a slice")
	}
}

// recordWithSlot serializes a record parked at discriminant 0 holding the
// value 1 in slot index.
func recordWithSlot(t *testing.T, index uint64) []byte {
	t.Helper()
	value, err := appendValue(nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	var slot []byte
	slot = protowire.AppendTag(slot, slotIndex, protowire.VarintType)
	slot = protowire.AppendVarint(slot, index)
	slot = protowire.AppendTag(slot, slotValue, protowire.BytesType)
	slot = protowire.AppendBytes(slot, value)

	var msg []byte
	msg = protowire.AppendTag(msg, recordDiscriminant, protowire.VarintType)
	msg = protowire.AppendVarint(msg, protowire.EncodeZigZag(0))
	msg = protowire.AppendTag(msg, recordSlot, protowire.BytesType)
	msg = protowire.AppendBytes(msg, slot)
	return protowire.AppendBytes(nil, msg)
}

func TestRecordUnmarshalSlotIndex(t *testing.T) {
	for _, test := range []struct {
		name  string
		index uint64
		slots int
		ok    bool
	}{
		{name: "in layout", index: 1, slots: 2, ok: true},
		{name: "past layout", index: 2, slots: 2},
		{name: "last slot", index: MaxSlots - 1, slots: MaxSlots, ok: true},
		{name: "too many slots", index: MaxSlots, slots: MaxSlots},
		{name: "huge index", index: 1 << 24, slots: MaxSlots},
		{name: "max int32", index: math.MaxInt32, slots: MaxSlots},
	} {
		t.Run(test.name, func(t *testing.T) {
			var r Record
			_, err := r.UnmarshalSlots(recordWithSlot(t, test.index), test.slots)
			if !test.ok {
				if err == nil {
					t.Fatalf("slot %d accepted", test.index)
				}
				if r.Len() != 0 {
					t.Errorf("record modified by a failed unmarshal")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !r.Has(int(test.index)) || r.Len() != 1 {
				t.Errorf("slot %d not restored", test.index)
			}
		})
	}

	var r Record
	if _, err := r.Unmarshal(recordWithSlot(t, 1<<24)); err == nil {
		t.Error("Unmarshal accepted a slot index past MaxSlots")
	}
}
