package stackless

import (
	"fmt"
	"math"
	"sync/atomic"

	"google.golang.org/protobuf/encoding/protowire"
)

// Record is the state record backing a single generator instance.
//
// Only the slots live at the current discriminant hold values; generated
// code never reads any other slot.
type Record struct {
	// Discriminant is the suspension point the generator is parked at, or
	// one of the Unresumed and Returned sentinels.
	Discriminant Discriminant

	// Poisoned is set when a resume failed. A poisoned record also carries
	// the Returned discriminant.
	Poisoned bool

	// Storage holds the slots of the bindings live at Discriminant.
	Storage

	running atomic.Bool
}

// NewRecord returns a record in the unresumed state.
func NewRecord() *Record {
	r := new(Record)
	r.Init()
	return r
}

// Init resets the record to the unresumed state.
func (r *Record) Init() {
	r.Discriminant = Unresumed
	r.Poisoned = false
	r.Storage.Clear()
}

// Status returns the lifecycle state of the record.
func (r *Record) Status() Status {
	switch {
	case r.running.Load():
		return StatusRunning
	case r.Poisoned:
		return StatusPoisoned
	case r.Discriminant == Returned:
		return StatusReturned
	case r.Discriminant == Unresumed:
		return StatusUnresumed
	default:
		return StatusSuspended
	}
}

// Enter marks the record as running for the duration of op. It returns a
// *MisuseError when the record is already running, completed or poisoned.
//
// A successful Enter must be paired with a deferred call to Leave.
func (r *Record) Enter(op string) error {
	if !r.running.CompareAndSwap(false, true) {
		return &MisuseError{Op: op, Err: ErrRunning}
	}
	var err error
	switch {
	case r.Poisoned:
		err = ErrPoisoned
	case r.Discriminant == Returned:
		err = ErrCompleted
	default:
		return nil
	}
	r.running.Store(false)
	return &MisuseError{Op: op, Err: err}
}

// Leave clears the running flag set by Enter. It must be deferred directly so
// it can observe a panic propagating out of the generator body: the record is
// poisoned, unwind (if not nil) releases what the body still owned, and the
// panic resumes with its original value.
func (r *Record) Leave(unwind func()) {
	if v := recover(); v != nil {
		r.Poison()
		defer r.running.Store(false)
		if unwind != nil {
			unwind()
		}
		panic(v)
	}
	r.running.Store(false)
}

// Suspend parks the record at suspension point d. The caller stores the
// slots live at d after calling Suspend.
func (r *Record) Suspend(d Discriminant) {
	if d < 0 {
		panic("suspend at sentinel discriminant " + d.String())
	}
	r.Discriminant = d
	r.Storage.Clear()
}

// Complete marks the record as returned and releases every slot.
func (r *Record) Complete() {
	r.Discriminant = Returned
	r.Storage.Clear()
}

// Poison permanently marks the record as unusable.
func (r *Record) Poison() {
	r.Complete()
	r.Poisoned = true
}

const (
	recordDiscriminant protowire.Number = 1
	recordPoisoned     protowire.Number = 2
	recordSlot         protowire.Number = 3

	slotIndex protowire.Number = 1
	slotValue protowire.Number = 2

	valueNil     protowire.Number = 1
	valueUnit    protowire.Number = 2
	valueBool    protowire.Number = 3
	valueInt     protowire.Number = 4
	valueInt64   protowire.Number = 5
	valueFloat64 protowire.Number = 6
	valueString  protowire.Number = 7
)

// MarshalAppend appends a serialized Record to the provided buffer.
//
// Only scalar slot values (nil, Unit, bool, int, int64, float64 and string)
// can be serialized.
func (r *Record) MarshalAppend(b []byte) ([]byte, error) {
	if r.running.Load() {
		return b, fmt.Errorf("cannot serialize a running record")
	}
	r.Storage.shrink()

	var msg []byte
	msg = protowire.AppendTag(msg, recordDiscriminant, protowire.VarintType)
	msg = protowire.AppendVarint(msg, protowire.EncodeZigZag(int64(r.Discriminant)))
	if r.Poisoned {
		msg = protowire.AppendTag(msg, recordPoisoned, protowire.VarintType)
		msg = protowire.AppendVarint(msg, 1)
	}

	var err error
	r.Storage.Range(func(i int, v any) bool {
		var value []byte
		if value, err = appendValue(nil, v); err != nil {
			err = fmt.Errorf("slot %d: %w", i, err)
			return false
		}
		var s []byte
		s = protowire.AppendTag(s, slotIndex, protowire.VarintType)
		s = protowire.AppendVarint(s, uint64(i))
		s = protowire.AppendTag(s, slotValue, protowire.BytesType)
		s = protowire.AppendBytes(s, value)
		msg = protowire.AppendTag(msg, recordSlot, protowire.BytesType)
		msg = protowire.AppendBytes(msg, s)
		return true
	})
	if err != nil {
		return b, err
	}
	return protowire.AppendBytes(b, msg), nil
}

// MaxSlots is the number of slots above which Unmarshal rejects a record.
const MaxSlots = 1 << 16

// Unmarshal deserializes a Record from the provided buffer, returning the
// number of bytes that were read in order to reconstruct the record.
func (r *Record) Unmarshal(b []byte) (int, error) {
	return r.UnmarshalSlots(b, MaxSlots)
}

// UnmarshalSlots is like Unmarshal but rejects records holding slots with
// an index outside of [0, slots).
func (r *Record) UnmarshalSlots(b []byte, slots int) (int, error) {
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, fmt.Errorf("invalid record: %w", protowire.ParseError(n))
	}

	var rec Record
	rec.Discriminant = Unresumed
	err := consumeFields(msg, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == recordDiscriminant && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			d := protowire.DecodeZigZag(v)
			if n >= 0 && int64(int(d)) != d {
				return 0, fmt.Errorf("invalid record discriminant: %d", d)
			}
			rec.Discriminant = Discriminant(d)
			return n, nil
		case num == recordPoisoned && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			rec.Poisoned = v != 0
			return n, nil
		case num == recordSlot && typ == protowire.BytesType:
			s, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			return n, rec.unmarshalSlot(s, slots)
		default:
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
	})
	if err != nil {
		return 0, err
	}
	if rec.Poisoned && rec.Discriminant != Returned {
		return 0, fmt.Errorf("invalid record: poisoned at discriminant %s", rec.Discriminant)
	}

	r.Discriminant = rec.Discriminant
	r.Poisoned = rec.Poisoned
	r.Storage = rec.Storage
	return n, nil
}

func (r *Record) unmarshalSlot(b []byte, slots int) error {
	index, hasIndex := -1, false
	var value any
	var hasValue bool
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == slotIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			if n >= 0 && v >= uint64(slots) {
				return 0, fmt.Errorf("invalid slot index: %d", v)
			}
			index, hasIndex = int(v), true
			return n, nil
		case num == slotValue && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			var err error
			value, err = consumeValue(v)
			hasValue = true
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
	})
	if err != nil {
		return err
	}
	if !hasIndex || !hasValue {
		return fmt.Errorf("invalid slot: missing index or value")
	}
	r.Storage.Set(index, value)
	return nil
}

func appendValue(b []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		b = protowire.AppendTag(b, valueNil, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	case Unit:
		b = protowire.AppendTag(b, valueUnit, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	case bool:
		b = protowire.AppendTag(b, valueBool, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(x))
	case int:
		b = protowire.AppendTag(b, valueInt, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(x)))
	case int64:
		b = protowire.AppendTag(b, valueInt64, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(x))
	case float64:
		b = protowire.AppendTag(b, valueFloat64, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(x))
	case string:
		b = protowire.AppendTag(b, valueString, protowire.BytesType)
		b = protowire.AppendString(b, x)
	default:
		return b, fmt.Errorf("cannot serialize value of type %T", v)
	}
	return b, nil
}

func consumeValue(b []byte) (any, error) {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return nil, fmt.Errorf("invalid value: %w", protowire.ParseError(n))
	}
	b = b[n:]
	var v any
	switch {
	case num == valueNil && typ == protowire.VarintType:
		_, n = protowire.ConsumeVarint(b)
	case num == valueUnit && typ == protowire.VarintType:
		_, n = protowire.ConsumeVarint(b)
		v = Unit{}
	case num == valueBool && typ == protowire.VarintType:
		var x uint64
		x, n = protowire.ConsumeVarint(b)
		v = protowire.DecodeBool(x)
	case num == valueInt && typ == protowire.VarintType:
		var x uint64
		x, n = protowire.ConsumeVarint(b)
		i := protowire.DecodeZigZag(x)
		if int64(int(i)) != i {
			return nil, fmt.Errorf("invalid int value: %d", i)
		}
		v = int(i)
	case num == valueInt64 && typ == protowire.VarintType:
		var x uint64
		x, n = protowire.ConsumeVarint(b)
		v = protowire.DecodeZigZag(x)
	case num == valueFloat64 && typ == protowire.Fixed64Type:
		var x uint64
		x, n = protowire.ConsumeFixed64(b)
		v = math.Float64frombits(x)
	case num == valueString && typ == protowire.BytesType:
		v, n = protowire.ConsumeString(b)
	default:
		return nil, fmt.Errorf("invalid value field %d of wire type %d", num, typ)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid value: %w", protowire.ParseError(n))
	}
	return v, nil
}

// consumeFields walks the fields of a message, calling f with the bytes
// following each tag. f returns how many of those bytes it consumed, or a
// negative protowire error code.
func consumeFields(b []byte, f func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid field tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := f(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
