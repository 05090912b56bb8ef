package machine

import (
	"fmt"

	"github.com/stealthrocket/stackless"
	"github.com/stealthrocket/stackless/compiler"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	machineProgram protowire.Number = 1
	machineRecord  protowire.Number = 2
)

// MarshalAppend appends the serialized state of m to b. Machines holding
// captures by reference, or non-scalar values, cannot be serialized.
func (m *Machine) MarshalAppend(b []byte) ([]byte, error) {
	record, err := m.record.MarshalAppend(nil)
	if err != nil {
		return b, fmt.Errorf("%s: %w", m.prog.Name, err)
	}
	return m.appendRecord(b, record), nil
}

func (m *Machine) appendRecord(b, record []byte) []byte {
	var msg []byte
	msg = protowire.AppendTag(msg, machineProgram, protowire.BytesType)
	msg = protowire.AppendString(msg, m.prog.Name)
	msg = protowire.AppendTag(msg, machineRecord, protowire.BytesType)
	msg = protowire.AppendBytes(msg, record)
	return protowire.AppendBytes(b, msg)
}

// Unmarshal restores a machine of p serialized by MarshalAppend, returning
// the number of bytes read from b.
func Unmarshal(p *compiler.Program, env Env, b []byte) (*Machine, int, error) {
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("invalid machine: %w", protowire.ParseError(n))
	}

	var name string
	var record []byte
	for len(msg) > 0 {
		num, typ, tn := protowire.ConsumeTag(msg)
		if tn < 0 {
			return nil, 0, fmt.Errorf("invalid machine: %w", protowire.ParseError(tn))
		}
		msg = msg[tn:]
		var vn int
		switch {
		case num == machineProgram && typ == protowire.BytesType:
			name, vn = protowire.ConsumeString(msg)
		case num == machineRecord && typ == protowire.BytesType:
			record, vn = protowire.ConsumeBytes(msg)
		default:
			vn = protowire.ConsumeFieldValue(num, typ, msg)
		}
		if vn < 0 {
			return nil, 0, fmt.Errorf("invalid machine field %d: %w", num, protowire.ParseError(vn))
		}
		msg = msg[vn:]
	}
	if name != p.Name {
		return nil, 0, fmt.Errorf("machine of program %q cannot be restored as %q", name, p.Name)
	}

	m, err := newMachine(p, env)
	if err != nil {
		return nil, 0, err
	}
	if record == nil {
		return nil, 0, fmt.Errorf("%s: missing state record", p.Name)
	}
	if _, err := m.record.UnmarshalSlots(record, len(p.Slots)); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", p.Name, err)
	}
	if err := m.checkRecord(); err != nil {
		return nil, 0, err
	}
	return m, n, nil
}

// checkRecord verifies that the record holds every slot its discriminant
// needs.
func (m *Machine) checkRecord() error {
	var need []int
	switch d := m.record.Discriminant; {
	case d == stackless.Unresumed:
		for _, v := range m.prog.Params {
			need = append(need, m.prog.SlotOf(v))
		}
	case d == stackless.Returned:
	case d >= 0 && int(d) < len(m.prog.Points):
		for _, s := range m.prog.Points[d].Slots {
			need = append(need, s.Slot)
		}
	default:
		return fmt.Errorf("%s: invalid discriminant %s", m.prog.Name, d)
	}
	for _, i := range need {
		if !m.record.Has(i) {
			return fmt.Errorf("%s: state record at %s is missing slot %d", m.prog.Name, m.record.Discriminant, i)
		}
	}
	return nil
}
