package oracle

import (
	"errors"
	"fmt"

	"modelsynth/internal/ir"
	"modelsynth/internal/types"
)

// Record is one decoded path together with the verdict on keeping it.
type Record struct {
	// Tuple holds the input values in declaration order, then the result
	// unless it is Void.
	Tuple ir.Tuple
	// HasFlag is set for filter harnesses; BadInput is the decoded bit.
	HasFlag  bool
	BadInput bool
	// Missing names the leaves absent from the trace.
	Missing []string
	Kept    bool
	// Reason explains why a record was dropped.
	Reason string
}

// Drop reasons.
const (
	ReasonBadInput     = "bad input"
	ReasonFlagMissing  = "bad-input flag missing"
	ReasonPrecondition = "precondition violated"
	ReasonAbsent       = "precondition needs an absent value"
)

// reader walks a type tree in allocation order, consuming harness names.
type reader struct {
	values  map[string]uint64
	next    int
	missing []string
}

func newReader(record []types.Assignment) *reader {
	r := &reader{values: make(map[string]uint64, len(record))}
	for _, a := range record {
		r.values[a.Name] = a.Value
	}
	return r
}

// skip consumes a name that belongs to a non-symbolic object.
func (r *reader) skip() {
	r.next++
}

func (r *reader) leaf() (uint64, error) {
	n := fmt.Sprintf("x%d", r.next)
	r.next++
	v, ok := r.values[n]
	if !ok {
		r.missing = append(r.missing, n)
		return 0, &types.DecodeError{Name: n}
	}
	return v, nil
}

func (r *reader) value(t ir.Type) ir.Value {
	switch t := ir.Resolve(t).(type) {
	case ir.Bool:
		v, err := r.leaf()
		if err != nil {
			return ir.Absent{}
		}
		return ir.BoolValue(v != 0)
	case ir.Char:
		v, err := r.leaf()
		if err != nil {
			return ir.Absent{}
		}
		return ir.CharValue(byte(v))
	case ir.Int:
		v, err := r.leaf()
		if err != nil {
			return ir.Absent{}
		}
		if t.Width < 64 {
			v &= uint64(1)<<uint(t.Width) - 1
		}
		return ir.IntValue(v)
	case ir.Enum:
		v, err := r.leaf()
		if err != nil || v >= uint64(len(t.Values)) {
			return ir.Absent{}
		}
		return ir.EnumValue{Label: t.Values[v], Index: int(v)}
	case ir.String:
		r.skip()
		buf := make([]byte, 0, t.MaxLen)
		done, absent := false, false
		for i := 0; i < t.MaxLen; i++ {
			v, err := r.leaf()
			if done {
				continue
			}
			switch {
			case err != nil:
				absent = true
				done = true
			case byte(v) == 0:
				done = true
			default:
				buf = append(buf, byte(v))
			}
		}
		if absent {
			return ir.Absent{}
		}
		return ir.StringValue(buf)
	case ir.Array:
		r.skip()
		out := make(ir.ArrayValue, t.Len)
		for i := range out {
			out[i] = r.value(t.Elem)
		}
		return out
	case ir.Struct:
		r.skip()
		out := make(ir.StructValue, len(t.Fields))
		for i, f := range t.Fields {
			out[i] = ir.FieldValue{Name: f.Name, Value: r.value(f.Type)}
		}
		return out
	}
	return ir.Absent{}
}

// decodeRecord mirrors allocate: inputs, then for a void function the plain
// out-parameter (skipped) and its expected value, otherwise the expected
// result, then the bad-input bit of a filter harness.
func (o *Oracle) decodeRecord(record []types.Assignment) Record {
	r := newReader(record)
	fn := o.fn
	var tuple ir.Tuple
	inputs := fn.Inputs
	out, void := fn.OutParam()
	if void {
		inputs = inputs[:len(inputs)-1]
	}
	for _, p := range inputs {
		tuple = append(tuple, r.value(p.Type))
	}
	if void {
		r.skip()
		tuple = append(tuple, r.value(out.Type))
	} else {
		tuple = append(tuple, r.value(fn.Result.Type))
	}

	rec := Record{Tuple: tuple}
	if len(o.filters) > 0 {
		rec.HasFlag = true
		bit, err := r.leaf()
		switch {
		case err != nil:
			rec.Reason = ReasonFlagMissing
		case bit != 0:
			rec.BadInput = true
			rec.Reason = ReasonBadInput
		}
	}
	rec.Missing = r.missing
	if rec.Reason == "" {
		rec.Kept, rec.Reason = o.admit(tuple)
	}
	return rec
}

// admit re-checks the precondition on the decoded values, since the backend
// may report paths on which it does not hold.
func (o *Oracle) admit(tuple ir.Tuple) (bool, string) {
	pre := o.fn.Precondition
	if pre == nil {
		return true, ""
	}
	ok, err := ir.Holds(pre, ir.Bind(o.fn.Outputs(), tuple))
	switch {
	case errors.Is(err, ir.ErrAbsent):
		return false, ReasonAbsent
	case err != nil:
		return false, err.Error()
	case !ok:
		return false, ReasonPrecondition
	}
	return true, ""
}

// DecodeAll decodes every record of trace, kept or not.
func (o *Oracle) DecodeAll(trace types.Trace) []Record {
	records := trace.Records()
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, o.decodeRecord(rec))
	}
	return out
}

// Decode returns the tuples of the records that are kept.
func (o *Oracle) Decode(trace types.Trace) []ir.Tuple {
	var out []ir.Tuple
	for _, rec := range o.DecodeAll(trace) {
		if rec.Kept {
			out = append(out, rec.Tuple)
		}
	}
	return out
}
