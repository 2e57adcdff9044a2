package docdb

import (
	"context"
	"fmt"
	"log/slog"
)

// KeyOperation is one atomic command against the key-value store.
type KeyOperation struct {
	Namespace string
	Key       string
	Command   Command
}

func (op KeyOperation) String() string {
	if op.Namespace == "" {
		return op.Key
	}
	return op.Namespace + "/" + op.Key
}

// Command is one of SetCommand, GetCommand, DeleteCommand, IncrementCommand
// and DecrementCommand.
type Command interface {
	isCommand()
}

type KeyCheck uint8

const (
	Always KeyCheck = iota
	OnlyIfPresent
	OnlyIfVacant
)

type SetCommand struct {
	Value          Value
	Check          KeyCheck
	ReturnPrevious bool
}

// GetCommand reads a value, removing it when Delete is set.
type GetCommand struct {
	Delete bool
}

type DeleteCommand struct{}

type IncrementCommand struct {
	Amount     Numeric
	Saturating bool
}

type DecrementCommand struct {
	Amount     Numeric
	Saturating bool
}

func (SetCommand) isCommand()       {}
func (GetCommand) isCommand()       {}
func (DeleteCommand) isCommand()    {}
func (IncrementCommand) isCommand() {}
func (DecrementCommand) isCommand() {}

// Value is a stored key-value value: either a number or raw bytes.
type Value struct {
	Numeric *Numeric `msgpack:"n,omitempty" json:"numeric,omitempty"`
	Bytes   []byte   `msgpack:"b,omitempty" json:"bytes,omitempty"`
}

func NumericValue(n Numeric) Value {
	return Value{Numeric: &n}
}

func BytesValue(b []byte) Value {
	return Value{Bytes: b}
}

func (v Value) String() string {
	if v.Numeric != nil {
		return v.Numeric.String()
	}
	return fmt.Sprintf("%q", v.Bytes)
}

type KeyStatus uint8

const (
	KeyNotChanged KeyStatus = iota
	KeyUpdated
	KeyDeleted
)

func (s KeyStatus) String() string {
	switch s {
	case KeyUpdated:
		return "updated"
	case KeyDeleted:
		return "deleted"
	default:
		return "not-changed"
	}
}

// Output is the result of a KeyOperation. Value is set for reads, for
// numeric commands and for sets that asked for the previous value.
type Output struct {
	Status KeyStatus
	Value  *Value
}

// NumericOp is an increment or decrement of a numeric key. It saturates by
// default.
type NumericOp[V Number] struct {
	op KeyOperation
}

func IncrementKeyBy[V Number](key string, amount V) *NumericOp[V] {
	return &NumericOp[V]{KeyOperation{
		Key:     key,
		Command: IncrementCommand{Amount: NumericOf(amount), Saturating: true},
	}}
}

func DecrementKeyBy[V Number](key string, amount V) *NumericOp[V] {
	return &NumericOp[V]{KeyOperation{
		Key:     key,
		Command: DecrementCommand{Amount: NumericOf(amount), Saturating: true},
	}}
}

func (o *NumericOp[V]) InNamespace(ns string) *NumericOp[V] {
	o.op.Namespace = ns
	return o
}

// AllowOverflow switches to wrapping arithmetic.
func (o *NumericOp[V]) AllowOverflow() *NumericOp[V] {
	switch cmd := o.op.Command.(type) {
	case IncrementCommand:
		cmd.Saturating = false
		o.op.Command = cmd
	case DecrementCommand:
		cmd.Saturating = false
		o.op.Command = cmd
	}
	return o
}

func (o *NumericOp[V]) Operation() KeyOperation {
	return o.op
}

func (o *NumericOp[V]) machine(kv KeyValue) machine[V] {
	op := o.op
	return &single[V]{
		c: func(ctx context.Context) (any, error) {
			return kv.ExecuteKeyOperation(ctx, op)
		},
		finish: func(v any) (V, error) {
			return numericResult[V](op, v.(Output)), nil
		},
	}
}

// Execute runs the operation and returns the value stored afterwards.
func (o *NumericOp[V]) Execute(ctx context.Context, kv KeyValue) (V, error) {
	return run(ctx, o.machine(kv))
}

func (o *NumericOp[V]) Start(ctx context.Context, kv KeyValue) *Future[V] {
	return startFuture(ctx, o.machine(kv))
}

func numericResult[V Number](op KeyOperation, out Output) V {
	var zero V
	expected := NumericOf(zero).TypeName()
	if out.Value == nil || out.Value.Numeric == nil {
		actual := "nothing"
		if out.Value != nil {
			actual = "bytes"
		}
		panic(&TypeMismatchError{op.String(), expected, actual})
	}
	n, err := out.Value.Numeric.Convert(NumericOf(zero).Kind, NumericOf(zero).Bits)
	if err != nil {
		panic(&TypeMismatchError{op.String(), expected, out.Value.Numeric.String()})
	}
	v, err := NumericAs[V](n)
	if err != nil {
		panic(&TypeMismatchError{op.String(), expected, n.String()})
	}
	slog.Debug("docdb: key operation", "key", op.String(), "result", n.String())
	return v
}

func executeKey[R any](ctx context.Context, kv KeyValue, op KeyOperation, finish func(Output) (R, error)) (R, error) {
	c := func(ctx context.Context) (any, error) {
		return kv.ExecuteKeyOperation(ctx, op)
	}
	return once(ctx, c, func(v any) (R, error) {
		return finish(v.(Output))
	})
}

// SetKey stores value under key. It reports whether the value was written,
// which is false only when check was not satisfied.
func SetKey(ctx context.Context, kv KeyValue, ns, key string, value Value, check KeyCheck) (bool, error) {
	op := KeyOperation{ns, key, SetCommand{Value: value, Check: check}}
	return executeKey(ctx, kv, op, func(out Output) (bool, error) {
		return out.Status == KeyUpdated, nil
	})
}

// ReplaceKey stores value and returns the previous value, if any.
func ReplaceKey(ctx context.Context, kv KeyValue, ns, key string, value Value) (*Value, error) {
	op := KeyOperation{ns, key, SetCommand{Value: value, ReturnPrevious: true}}
	return executeKey(ctx, kv, op, func(out Output) (*Value, error) {
		return out.Value, nil
	})
}

// GetKey returns nil when the key is absent.
func GetKey(ctx context.Context, kv KeyValue, ns, key string) (*Value, error) {
	op := KeyOperation{ns, key, GetCommand{}}
	return executeKey(ctx, kv, op, func(out Output) (*Value, error) {
		return out.Value, nil
	})
}

// TakeKey removes the key and returns the value it held.
func TakeKey(ctx context.Context, kv KeyValue, ns, key string) (*Value, error) {
	op := KeyOperation{ns, key, GetCommand{Delete: true}}
	return executeKey(ctx, kv, op, func(out Output) (*Value, error) {
		return out.Value, nil
	})
}

func DeleteKey(ctx context.Context, kv KeyValue, ns, key string) (bool, error) {
	op := KeyOperation{ns, key, DeleteCommand{}}
	return executeKey(ctx, kv, op, func(out Output) (bool, error) {
		return out.Status == KeyDeleted, nil
	})
}

// ApplyKeyCommand computes the effect of cmd on the current value, which is
// nil when the key is absent. When changed is true, next (possibly nil) must
// replace the stored value. Connections call this inside whatever makes the
// read and the write a single atomic step.
func ApplyKeyCommand(current *Value, cmd Command) (next *Value, changed bool, out Output, err error) {
	switch cmd := cmd.(type) {
	case SetCommand:
		ok := cmd.Check == Always ||
			(cmd.Check == OnlyIfPresent && current != nil) ||
			(cmd.Check == OnlyIfVacant && current == nil)
		if cmd.ReturnPrevious {
			out.Value = current
		}
		if !ok {
			return current, false, out, nil
		}
		value := cmd.Value
		out.Status = KeyUpdated
		return &value, true, out, nil

	case GetCommand:
		out.Value = current
		if cmd.Delete && current != nil {
			out.Status = KeyDeleted
			return nil, true, out, nil
		}
		return current, false, out, nil

	case DeleteCommand:
		if current == nil {
			return nil, false, out, nil
		}
		out.Status = KeyDeleted
		return nil, true, out, nil

	case IncrementCommand:
		return applyNumeric(current, cmd.Amount, cmd.Saturating, false)
	case DecrementCommand:
		return applyNumeric(current, cmd.Amount, cmd.Saturating, true)
	default:
		return current, false, out, fmt.Errorf("unsupported key command %T", cmd)
	}
}

func applyNumeric(current *Value, amount Numeric, saturating, negate bool) (*Value, bool, Output, error) {
	if !amount.IsValid() {
		return current, false, Output{}, fmt.Errorf("invalid amount %v", amount)
	}
	base := Numeric{Kind: amount.Kind, Bits: amount.Bits}
	if current != nil {
		if current.Numeric == nil {
			return current, false, Output{}, fmt.Errorf("value is not numeric")
		}
		var err error
		base, err = current.Numeric.Convert(amount.Kind, amount.Bits)
		if err != nil {
			return current, false, Output{}, err
		}
	}
	var result Numeric
	var err error
	if negate {
		result, err = base.Sub(amount, saturating)
	} else {
		result, err = base.Add(amount, saturating)
	}
	if err != nil {
		return current, false, Output{}, err
	}
	next := NumericValue(result)
	return &next, true, Output{Status: KeyUpdated, Value: &next}, nil
}
