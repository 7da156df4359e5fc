package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/risor-io/risor/object"
)

// makeEmitFn returns the emit(name, content) builtin. Output lands in out.
func makeEmitFn(out map[string]string) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("emit", 2, len(args))
		}
		name, ok := args[0].(*object.String)
		if !ok {
			return object.Errorf("emit: name must be a string, got %s", args[0].Type())
		}
		content, ok := args[1].(*object.String)
		if !ok {
			return object.Errorf("emit: content must be a string, got %s", args[1].Type())
		}
		if _, dup := out[name.Value()]; dup {
			return object.Errorf("emit: %s emitted twice", name.Value())
		}
		out[name.Value()] = content.Value()
		return object.Nil
	})
}

// ToObject converts plain Go values into Risor objects. It handles the shapes
// the host passes to scripts: strings, integers, bools, string slices, and
// lists or maps of those.
func ToObject(v any) (object.Object, error) {
	switch val := v.(type) {
	case nil:
		return object.Nil, nil
	case object.Object:
		return val, nil
	case string:
		return object.NewString(val), nil
	case int:
		return object.NewInt(int64(val)), nil
	case int64:
		return object.NewInt(val), nil
	case bool:
		return object.NewBool(val), nil
	case []string:
		items := make([]object.Object, 0, len(val))
		for _, s := range val {
			items = append(items, object.NewString(s))
		}
		return object.NewList(items), nil
	case []map[string]string:
		items := make([]object.Object, 0, len(val))
		for _, m := range val {
			o, err := ToObject(m)
			if err != nil {
				return nil, err
			}
			items = append(items, o)
		}
		return object.NewList(items), nil
	case map[string]string:
		m := make(map[string]object.Object, len(val))
		for k, s := range val {
			m[k] = object.NewString(s)
		}
		return object.NewMap(m), nil
	case []any:
		items := make([]object.Object, 0, len(val))
		for _, item := range val {
			o, err := ToObject(item)
			if err != nil {
				return nil, err
			}
			items = append(items, o)
		}
		return object.NewList(items), nil
	case map[string]any:
		m := make(map[string]object.Object, len(val))
		for k, item := range val {
			o, err := ToObject(item)
			if err != nil {
				return nil, err
			}
			m[k] = o
		}
		return object.NewMap(m), nil
	}
	return nil, fmt.Errorf("runtime: cannot convert %T", v)
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg)
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg)
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg)
}
