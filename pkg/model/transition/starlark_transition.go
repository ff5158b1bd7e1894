package transition

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"cairn.build/pkg/events"
	"cairn.build/pkg/label"
	"cairn.build/pkg/model/options"
	"cairn.build/pkg/starlark/unpack"

	"go.starlark.net/starlark"
)

// Definition is the declaration of a user-defined transition: the
// Starlark implementation function, the settings it reads and the
// settings it writes. Inputs and outputs refer to native options by
// the command line option prefix and to Starlark build settings by
// label.
type Definition struct {
	Implementation starlark.Callable
	Inputs         []string
	Outputs        []string
}

// StarlarkTransition is a leaf transition whose behavior is provided
// by a user-written Starlark function. Failures of the user's code are
// reported as error-level events in the transform result, not as Go
// errors, so that they can be surfaced to the build author during
// validation.
type StarlarkTransition struct {
	definition Definition
	registry   *options.Registry
}

func NewStarlarkTransition(definition Definition, registry *options.Registry) *StarlarkTransition {
	return &StarlarkTransition{
		definition: definition,
		registry:   registry,
	}
}

// Outputs returns the setting identifiers the transition declares to
// write.
func (st *StarlarkTransition) Outputs() []string {
	return st.definition.Outputs
}

func (st *StarlarkTransition) Transform(thread *starlark.Thread, bo *options.BuildOptions) (TransformResult, error) {
	var evts []events.Event
	fail := func(format string, args ...any) TransformResult {
		evts = append(evts, events.Errorf(format, args...))
		return TransformResult{Events: evts}
	}

	settings := starlark.NewDict(len(st.definition.Inputs))
	for _, input := range st.definition.Inputs {
		value, err := st.inputValue(bo, input)
		if err != nil {
			return fail("%s", err), nil
		}
		if err := settings.SetKey(starlark.String(input), value); err != nil {
			return TransformResult{}, err
		}
	}
	settings.Freeze()

	previousPrint := thread.Print
	thread.Print = func(_ *starlark.Thread, msg string) {
		evts = append(evts, events.Infof("%s", msg))
	}
	defer func() { thread.Print = previousPrint }()

	result, err := starlark.Call(
		thread,
		st.definition.Implementation,
		/* args = */ starlark.Tuple{
			settings,
			transitionAttr{},
		},
		/* kwargs = */ nil,
	)
	if err != nil {
		var evalErr *starlark.EvalError
		if errors.As(err, &evalErr) {
			return fail("%s", evalErr.Backtrace()), nil
		}
		return fail("%s", err), nil
	}

	outputDicts, err := classifyTransitionResult(thread, result)
	if err != nil {
		return fail("%s", err), nil
	}

	outputs := make([]*options.BuildOptions, 0, len(outputDicts))
	for _, outputDict := range outputDicts {
		derived, err := st.applyOutputs(bo, outputDict)
		if err != nil {
			return fail("%s", err), nil
		}
		outputs = append(outputs, derived)
	}
	return TransformResult{
		Options: outputs,
		Events:  evts,
	}, nil
}

func (st *StarlarkTransition) inputValue(bo *options.BuildOptions, input string) (starlark.Value, error) {
	if name, ok := strings.CutPrefix(input, CommandLineOptionPrefix); ok {
		option, ok := st.registry.LookupOption(name)
		if !ok {
			return nil, fmt.Errorf("transition input %#v does not refer to a known native option", input)
		}
		f, ok := bo.Get(option.FragmentKind())
		if !ok {
			return nil, fmt.Errorf("transition input %#v refers to fragment kind %#v, which is not present in the configuration", input, string(option.FragmentKind()))
		}
		return nativeValueToStarlark(option.Value(f))
	}
	l, err := label.NewLabel(input)
	if err != nil {
		return nil, fmt.Errorf("transition input %#v is not a valid label: %w", input, err)
	}
	if v, ok := bo.StarlarkOption(l); ok {
		return v, nil
	}
	return starlark.None, nil
}

// classifyTransitionResult normalizes the return value of a transition
// implementation function to a list of output dictionaries. A plain
// dict is a 1:1 transition; a list of dicts or a dict of dicts is a
// split, the latter expanded in sorted key order.
func classifyTransitionResult(thread *starlark.Thread, result starlark.Value) ([]map[string]starlark.Value, error) {
	switch typedResult := result.(type) {
	case starlark.Indexable:
		var outputsList []map[string]starlark.Value
		if err := unpack.List(unpack.Dict(unpack.String, unpack.Any)).UnpackInto(thread, typedResult, &outputsList); err != nil {
			return nil, err
		}
		return outputsList, nil
	case starlark.IterableMapping:
		gotEntries := false
		dictOfDicts := true
		for _, item := range typedResult.Items() {
			gotEntries = true
			if _, ok := item[1].(starlark.Mapping); !ok {
				dictOfDicts = false
				break
			}
		}
		if gotEntries && dictOfDicts {
			var outputsByName map[string]map[string]starlark.Value
			if err := unpack.Dict(unpack.String, unpack.Dict(unpack.String, unpack.Any)).UnpackInto(thread, typedResult, &outputsByName); err != nil {
				return nil, err
			}
			names := make([]string, 0, len(outputsByName))
			for name := range outputsByName {
				names = append(names, name)
			}
			sort.Strings(names)
			outputsList := make([]map[string]starlark.Value, 0, len(names))
			for _, name := range names {
				outputsList = append(outputsList, outputsByName[name])
			}
			return outputsList, nil
		}
		var outputs map[string]starlark.Value
		if err := unpack.Dict(unpack.String, unpack.Any).UnpackInto(thread, typedResult, &outputs); err != nil {
			return nil, err
		}
		return []map[string]starlark.Value{outputs}, nil
	default:
		return nil, errors.New("transition did not yield a list or dict")
	}
}

func (st *StarlarkTransition) applyOutputs(bo *options.BuildOptions, outputDict map[string]starlark.Value) (*options.BuildOptions, error) {
	declared := make(map[string]struct{}, len(st.definition.Outputs))
	for _, output := range st.definition.Outputs {
		declared[output] = struct{}{}
	}
	for name := range outputDict {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("transition returned a value for %#v, which is not among its declared outputs", name)
		}
	}

	builder := bo.ToBuilder()
	fragments := map[options.FragmentKind]options.FragmentOptions{}
	for _, output := range st.definition.Outputs {
		value, ok := outputDict[output]
		if !ok {
			return nil, fmt.Errorf("transition did not return a value for declared output %#v", output)
		}
		if name, ok := strings.CutPrefix(output, CommandLineOptionPrefix); ok {
			option, ok := st.registry.LookupOption(name)
			if !ok {
				return nil, fmt.Errorf("transition output %#v does not refer to a known native option", output)
			}
			kind := option.FragmentKind()
			f, ok := fragments[kind]
			if !ok {
				if f, ok = bo.Get(kind); !ok {
					return nil, fmt.Errorf("transition output %#v refers to fragment kind %#v, which is not present in the configuration", output, string(kind))
				}
			}
			native, err := starlarkValueToNative(value, option.FieldType())
			if err != nil {
				return nil, fmt.Errorf("invalid value for transition output %#v: %w", output, err)
			}
			modified, err := option.WithValue(f, native)
			if err != nil {
				return nil, fmt.Errorf("invalid value for transition output %#v: %w", output, err)
			}
			fragments[kind] = modified
		} else {
			l, err := label.NewLabel(output)
			if err != nil {
				return nil, fmt.Errorf("transition output %#v is not a valid label: %w", output, err)
			}
			builder.SetStarlarkOption(l, value)
		}
	}
	for _, f := range fragments {
		builder.AddFragment(f)
	}
	return builder.Build(), nil
}

func nativeValueToStarlark(value any) (starlark.Value, error) {
	switch typedValue := value.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(typedValue), nil
	case string:
		return starlark.String(typedValue), nil
	case *string:
		if typedValue == nil {
			return starlark.None, nil
		}
		return starlark.String(*typedValue), nil
	case int:
		return starlark.MakeInt(typedValue), nil
	case int32:
		return starlark.MakeInt(int(typedValue)), nil
	case int64:
		return starlark.MakeInt64(typedValue), nil
	case []string:
		elements := make([]starlark.Value, 0, len(typedValue))
		for _, element := range typedValue {
			elements = append(elements, starlark.String(element))
		}
		return starlark.NewList(elements), nil
	default:
		return nil, fmt.Errorf("native option values of type %T cannot be converted to Starlark", value)
	}
}

func starlarkValueToNative(v starlark.Value, t reflect.Type) (any, error) {
	switch t.Kind() {
	case reflect.Bool:
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("got %s, want bool", v.Type())
		}
		return bool(b), nil
	case reflect.String:
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("got %s, want string", v.Type())
		}
		return s, nil
	case reflect.Int, reflect.Int32, reflect.Int64:
		i, ok := v.(starlark.Int)
		if !ok {
			return nil, fmt.Errorf("got %s, want int", v.Type())
		}
		i64, ok := i.Int64()
		if !ok {
			return nil, fmt.Errorf("%s is out of range", i)
		}
		native := reflect.New(t).Elem()
		if native.OverflowInt(i64) {
			return nil, fmt.Errorf("%s is out of range", i)
		}
		native.SetInt(i64)
		return native.Interface(), nil
	case reflect.Pointer:
		if v == starlark.None {
			return reflect.Zero(t).Interface(), nil
		}
		element, err := starlarkValueToNative(v, t.Elem())
		if err != nil {
			return nil, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(reflect.ValueOf(element))
		return p.Interface(), nil
	case reflect.Slice:
		iterable, ok := v.(starlark.Iterable)
		if !ok {
			return nil, fmt.Errorf("got %s, want list", v.Type())
		}
		iter := iterable.Iterate()
		defer iter.Done()
		slice := reflect.MakeSlice(t, 0, 0)
		var element starlark.Value
		for iter.Next(&element) {
			native, err := starlarkValueToNative(element, t.Elem())
			if err != nil {
				return nil, fmt.Errorf("at index %d: %w", slice.Len(), err)
			}
			slice = reflect.Append(slice, reflect.ValueOf(native))
		}
		return slice.Interface(), nil
	default:
		return nil, fmt.Errorf("native options of type %s cannot be set from Starlark", t)
	}
}

type transitionAttr struct{}

var _ starlark.HasAttrs = transitionAttr{}

func (transitionAttr) String() string {
	return "<transition_attr>"
}

func (transitionAttr) Type() string {
	return "transition_attr"
}

func (transitionAttr) Freeze() {}

func (transitionAttr) Truth() starlark.Bool {
	return starlark.True
}

func (transitionAttr) Hash() (uint32, error) {
	return 0, errors.New("transition_attr cannot be hashed")
}

func (transitionAttr) Attr(name string) (starlark.Value, error) {
	return nil, errors.New("transition depends on rule attrs, which are not available in this context")
}

func (transitionAttr) AttrNames() []string {
	return nil
}
