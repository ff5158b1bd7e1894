// Package transition implements configuration transitions: functions
// mapping a build configuration to one or more derived configurations,
// composable into arbitrarily deep trees.
package transition

import (
	"cairn.build/pkg/events"
	"cairn.build/pkg/model/options"

	"go.starlark.net/starlark"
)

// CommandLineOptionPrefix marks a transition input or output as
// referring to a native option instead of a Starlark build setting.
const CommandLineOptionPrefix = "//command_line_option:"

// TransformResult is the outcome of applying a transition: the derived
// configurations, and the diagnostic events emitted while computing
// them. The events are owned by the caller; a transition holds no
// buffered state between calls. A result containing error-level events
// has no usable configurations.
type TransformResult struct {
	Options []*options.BuildOptions
	Events  []events.Event
}

// Transition derives one or more configurations from an input
// configuration.
type Transition interface {
	Transform(thread *starlark.Thread, bo *options.BuildOptions) (TransformResult, error)
}

type identityTransition struct{}

// Identity is the transition that leaves the configuration unmodified.
// Its output is the input instance itself, allowing callers to detect
// no-op transitions by reference equality.
var Identity Transition = identityTransition{}

func (identityTransition) Transform(thread *starlark.Thread, bo *options.BuildOptions) (TransformResult, error) {
	return TransformResult{
		Options: []*options.BuildOptions{bo},
	}, nil
}

type composedTransition struct {
	first  Transition
	second Transition
}

// Compose creates the transition that feeds every output of the first
// transition through the second. Outputs are ordered by the first
// transition's output order, each expanded in the second's output
// order, and events of both stages are concatenated in the same order.
func Compose(first, second Transition) Transition {
	if first == Identity {
		return second
	}
	if second == Identity {
		return first
	}
	return composedTransition{
		first:  first,
		second: second,
	}
}

func (ct composedTransition) Transform(thread *starlark.Thread, bo *options.BuildOptions) (TransformResult, error) {
	firstResult, err := ct.first.Transform(thread, bo)
	if err != nil {
		return TransformResult{}, err
	}
	result := TransformResult{
		Events: firstResult.Events,
	}
	if events.HasErrors(firstResult.Events) {
		return result, nil
	}
	for _, intermediate := range firstResult.Options {
		secondResult, err := ct.second.Transform(thread, intermediate)
		if err != nil {
			return TransformResult{}, err
		}
		result.Options = append(result.Options, secondResult.Options...)
		result.Events = append(result.Events, secondResult.Events...)
	}
	return result, nil
}

// VisitStarlarkLeaves walks a transition tree and invokes fn for every
// Starlark-defined leaf, in composition order. Identity and leaves of
// other kinds are skipped. The walk stops at the first error returned
// by fn.
func VisitStarlarkLeaves(t Transition, fn func(*StarlarkTransition) error) error {
	switch typedT := t.(type) {
	case *StarlarkTransition:
		return fn(typedT)
	case composedTransition:
		if err := VisitStarlarkLeaves(typedT.first, fn); err != nil {
			return err
		}
		return VisitStarlarkLeaves(typedT.second, fn)
	default:
		return nil
	}
}
