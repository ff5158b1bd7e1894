package transition

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cairn.build/pkg/events"
	"cairn.build/pkg/label"
	model_starlark "cairn.build/pkg/model/starlark"

	"go.starlark.net/starlark"
)

// TransitionError indicates that a user-defined transition misbehaved:
// its implementation reported errors, it transitioned on a label that
// is not a build setting, or it wrote a value that is not convertible
// to a setting's declared type.
type TransitionError struct {
	Message string
	Cause   error
}

func (e TransitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause)
	}
	return e.Message
}

func (e TransitionError) Unwrap() error {
	return e.Cause
}

// ValidateOutputs checks the combined result of a (possibly composite)
// transition after it has produced its outputs. All diagnostic events
// are replayed to the sink, regardless of the outcome. Validation
// fails if any event is error-level, if a Starlark leaf declares a
// dynamic output that is not a build setting, or if a final output
// value is not convertible to its setting's declared type.
//
// Only the final output values are type-checked. In a composition
// where an early stage writes a bad value that a later stage
// overwrites with a good one, the bad intermediate write goes
// undetected. This is a known limitation.
func ValidateOutputs(thread *starlark.Thread, root Transition, result TransformResult, resolver model_starlark.BuildSettingResolver, sink events.Sink) error {
	sink.Replay(result.Events)
	if events.HasErrors(result.Events) {
		return TransitionError{Message: "errors encountered while applying a user-defined transition"}
	}

	settingTypes, err := collectDeclaredSettingTypes(root, resolver)
	if err != nil {
		return err
	}

	for _, bo := range result.Options {
		for _, l := range sortedSettingLabels(settingTypes) {
			value, ok := bo.StarlarkOption(l)
			if !ok {
				continue
			}
			canonicalizer := settingTypes[l].GetCanonicalizer()
			if _, err := canonicalizer.Canonicalize(thread, value); err != nil {
				return TransitionError{
					Message: fmt.Sprintf("invalid value for build setting '%s'", l.String()),
					Cause:   err,
				}
			}
		}
	}
	return nil
}

// collectDeclaredSettingTypes resolves every dynamic output declared
// by any Starlark leaf to its build setting's declared type. If the
// same setting is declared by multiple leaves, the first resolved type
// is kept.
func collectDeclaredSettingTypes(root Transition, resolver model_starlark.BuildSettingResolver) (map[label.Label]model_starlark.BuildSettingType, error) {
	settingTypes := map[label.Label]model_starlark.BuildSettingType{}
	if err := VisitStarlarkLeaves(root, func(st *StarlarkTransition) error {
		for _, output := range st.Outputs() {
			if strings.HasPrefix(output, CommandLineOptionPrefix) {
				continue
			}
			l, err := label.NewLabel(output)
			if err != nil {
				return TransitionError{
					Message: fmt.Sprintf("attempting to transition on '%s' which is not a build setting", output),
					Cause:   err,
				}
			}
			if _, ok := settingTypes[l]; ok {
				continue
			}
			setting, err := resolver.GetBuildSetting(l)
			if err != nil {
				var notFound model_starlark.NotFoundError
				if errors.As(err, &notFound) {
					return TransitionError{
						Message: fmt.Sprintf("attempting to transition on '%s' which is not a build setting", output),
					}
				}
				return err
			}
			settingTypes[l] = setting.BuildSettingType()
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return settingTypes, nil
}

// CollectChangedSettings returns the sorted labels of all dynamic
// settings any Starlark leaf of the transition declares to write.
func CollectChangedSettings(root Transition) ([]label.Label, error) {
	seen := map[label.Label]struct{}{}
	var labels []label.Label
	if err := VisitStarlarkLeaves(root, func(st *StarlarkTransition) error {
		for _, output := range st.Outputs() {
			if strings.HasPrefix(output, CommandLineOptionPrefix) {
				continue
			}
			l, err := label.NewLabel(output)
			if err != nil {
				return fmt.Errorf("transition output %#v is not a valid label: %w", output, err)
			}
			if _, ok := seen[l]; !ok {
				seen[l] = struct{}{}
				labels = append(labels, l)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sortLabels(labels)
	return labels, nil
}

func sortedSettingLabels(m map[label.Label]model_starlark.BuildSettingType) []label.Label {
	labels := make([]label.Label, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sortLabels(labels)
	return labels
}

func sortLabels(labels []label.Label) {
	sort.Slice(labels, func(i, j int) bool { return label.Compare(labels[i], labels[j]) < 0 })
}
