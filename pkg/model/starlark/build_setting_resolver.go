package starlark

import (
	"fmt"
	"sync"

	"cairn.build/pkg/label"
)

// BuildSettingResolver resolves a build setting label to its declared
// setting. Hosts that load build settings from packages provide their
// own implementation; lookups of labels whose defining target is not a
// build setting fail with NotFoundError.
type BuildSettingResolver interface {
	GetBuildSetting(buildSettingLabel label.Label) (*BuildSetting, error)
}

// NotFoundError indicates that a label does not refer to a declared
// build setting.
type NotFoundError struct {
	Label label.Label
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("target %#v is not a build setting", e.Label.String())
}

// BuildSettingRegistry is an in-memory BuildSettingResolver. It is
// safe for concurrent lookups once populated.
type BuildSettingRegistry struct {
	lock     sync.RWMutex
	settings map[label.Label]*BuildSetting
}

var _ BuildSettingResolver = (*BuildSettingRegistry)(nil)

func NewBuildSettingRegistry() *BuildSettingRegistry {
	return &BuildSettingRegistry{
		settings: map[label.Label]*BuildSetting{},
	}
}

// Add registers a build setting under a given label, replacing any
// previous registration.
func (r *BuildSettingRegistry) Add(buildSettingLabel label.Label, buildSetting *BuildSetting) {
	r.lock.Lock()
	r.settings[buildSettingLabel] = buildSetting
	r.lock.Unlock()
}

func (r *BuildSettingRegistry) GetBuildSetting(buildSettingLabel label.Label) (*BuildSetting, error) {
	r.lock.RLock()
	buildSetting, ok := r.settings[buildSettingLabel]
	r.lock.RUnlock()
	if !ok {
		return nil, NotFoundError{Label: buildSettingLabel}
	}
	return buildSetting, nil
}
