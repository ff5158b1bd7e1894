package starlark

import (
	"fmt"

	"cairn.build/pkg/starlark/unpack"
)

// BuildSetting describes a dynamically declared, typed configuration
// setting. Unlike native options, which are fields of registered
// fragments, build settings are declared by build files and referenced
// by label. The declared type determines which values transitions may
// assign to the setting.
type BuildSetting struct {
	buildSettingType BuildSettingType
	flag             bool
}

// NewBuildSetting creates a build setting of a given declared type.
// Settings for which flag is true may additionally be overridden on
// the command line.
func NewBuildSetting(buildSettingType BuildSettingType, flag bool) *BuildSetting {
	return &BuildSetting{
		buildSettingType: buildSettingType,
		flag:             flag,
	}
}

func (bs *BuildSetting) String() string {
	return fmt.Sprintf("<config.%s>", bs.buildSettingType.Type())
}

// BuildSettingType returns the declared value type of the setting.
func (bs *BuildSetting) BuildSettingType() BuildSettingType {
	return bs.buildSettingType
}

// IsFlag returns whether the setting may be set on the command line.
func (bs *BuildSetting) IsFlag() bool {
	return bs.flag
}

// BuildSettingType is the declared value type of a build setting. The
// canonicalizer it yields converts values assigned to the setting to
// their canonical Starlark representation, failing for values that are
// not convertible to the declared type.
type BuildSettingType interface {
	Type() string
	GetCanonicalizer() unpack.Canonicalizer
}

type boolBuildSettingType struct{}

var BoolBuildSettingType BuildSettingType = boolBuildSettingType{}

func (boolBuildSettingType) Type() string {
	return "bool"
}

func (boolBuildSettingType) GetCanonicalizer() unpack.Canonicalizer {
	return unpack.Bool
}

// ParseBoolBuildSettingString parses a string override for a boolean
// build setting.
func ParseBoolBuildSettingString(s string) (bool, error) {
	switch s {
	case "0", "false", "False":
		return false, nil
	case "1", "true", "True":
		return true, nil
	default:
		return false, fmt.Errorf("booleans can only have values \"0\", \"1\", \"false\", \"true\", \"False\" and \"True\", not %#v", s)
	}
}

type intBuildSettingType struct{}

var IntBuildSettingType BuildSettingType = intBuildSettingType{}

func (intBuildSettingType) Type() string {
	return "int"
}

func (intBuildSettingType) GetCanonicalizer() unpack.Canonicalizer {
	return unpack.Int[int32]()
}

type stringBuildSettingType struct{}

var StringBuildSettingType BuildSettingType = stringBuildSettingType{}

func (stringBuildSettingType) Type() string {
	return "string"
}

func (stringBuildSettingType) GetCanonicalizer() unpack.Canonicalizer {
	return unpack.String
}

type stringListBuildSettingType struct {
	repeatable bool
}

// NewStringListBuildSettingType creates the declared type of a
// string_list build setting. Repeatable settings additionally accept a
// single string, which is treated as a singleton list.
func NewStringListBuildSettingType(repeatable bool) BuildSettingType {
	return stringListBuildSettingType{
		repeatable: repeatable,
	}
}

func (stringListBuildSettingType) Type() string {
	return "string_list"
}

func (bst stringListBuildSettingType) GetCanonicalizer() unpack.Canonicalizer {
	if bst.repeatable {
		return unpack.Or([]unpack.UnpackerInto[[]string]{
			unpack.List(unpack.String),
			unpack.Singleton(unpack.String),
		})
	}
	return unpack.List(unpack.String)
}
