package label

import (
	"errors"
	"regexp"
	"strings"
)

// Label is the validated name of a build setting or other addressable
// target, having the form //package:target_name, optionally prefixed
// with an "@repo". Labels whose target name equals the last component
// of the package path are stored with the target name elided, so that
// every label has exactly one canonical string representation.
type Label struct {
	value string
}

const (
	validRepoPattern       = `@[a-zA-Z][\w.\-~+]*`
	validPackagePattern    = `[\w.\-~ ]*(/[\w.\-~ ]+)*`
	validTargetNamePattern = `[\w.\-~ /+]+`
	validLabelPattern      = `(` + validRepoPattern + `)?//` + validPackagePattern + `(:` + validTargetNamePattern + `)?`
)

var validLabelRegexp = regexp.MustCompile("^" + validLabelPattern + "$")

var errInvalidLabel = errors.New("label must match " + validLabelPattern)

// removeTargetNameIfRedundant strips the target name from a label if
// it is equal to the last component of the package path, yielding the
// canonical representation.
func removeTargetNameIfRedundant(value string) string {
	colonOffset := strings.LastIndexByte(value, ':')
	if colonOffset < 0 {
		return value
	}
	packagePath := value[strings.Index(value, "//")+2 : colonOffset]
	targetName := value[colonOffset+1:]
	if lastSlash := strings.LastIndexByte(packagePath, '/'); packagePath[lastSlash+1:] == targetName && packagePath != "" {
		return value[:colonOffset]
	}
	return value
}

// NewLabel validates that the provided string is a well formed label.
// If so, an instance of Label wrapping its canonical representation is
// returned.
func NewLabel(value string) (Label, error) {
	if !validLabelRegexp.MatchString(value) {
		return Label{}, errInvalidLabel
	}
	canonical := removeTargetNameIfRedundant(value)
	if strings.HasSuffix(canonical, "//") {
		// Labels like "//" have neither a package path nor a
		// target name to infer one from.
		return Label{}, errInvalidLabel
	}
	return Label{value: canonical}, nil
}

// MustNewLabel is the same as NewLabel, except that it panics if the
// provided string is not a valid label.
func MustNewLabel(value string) Label {
	l, err := NewLabel(value)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Label) String() string {
	return l.value
}

// GetPackagePath returns the package path part of the label (i.e., the
// part between "//" and ":").
func (l Label) GetPackagePath() string {
	packageStart := strings.Index(l.value, "//") + 2
	if colonOffset := strings.LastIndexByte(l.value, ':'); colonOffset >= 0 {
		return l.value[packageStart:colonOffset]
	}
	return l.value[packageStart:]
}

// GetTargetName returns the target name part of the label. For labels
// in canonical form without an explicit target name, the last
// component of the package path is returned.
func (l Label) GetTargetName() string {
	if colonOffset := strings.LastIndexByte(l.value, ':'); colonOffset >= 0 {
		return l.value[colonOffset+1:]
	}
	packagePath := l.GetPackagePath()
	return packagePath[strings.LastIndexByte(packagePath, '/')+1:]
}

// Compare two labels by their canonical string representation,
// yielding a total order suitable for sorted storage.
func Compare(a, b Label) int {
	return strings.Compare(a.value, b.value)
}
