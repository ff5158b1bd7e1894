package options

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"cairn.build/pkg/label"

	"github.com/vmihailenco/msgpack/v5"
	"go.starlark.net/starlark"
)

// MismatchedBaseError indicates that a reconstruction diff was applied
// to a configuration other than the one it was computed against.
type MismatchedBaseError struct{}

func (MismatchedBaseError) Error() string {
	return "cannot reconstruct BuildOptions with a different base"
}

// OptionsDiffForReconstruction is a compact, serializable delta that
// turns one specific base configuration into a target configuration.
// It is bound to the base by fingerprint and only records what
// changed, making it far smaller than the target it reconstructs.
type OptionsDiffForReconstruction struct {
	baseFingerprint        []byte
	changedFields          map[FragmentKind]map[string]any
	addedFragments         []FragmentOptions
	droppedFragmentKinds   []FragmentKind
	changedStarlarkOptions map[label.Label]starlark.Value
	addedStarlarkOptions   map[label.Label]starlark.Value
	droppedStarlarkOptions []label.Label
}

// DiffForReconstruction computes the delta turning base into target.
// The returned diff can only be applied to configurations whose
// fingerprint equals that of base.
func DiffForReconstruction(base, target *BuildOptions, fp Fingerprinter) (*OptionsDiffForReconstruction, error) {
	if base == nil || target == nil {
		return nil, ErrNilBuildOptions
	}
	baseFingerprint, err := fp.FingerprintOptions(base)
	if err != nil {
		return nil, err
	}
	d := &OptionsDiffForReconstruction{
		baseFingerprint:        baseFingerprint,
		changedFields:          map[FragmentKind]map[string]any{},
		changedStarlarkOptions: map[label.Label]starlark.Value{},
		addedStarlarkOptions:   map[label.Label]starlark.Value{},
	}

	for _, kind := range base.FragmentKinds() {
		baseFragment, _ := base.Get(kind)
		targetFragment, ok := target.Get(kind)
		if !ok {
			d.droppedFragmentKinds = append(d.droppedFragmentKinds, kind)
			continue
		}
		for _, field := range fragmentFields(baseFragment) {
			baseValue := fragmentFieldValue(baseFragment, field.index)
			targetValue := fragmentFieldValue(targetFragment, field.index)
			if !equalValues(baseValue, targetValue) {
				changed, ok := d.changedFields[kind]
				if !ok {
					changed = map[string]any{}
					d.changedFields[kind] = changed
				}
				changed[field.name] = targetValue
			}
		}
	}
	for _, kind := range target.FragmentKinds() {
		if !base.Contains(kind) {
			targetFragment, _ := target.Get(kind)
			d.addedFragments = append(d.addedFragments, targetFragment)
		}
	}

	for _, l := range base.StarlarkOptionLabels() {
		baseValue, _ := base.StarlarkOption(l)
		targetValue, ok := target.StarlarkOption(l)
		if !ok {
			d.droppedStarlarkOptions = append(d.droppedStarlarkOptions, l)
			continue
		}
		if !starlarkValuesEqual(baseValue, targetValue) {
			d.changedStarlarkOptions[l] = targetValue
		}
	}
	for _, l := range target.StarlarkOptionLabels() {
		if _, ok := base.StarlarkOption(l); !ok {
			v, _ := target.StarlarkOption(l)
			d.addedStarlarkOptions[l] = v
		}
	}
	return d, nil
}

// IsEmpty returns whether the diff leaves its base unmodified.
func (d *OptionsDiffForReconstruction) IsEmpty() bool {
	return len(d.changedFields) == 0 &&
		len(d.addedFragments) == 0 &&
		len(d.droppedFragmentKinds) == 0 &&
		len(d.changedStarlarkOptions) == 0 &&
		len(d.addedStarlarkOptions) == 0 &&
		len(d.droppedStarlarkOptions) == 0
}

// BaseFingerprint returns the fingerprint of the configuration the
// diff was computed against.
func (d *OptionsDiffForReconstruction) BaseFingerprint() []byte {
	return d.baseFingerprint
}

// ApplyDiff reconstructs the target configuration the diff was
// computed for. Fails with MismatchedBaseError if this configuration
// is not the diff's base. An empty diff yields the receiver itself, so
// that reconstruction of an unchanged configuration preserves instance
// identity.
func (bo *BuildOptions) ApplyDiff(d *OptionsDiffForReconstruction, fp Fingerprinter) (*BuildOptions, error) {
	fingerprint, err := fp.FingerprintOptions(bo)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(fingerprint, d.baseFingerprint) {
		return nil, MismatchedBaseError{}
	}
	if d.IsEmpty() {
		return bo, nil
	}

	dropped := make(map[FragmentKind]struct{}, len(d.droppedFragmentKinds))
	for _, kind := range d.droppedFragmentKinds {
		dropped[kind] = struct{}{}
	}
	fragments := make(map[FragmentKind]FragmentOptions, len(bo.fragments))
	for kind, f := range bo.fragments {
		if _, ok := dropped[kind]; ok {
			continue
		}
		if changed, ok := d.changedFields[kind]; ok {
			clone := cloneFragment(f)
			for name, value := range changed {
				if err := setFragmentField(clone, name, value); err != nil {
					return nil, err
				}
			}
			f = clone
		}
		fragments[kind] = f
	}
	for _, f := range d.addedFragments {
		fragments[f.FragmentKind()] = f
	}

	starlarkOptions := make(map[label.Label]starlark.Value, len(bo.starlarkOptions))
	for l, v := range bo.starlarkOptions {
		starlarkOptions[l] = v
	}
	for _, l := range d.droppedStarlarkOptions {
		delete(starlarkOptions, l)
	}
	for l, v := range d.changedStarlarkOptions {
		starlarkOptions[l] = v
	}
	for l, v := range d.addedStarlarkOptions {
		starlarkOptions[l] = v
	}

	return &BuildOptions{
		fragments:       fragments,
		starlarkOptions: starlarkOptions,
	}, nil
}

func encodeFragmentInstance(enc *msgpack.Encoder, f FragmentOptions) error {
	if err := enc.EncodeString(string(f.FragmentKind())); err != nil {
		return err
	}
	fields := fragmentFields(f)
	if err := enc.EncodeArrayLen(len(fields)); err != nil {
		return err
	}
	for _, field := range fields {
		if err := enc.EncodeString(field.name); err != nil {
			return err
		}
		if err := enc.Encode(canonicalFieldValue(fragmentFieldValue(f, field.index))); err != nil {
			return err
		}
	}
	return nil
}

// MarshalBinary returns a canonical binary encoding of the diff. The
// encoding is byte-stable for structurally equal diffs, allowing it to
// be used as a persistent cache key.
func (d *OptionsDiffForReconstruction) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)

	if err := enc.EncodeBytes(d.baseFingerprint); err != nil {
		return nil, err
	}

	changedKinds := make([]FragmentKind, 0, len(d.changedFields))
	for kind := range d.changedFields {
		changedKinds = append(changedKinds, kind)
	}
	sort.Slice(changedKinds, func(i, j int) bool { return changedKinds[i] < changedKinds[j] })
	if err := enc.EncodeArrayLen(len(changedKinds)); err != nil {
		return nil, err
	}
	for _, kind := range changedKinds {
		if err := enc.EncodeString(string(kind)); err != nil {
			return nil, err
		}
		changed := d.changedFields[kind]
		names := make([]string, 0, len(changed))
		for name := range changed {
			names = append(names, name)
		}
		sort.Strings(names)
		if err := enc.EncodeArrayLen(len(names)); err != nil {
			return nil, err
		}
		for _, name := range names {
			if err := enc.EncodeString(name); err != nil {
				return nil, err
			}
			if err := enc.Encode(canonicalFieldValue(changed[name])); err != nil {
				return nil, err
			}
		}
	}

	added := make([]FragmentOptions, len(d.addedFragments))
	copy(added, d.addedFragments)
	sort.Slice(added, func(i, j int) bool { return added[i].FragmentKind() < added[j].FragmentKind() })
	if err := enc.EncodeArrayLen(len(added)); err != nil {
		return nil, err
	}
	for _, f := range added {
		if err := encodeFragmentInstance(enc, f); err != nil {
			return nil, err
		}
	}

	droppedKinds := make([]FragmentKind, len(d.droppedFragmentKinds))
	copy(droppedKinds, d.droppedFragmentKinds)
	sort.Slice(droppedKinds, func(i, j int) bool { return droppedKinds[i] < droppedKinds[j] })
	if err := enc.EncodeArrayLen(len(droppedKinds)); err != nil {
		return nil, err
	}
	for _, kind := range droppedKinds {
		if err := enc.EncodeString(string(kind)); err != nil {
			return nil, err
		}
	}

	for _, settings := range []map[label.Label]starlark.Value{
		d.changedStarlarkOptions,
		d.addedStarlarkOptions,
	} {
		labels := sortedLabels(settings)
		if err := enc.EncodeArrayLen(len(labels)); err != nil {
			return nil, err
		}
		for _, l := range labels {
			if err := enc.EncodeString(l.String()); err != nil {
				return nil, err
			}
			if err := encodeStarlarkValue(enc, &buf, settings[l]); err != nil {
				return nil, err
			}
		}
	}

	droppedLabels := make([]label.Label, len(d.droppedStarlarkOptions))
	copy(droppedLabels, d.droppedStarlarkOptions)
	sort.Slice(droppedLabels, func(i, j int) bool { return label.Compare(droppedLabels[i], droppedLabels[j]) < 0 })
	if err := enc.EncodeArrayLen(len(droppedLabels)); err != nil {
		return nil, err
	}
	for _, l := range droppedLabels {
		if err := enc.EncodeString(l.String()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeFragmentField(dec *msgpack.Decoder, prototype FragmentOptions, name string) (any, error) {
	for _, field := range fragmentFields(prototype) {
		if field.name != name {
			continue
		}
		fieldType := reflect.TypeOf(prototype).Elem().Field(field.index).Type
		target := reflect.New(fieldType)
		if err := dec.Decode(target.Interface()); err != nil {
			return nil, err
		}
		return target.Elem().Interface(), nil
	}
	return nil, fmt.Errorf("fragment kind %#v has no field %#v", string(prototype.FragmentKind()), name)
}

// UnmarshalDiffForReconstruction decodes a diff previously encoded by
// MarshalBinary. Field values are decoded against the fragment types
// held by the registry, which must match the registry the diff was
// created under.
func UnmarshalDiffForReconstruction(data []byte, registry *Registry) (*OptionsDiffForReconstruction, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	d := &OptionsDiffForReconstruction{
		changedFields:          map[FragmentKind]map[string]any{},
		changedStarlarkOptions: map[label.Label]starlark.Value{},
		addedStarlarkOptions:   map[label.Label]starlark.Value{},
	}

	baseFingerprint, err := dec.DecodeBytes()
	if err != nil {
		return nil, err
	}
	d.baseFingerprint = baseFingerprint

	changedKindsLen, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < changedKindsLen; i++ {
		kindName, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		kind := FragmentKind(kindName)
		prototype, err := registry.Create(kind)
		if err != nil {
			return nil, err
		}
		fieldsLen, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		changed := make(map[string]any, fieldsLen)
		for j := 0; j < fieldsLen; j++ {
			name, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			value, err := decodeFragmentField(dec, prototype, name)
			if err != nil {
				return nil, err
			}
			changed[name] = value
		}
		d.changedFields[kind] = changed
	}

	addedLen, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < addedLen; i++ {
		kindName, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		f, err := registry.Create(FragmentKind(kindName))
		if err != nil {
			return nil, err
		}
		fieldsLen, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		for j := 0; j < fieldsLen; j++ {
			name, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			value, err := decodeFragmentField(dec, f, name)
			if err != nil {
				return nil, err
			}
			if err := setFragmentField(f, name, value); err != nil {
				return nil, err
			}
		}
		d.addedFragments = append(d.addedFragments, f)
	}

	droppedKindsLen, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < droppedKindsLen; i++ {
		kindName, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		d.droppedFragmentKinds = append(d.droppedFragmentKinds, FragmentKind(kindName))
	}

	for _, settings := range []map[label.Label]starlark.Value{
		d.changedStarlarkOptions,
		d.addedStarlarkOptions,
	} {
		settingsLen, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		for i := 0; i < settingsLen; i++ {
			labelName, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			l, err := label.NewLabel(labelName)
			if err != nil {
				return nil, err
			}
			v, err := decodeStarlarkValue(dec)
			if err != nil {
				return nil, err
			}
			settings[l] = v
		}
	}

	droppedStarlarkLen, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < droppedStarlarkLen; i++ {
		labelName, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		l, err := label.NewLabel(labelName)
		if err != nil {
			return nil, err
		}
		d.droppedStarlarkOptions = append(d.droppedStarlarkOptions, l)
	}

	return d, nil
}

// DiffSerializationCache serializes reconstruction diffs. Both
// strategies yield byte-identical output for structurally equal diffs;
// the caching strategy additionally memoizes the encoding per diff
// instance.
type DiffSerializationCache interface {
	Serialize(d *OptionsDiffForReconstruction) ([]byte, error)
}

type deterministicDiffSerializer struct{}

// DeterministicDiffSerializer reserializes every diff from scratch.
var DeterministicDiffSerializer DiffSerializationCache = deterministicDiffSerializer{}

func (deterministicDiffSerializer) Serialize(d *OptionsDiffForReconstruction) ([]byte, error) {
	return d.MarshalBinary()
}

type cachingDiffSerializer struct {
	diffs sync.Map
}

// NewCachingDiffSerializer creates a DiffSerializationCache that
// memoizes encodings by diff instance identity.
func NewCachingDiffSerializer() DiffSerializationCache {
	return &cachingDiffSerializer{}
}

func (c *cachingDiffSerializer) Serialize(d *OptionsDiffForReconstruction) ([]byte, error) {
	if data, ok := c.diffs.Load(d); ok {
		return data.([]byte), nil
	}
	data, err := d.MarshalBinary()
	if err != nil {
		return nil, err
	}
	c.diffs.Store(d, data)
	return data, nil
}
