package options

import (
	"bytes"
	"crypto/sha256"
	"sort"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"cairn.build/pkg/label"
)

// Fingerprinter computes byte-stable structural hashes of fragments
// and whole configurations. Fingerprints of structurally equal values
// are byte-identical regardless of construction order, in-memory
// layout or the strategy used to compute them; only the cost differs
// between strategies.
type Fingerprinter interface {
	FingerprintFragment(f FragmentOptions) ([]byte, error)
	FingerprintOptions(bo *BuildOptions) ([]byte, error)
}

func computeFragmentFingerprint(f FragmentOptions) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.EncodeString(string(f.FragmentKind())); err != nil {
		return nil, err
	}
	fields := fragmentFields(f)
	if err := enc.EncodeArrayLen(len(fields)); err != nil {
		return nil, err
	}
	for _, field := range fields {
		if err := enc.EncodeString(field.name); err != nil {
			return nil, err
		}
		if err := enc.Encode(canonicalFieldValue(fragmentFieldValue(f, field.index))); err != nil {
			return nil, err
		}
	}
	sum := sha256.Sum256(buf.Bytes())
	return sum[:], nil
}

func computeOptionsFingerprint(bo *BuildOptions, fingerprintFragment func(FragmentOptions) ([]byte, error)) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	kinds := bo.FragmentKinds()
	if err := enc.EncodeArrayLen(len(kinds)); err != nil {
		return nil, err
	}
	for _, kind := range kinds {
		f, _ := bo.Get(kind)
		fragmentFingerprint, err := fingerprintFragment(f)
		if err != nil {
			return nil, err
		}
		if err := enc.EncodeBytes(fragmentFingerprint); err != nil {
			return nil, err
		}
	}

	labels := bo.StarlarkOptionLabels()
	if err := enc.EncodeArrayLen(len(labels)); err != nil {
		return nil, err
	}
	for _, l := range labels {
		if err := enc.EncodeString(l.String()); err != nil {
			return nil, err
		}
		v, _ := bo.StarlarkOption(l)
		if err := encodeStarlarkValue(enc, &buf, v); err != nil {
			return nil, err
		}
	}

	sum := sha256.Sum256(buf.Bytes())
	return sum[:], nil
}

type deterministicFingerprinter struct{}

// DeterministicFingerprinter recomputes every fingerprint from
// scratch. Its output only depends on the structure of the value being
// fingerprinted, making it suitable where cross-process stability is
// required (e.g., persisted caches).
var DeterministicFingerprinter Fingerprinter = deterministicFingerprinter{}

func (deterministicFingerprinter) FingerprintFragment(f FragmentOptions) ([]byte, error) {
	return computeFragmentFingerprint(f)
}

func (deterministicFingerprinter) FingerprintOptions(bo *BuildOptions) ([]byte, error) {
	return computeOptionsFingerprint(bo, computeFragmentFingerprint)
}

type cachingFingerprinter struct {
	fragments sync.Map
	options   sync.Map
}

// NewCachingFingerprinter creates a Fingerprinter that memoizes
// fingerprints by instance identity for the lifetime of the cache. As
// fingerprinting is pure, concurrent races at worst cause redundant
// recomputation, never incorrect results.
func NewCachingFingerprinter() Fingerprinter {
	return &cachingFingerprinter{}
}

func (fp *cachingFingerprinter) FingerprintFragment(f FragmentOptions) ([]byte, error) {
	if fingerprint, ok := fp.fragments.Load(f); ok {
		return fingerprint.([]byte), nil
	}
	fingerprint, err := computeFragmentFingerprint(f)
	if err != nil {
		return nil, err
	}
	fp.fragments.Store(f, fingerprint)
	return fingerprint, nil
}

func (fp *cachingFingerprinter) FingerprintOptions(bo *BuildOptions) ([]byte, error) {
	if fingerprint, ok := fp.options.Load(bo); ok {
		return fingerprint.([]byte), nil
	}
	fingerprint, err := computeOptionsFingerprint(bo, fp.FingerprintFragment)
	if err != nil {
		return nil, err
	}
	fp.options.Store(bo, fingerprint)
	return fingerprint, nil
}

// sortedLabels returns the labels of a map in canonical order.
func sortedLabels[V any](m map[label.Label]V) []label.Label {
	labels := make([]label.Label, 0, len(m))
	for l := range m {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return label.Compare(labels[i], labels[j]) < 0 })
	return labels
}
