// Package imports implements the per-developer import usage analyzer:
// whenever a file is changed or added, its import statements are extracted
// and their usage is counted for the commit author's time bucket.
package imports

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/tickfold/tickfold/internal/analyze"
)

// Size estimation constants. These drive hibernation decisions only.
const (
	baseOverheadBytes = 100
	bytesPerAuthor    = 30
	bytesPerLang      = 20
	bytesPerImport    = 50
)

// Counts maps author -> language -> import path -> count for one tick.
type Counts = map[int]map[string]map[string]int64

// Accumulator aggregates import usage for a single tick.
type Accumulator struct {
	// Counts is keyed by (author, language, import path). Counters are
	// 64-bit so realistic histories never wrap.
	Counts Counts
}

// NewAccumulator creates an empty import usage accumulator.
// It satisfies analyze.Factory.
func NewAccumulator() analyze.Accumulator {
	return &Accumulator{Counts: Counts{}}
}

// Fold increments the count for the entry's (author, language, import) key.
func (a *Accumulator) Fold(e analyze.Entry) {
	langs := a.Counts[e.AuthorID]
	if langs == nil {
		langs = map[string]map[string]int64{}
		a.Counts[e.AuthorID] = langs
	}

	imps := langs[e.Category]
	if imps == nil {
		imps = map[string]int64{}
		langs[e.Category] = imps
	}

	imps[e.Key]++
}

// Merge adds another accumulator's counts into this one, key by key.
func (a *Accumulator) Merge(other analyze.Accumulator) error {
	o, ok := other.(*Accumulator)
	if !ok {
		return fmt.Errorf("%w: got %T", analyze.ErrMergeConflict, other)
	}

	for author, otherLangs := range o.Counts {
		langs := a.Counts[author]
		if langs == nil {
			langs = map[string]map[string]int64{}
			a.Counts[author] = langs
		}

		for lang, otherImps := range otherLangs {
			imps := langs[lang]
			if imps == nil {
				imps = map[string]int64{}
				langs[lang] = imps
			}

			for imp, count := range otherImps {
				imps[imp] += count
			}
		}
	}

	return nil
}

// SizeEstimate returns an estimated resident size in bytes, proportional to
// the number of distinct (author, language, import) combinations.
func (a *Accumulator) SizeEstimate() int64 {
	size := int64(baseOverheadBytes)

	for _, langs := range a.Counts {
		size += int64(bytesPerAuthor)

		for _, imps := range langs {
			size += int64(bytesPerLang)
			size += int64(len(imps) * bytesPerImport)
		}
	}

	return size
}

// MarshalBinary serializes the counts with gob.
func (a *Accumulator) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer

	err := gob.NewEncoder(&buf).Encode(a.Counts)
	if err != nil {
		return nil, fmt.Errorf("imports: encode accumulator: %w", err)
	}

	return buf.Bytes(), nil
}

// UnmarshalBinary restores the counts from gob bytes.
func (a *Accumulator) UnmarshalBinary(data []byte) error {
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a.Counts)
	if err != nil {
		return fmt.Errorf("imports: decode accumulator: %w", err)
	}

	return nil
}
