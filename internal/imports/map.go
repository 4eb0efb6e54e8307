package imports

import (
	"fmt"

	"github.com/tickfold/tickfold/internal/analyze"
)

// Map is the externally documented report shape:
// author -> language -> import path -> tick -> count.
type Map = map[int]map[string]map[string]map[int]int64

// BuildMap flattens per-tick accumulators into the nested report shape.
// It is the analyzer-specific half of the report builder.
func BuildMap(ticks map[int]analyze.Accumulator) (any, error) {
	out := Map{}

	for tick, acc := range ticks {
		a, ok := acc.(*Accumulator)
		if !ok {
			return nil, fmt.Errorf("%w: tick %d holds %T", analyze.ErrMergeConflict, tick, acc)
		}

		for author, langs := range a.Counts {
			aimps := out[author]
			if aimps == nil {
				aimps = map[string]map[string]map[int]int64{}
				out[author] = aimps
			}

			for lang, imps := range langs {
				limps := aimps[lang]
				if limps == nil {
					limps = map[string]map[int]int64{}
					aimps[lang] = limps
				}

				for imp, count := range imps {
					timps := limps[imp]
					if timps == nil {
						timps = map[int]int64{}
						limps[imp] = timps
					}

					timps[tick] += count
				}
			}
		}
	}

	return out, nil
}
