package pii

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/vault-aegis/sentinel/internal/pii/validators"
	"go.uber.org/zap"
)

// Entity is a candidate produced by an external named-entity recognizer.
// Start/End are byte offsets into the scanned text.
type Entity struct {
	Type  string // recognizer label, e.g. "PERSON", "LOCATION"
	Text  string
	Start int
	End   int
	Score float64
}

// Recognizer supplies NER candidates for types that are not reliably
// expressible as patterns. Implementations may be backed by anything;
// errors are treated as "no candidates".
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// RecognizerFactory builds a Recognizer on first use. Returning an error
// disables NER for the process lifetime; detection continues regex-only.
type RecognizerFactory func() (Recognizer, error)

// entityTypeMap maps recognizer labels to registry type identifiers.
// Labels not listed here are ignored.
var entityTypeMap = map[string]string{
	"PERSON":   "PERSON_NAME",
	"ORG":      "PERSON_NAME", // organization names can embed person names
	"GPE":      "PHYSICAL_ADDRESS",
	"LOCATION": "PHYSICAL_ADDRESS",
}

// Detector scans text for sensitive-data spans using the registry's
// priority-ordered pattern table, with an optional NER capability.
// Safe for concurrent use: the registry is read-only and recognizer
// initialization is guarded by a sync.Once.
type Detector struct {
	reg           *Registry
	logger        *zap.Logger
	newRecognizer RecognizerFactory

	recOnce sync.Once
	rec     Recognizer // nil if factory absent or failed
}

// NewDetector creates a detector over the given registry. factory may be
// nil, in which case detection is regex-only.
func NewDetector(reg *Registry, logger *zap.Logger, factory RecognizerFactory) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		reg:           reg,
		logger:        logger,
		newRecognizer: factory,
	}
}

// Detect scans text and returns validated, deduplicated detections sorted
// by ascending start offset. Empty or whitespace-only input yields an
// empty list; Detect never fails.
func (d *Detector) Detect(ctx context.Context, text string) []Detection {
	return d.detect(ctx, text, nil)
}

// DetectWithPolicy is Detect with per-caller disabled types filtered out
// before matching, so a disabled type can neither appear in results nor
// claim spans from other types.
func (d *Detector) DetectWithPolicy(ctx context.Context, text string, pol *PolicyConfig) []Detection {
	return d.detect(ctx, text, pol.disabledSet())
}

type span struct {
	start, end int
}

func (d *Detector) detect(ctx context.Context, text string, disabled map[string]struct{}) []Detection {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var results []Detection
	var covered []span

	for _, tp := range d.reg.patterns {
		if _, off := disabled[tp.def.ID]; off {
			continue
		}

		// Group 0 is the whole match; group 1 the inner span when the
		// pattern declares one.
		idx := tp.re.FindAllStringSubmatchIndex(text, -1)
		for _, m := range idx {
			start, end := m[0], m[1]
			if tp.innerSpan && len(m) >= 4 && m[2] >= 0 {
				start, end = m[2], m[3]
			}

			if coveredBy(covered, start, end) {
				continue
			}

			value := text[start:end]
			if !validateCandidate(tp.def.ID, value) {
				continue
			}

			results = append(results, Detection{
				Type:       tp.def.ID,
				Label:      tp.def.Label,
				Value:      value,
				Start:      start,
				End:        end,
				Confidence: tp.def.Confidence,
				Risk:       tp.def.Risk,
				Category:   tp.def.Category,
			})
			covered = append(covered, span{start, end})
		}
	}

	results = append(results, d.detectEntities(ctx, text, disabled)...)

	results = deduplicate(results)
	sort.Slice(results, func(i, j int) bool { return results[i].Start < results[j].Start })
	return results
}

// detectEntities consults the optional recognizer. Any failure downgrades
// to "no candidates" — NER is a soft dependency, never fatal.
func (d *Detector) detectEntities(ctx context.Context, text string, disabled map[string]struct{}) []Detection {
	if d.newRecognizer == nil {
		return nil
	}

	d.recOnce.Do(func() {
		rec, err := d.newRecognizer()
		if err != nil {
			d.logger.Warn("entity recognizer unavailable, continuing regex-only", zap.Error(err))
			return
		}
		d.rec = rec
	})
	if d.rec == nil {
		return nil
	}

	entities, err := d.rec.Recognize(ctx, text)
	if err != nil {
		d.logger.Warn("entity recognition failed, skipping", zap.Error(err))
		return nil
	}

	var results []Detection
	for _, ent := range entities {
		typeID, ok := entityTypeMap[ent.Type]
		if !ok {
			continue
		}
		if _, off := disabled[typeID]; off {
			continue
		}
		def, ok := d.reg.TypeByID(typeID)
		if !ok {
			continue
		}
		if ent.Start < 0 || ent.End > len(text) || ent.Start >= ent.End {
			continue
		}

		confidence := math.Round(ent.Score*def.Confidence*100) / 100
		results = append(results, Detection{
			Type:       def.ID,
			Label:      def.Label,
			Value:      text[ent.Start:ent.End],
			Start:      ent.Start,
			End:        ent.End,
			Confidence: confidence,
			Risk:       def.Risk,
			Category:   def.Category,
		})
	}
	return results
}

// coveredBy reports whether [start, end) lies fully inside a span already
// claimed by a higher-priority type.
func coveredBy(covered []span, start, end int) bool {
	for _, s := range covered {
		if s.start <= start && s.end >= end {
			return true
		}
	}
	return false
}

// deduplicate resolves remaining overlaps across the whole candidate set,
// keeping the highest-confidence detection per overlapping cluster. The
// sort is stable, so equal confidences keep the first one encountered.
func deduplicate(detections []Detection) []Detection {
	if len(detections) == 0 {
		return detections
	}

	byConfidence := make([]Detection, len(detections))
	copy(byConfidence, detections)
	sort.SliceStable(byConfidence, func(i, j int) bool {
		return byConfidence[i].Confidence > byConfidence[j].Confidence
	})

	var kept []Detection
	for _, det := range byConfidence {
		overlaps := false
		for _, k := range kept {
			if det.Start < k.End && det.End > k.Start {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, det)
		}
	}
	return kept
}

// validateCandidate dispatches to the type-specific validator. Types
// without one are accepted on pattern match alone.
func validateCandidate(typeID, value string) bool {
	switch typeID {
	case "CREDIT_CARD":
		return validators.CardPrefix(value) && validators.Luhn(value)
	case "AADHAAR":
		return validators.Verhoeff(value)
	case "SSN":
		return validators.SSN(value)
	case "EMAIL":
		return validators.Email(value)
	case "IFSC":
		return validators.IFSC(value)
	case "IP_ADDRESS":
		return validators.IPv4(value)
	default:
		return true
	}
}
