package domain

import (
	"fmt"
	"iter"
	"strings"
)

// Phase is the segment a streamed fragment belongs to.
type Phase int

const (
	PhaseThinking Phase = iota
	PhaseFinal
)

func (p Phase) String() string {
	if p == PhaseFinal {
		return "final"
	}
	return "thinking"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "thinking":
		*p = PhaseThinking
	case "final":
		*p = PhaseFinal
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// MarkerFunc reports whether a single fragment opens the final answer.
type MarkerFunc func(fragment string) bool

// DefaultMarkers are the phrases Gemini 2.5 preview models used to open
// their answer after reasoning out loud. They are a heuristic only.
var DefaultMarkers = []string{"Okay, here", "Here's the"}

// ContainsAny matches fragments containing any of the markers. Empty
// markers are ignored.
func ContainsAny(markers ...string) MarkerFunc {
	ms := make([]string, 0, len(markers))
	for _, m := range markers {
		if m != "" {
			ms = append(ms, m)
		}
	}
	return func(fragment string) bool {
		for _, m := range ms {
			if strings.Contains(fragment, m) {
				return true
			}
		}
		return false
	}
}

func DefaultMarker() MarkerFunc { return ContainsAny(DefaultMarkers...) }

// Snapshot is the state of a streamed answer after one fragment.
type Snapshot struct {
	Phase    Phase  `json:"phase"`
	Thinking string `json:"thinking"`
	Final    string `json:"final"`
}

func (s Snapshot) Text() string { return s.Thinking + s.Final }

// Segmenter splits a fragment stream into a thinking segment followed by a
// final segment. The marker is evaluated against each fragment on its own,
// so a marker split across two fragments never fires.
type Segmenter struct {
	marker   MarkerFunc
	phase    Phase
	thinking strings.Builder
	final    strings.Builder
}

// NewSegmenter returns a segmenter in PhaseThinking. A nil marker selects
// DefaultMarker.
func NewSegmenter(marker MarkerFunc) *Segmenter {
	if marker == nil {
		marker = DefaultMarker()
	}
	return &Segmenter{marker: marker}
}

func (s *Segmenter) Feed(fragment string) Snapshot {
	if s.phase == PhaseThinking && s.marker(fragment) {
		s.phase = PhaseFinal
	}
	if s.phase == PhaseFinal {
		s.final.WriteString(fragment)
	} else {
		s.thinking.WriteString(fragment)
	}
	return s.Snapshot()
}

func (s *Segmenter) Phase() Phase { return s.phase }

func (s *Segmenter) Snapshot() Snapshot {
	return Snapshot{Phase: s.phase, Thinking: s.thinking.String(), Final: s.final.String()}
}

// Segment wraps a fragment stream. It yields one snapshot per fragment and
// stops at the first upstream error, yielding that error with an empty
// snapshot.
func Segment(fragments iter.Seq2[string, error], marker MarkerFunc) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		seg := NewSegmenter(marker)
		for fragment, err := range fragments {
			if err != nil {
				yield(Snapshot{}, err)
				return
			}
			if !yield(seg.Feed(fragment), nil) {
				return
			}
		}
	}
}
