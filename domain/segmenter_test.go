package domain

import (
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragmentsOf(items ...string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, s := range items {
			if !yield(s, nil) {
				return
			}
		}
	}
}

func TestSegmenterExample(t *testing.T) {
	seg := NewSegmenter(nil)

	snap := seg.Feed("Let me think. ")
	assert.Equal(t, PhaseThinking, snap.Phase)
	assert.Equal(t, "Let me think. ", snap.Text())

	snap = seg.Feed("Okay, here is the answer: ")
	assert.Equal(t, PhaseFinal, snap.Phase)
	assert.Equal(t, "Let me think. Okay, here is the answer: ", snap.Text())
	assert.Equal(t, "Let me think. ", snap.Thinking)
	assert.Equal(t, "Okay, here is the answer: ", snap.Final)

	snap = seg.Feed("42.")
	assert.Equal(t, "Let me think. Okay, here is the answer: 42.", snap.Text())
	assert.Equal(t, "Okay, here is the answer: 42.", snap.Final)
}

func TestSegmenterBuffers(t *testing.T) {
	tests := []struct {
		name         string
		fragments    []string
		wantPhase    Phase
		wantThinking string
		wantFinal    string
	}{
		{
			name:         "no marker stays thinking",
			fragments:    []string{"The document ", "covers ", "tax law."},
			wantPhase:    PhaseThinking,
			wantThinking: "The document covers tax law.",
		},
		{
			name:      "marker in first fragment",
			fragments: []string{"Here's the summary", " of chapter 2."},
			wantPhase: PhaseFinal,
			wantFinal: "Here's the summary of chapter 2.",
		},
		{
			name:         "marker split across fragments does not fire",
			fragments:    []string{"Okay, ", "here it is."},
			wantPhase:    PhaseThinking,
			wantThinking: "Okay, here it is.",
		},
		{
			name:         "marker repeated after transition",
			fragments:    []string{"hmm ", "Here's the plan. ", "Okay, here we go."},
			wantPhase:    PhaseFinal,
			wantThinking: "hmm ",
			wantFinal:    "Here's the plan. Okay, here we go.",
		},
		{
			name:      "empty stream",
			fragments: nil,
			wantPhase: PhaseThinking,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seg := NewSegmenter(nil)
			for _, f := range tt.fragments {
				seg.Feed(f)
			}
			snap := seg.Snapshot()
			assert.Equal(t, tt.wantPhase, seg.Phase())
			assert.Equal(t, tt.wantThinking, snap.Thinking)
			assert.Equal(t, tt.wantFinal, snap.Final)
			assert.Equal(t, strings.Join(tt.fragments, ""), snap.Text())
		})
	}
}

func TestSegmenterCustomMarker(t *testing.T) {
	seg := NewSegmenter(ContainsAny("", "ANSWER:"))

	seg.Feed("thinking about Okay, here ")
	assert.Equal(t, PhaseThinking, seg.Phase())

	seg.Feed("ANSWER: yes")
	assert.Equal(t, PhaseFinal, seg.Phase())
	assert.Equal(t, "ANSWER: yes", seg.Snapshot().Final)
}

func TestSegmentYieldsGrowingSnapshots(t *testing.T) {
	var texts []string
	for snap, err := range Segment(fragmentsOf("a", "Here's the ", "b"), nil) {
		require.NoError(t, err)
		texts = append(texts, snap.Text())
	}

	assert.Equal(t, []string{"a", "aHere's the ", "aHere's the b"}, texts)
}

func TestSegmentStopsOnError(t *testing.T) {
	boom := errors.New("connection reset")
	src := func(yield func(string, error) bool) {
		if !yield("partial ", nil) {
			return
		}
		if !yield("", boom) {
			return
		}
		yield("never", nil)
	}

	var snaps []Snapshot
	var gotErr error
	for snap, err := range Segment(src, nil) {
		if err != nil {
			gotErr = err
			assert.Equal(t, Snapshot{}, snap)
			break
		}
		snaps = append(snaps, snap)
	}

	require.ErrorIs(t, gotErr, boom)
	require.Len(t, snaps, 1)
	assert.Equal(t, "partial ", snaps[0].Text())
}

func TestSegmentEarlyBreak(t *testing.T) {
	count := 0
	for range Segment(fragmentsOf("a", "b", "c"), nil) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestPhaseMarshalText(t *testing.T) {
	b, err := PhaseFinal.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "final", string(b))
	assert.Equal(t, "thinking", PhaseThinking.String())
}
