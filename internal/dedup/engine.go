package dedup

import (
	"math"

	"github.com/maheshrc27/clipcast/internal/models"
)

const (
	DefaultVisualThreshold    = 6
	DefaultCaptionThreshold   = 0.85
	DefaultDurationToleranceS = 1.0
	DefaultWindowSize         = 30
)

// Rule names the evidence that classified a candidate as a duplicate.
type Rule string

const (
	RuleNone    Rule = ""
	RuleVisual  Rule = "visual"
	RuleAudio   Rule = "audio"
	RuleCaption Rule = "caption"
)

// Entry is one item of recent publish history in comparable form.
type Entry struct {
	Ref         string
	VisualHash  string
	AudioKey    string
	CaptionNorm string
	DurationSec float64
}

// Probe is the comparable form of a candidate.
type Probe struct {
	VisualHash  string
	AudioKey    string
	CaptionNorm string
	DurationSec float64
}

// Window is the bounded recent-history set a candidate is compared against.
// It is rebuilt per selection run rather than maintained incrementally.
type Window struct {
	Entries []Entry
}

func WindowFromSignatures(sigs []*models.RecentPostSignature) *Window {
	w := &Window{Entries: make([]Entry, 0, len(sigs))}
	for _, s := range sigs {
		if s == nil {
			continue
		}
		w.Entries = append(w.Entries, Entry{
			Ref:         s.ExternalPostID,
			VisualHash:  s.VisualHash,
			AudioKey:    s.AudioKey,
			CaptionNorm: s.CaptionNorm,
			DurationSec: s.DurationSec,
		})
	}
	return w
}

func (w *Window) Add(e Entry) {
	w.Entries = append(w.Entries, e)
}

func (w *Window) Len() int {
	if w == nil {
		return 0
	}
	return len(w.Entries)
}

// ProbeFromCandidate normalises the caption once so repeated comparisons are cheap.
func ProbeFromCandidate(c models.Candidate) Probe {
	return Probe{
		VisualHash:  c.VisualHash,
		AudioKey:    c.AudioKey,
		CaptionNorm: NormalizeCaption(c.Caption),
		DurationSec: c.DurationSec,
	}
}

type Options struct {
	VisualThreshold   int
	CaptionThreshold  float64
	DurationTolerance float64
}

func DefaultOptions() Options {
	return Options{
		VisualThreshold:   DefaultVisualThreshold,
		CaptionThreshold:  DefaultCaptionThreshold,
		DurationTolerance: DefaultDurationToleranceS,
	}
}

// Match reports which window entry a probe collided with, and why.
type Match struct {
	Duplicate bool
	Rule      Rule
	Ref       string
	Distance  int
	Score     float64
}

// IsDuplicate reports whether the probe duplicates any window entry. A visual
// match alone is sufficient; audio and caption matches need the durations to agree.
func IsDuplicate(p Probe, w *Window, opts Options) Match {
	if w == nil || len(w.Entries) == 0 {
		return Match{}
	}
	for _, e := range w.Entries {
		if p.VisualHash != "" && e.VisualHash != "" {
			if d := HammingDistance(p.VisualHash, e.VisualHash); d <= opts.VisualThreshold {
				return Match{Duplicate: true, Rule: RuleVisual, Ref: e.Ref, Distance: d}
			}
		}
		durationOK := durationsAgree(p.DurationSec, e.DurationSec, opts.DurationTolerance)
		if p.AudioKey != "" && p.AudioKey == e.AudioKey && durationOK {
			return Match{Duplicate: true, Rule: RuleAudio, Ref: e.Ref}
		}
		if durationOK {
			if score := CaptionSimilarity(p.CaptionNorm, e.CaptionNorm); score >= opts.CaptionThreshold {
				return Match{Duplicate: true, Rule: RuleCaption, Ref: e.Ref, Score: score}
			}
		}
	}
	return Match{}
}

// durationsAgree treats a non-positive duration as unknown. Two unknown
// durations agree; one known and one unknown do not.
func durationsAgree(a, b, tolerance float64) bool {
	aKnown, bKnown := a > 0, b > 0
	if aKnown != bKnown {
		return false
	}
	if !aKnown {
		return true
	}
	return math.Abs(a-b) <= tolerance
}
