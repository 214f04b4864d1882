package dedup

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/maheshrc27/clipcast/internal/models"
)

func splitImage(t *testing.T, w, h int) image.Image {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{A: 255}
			if x >= w/2 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeCaption(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercase", in: "Hello World", want: "hello world"},
		{name: "urls", in: "watch https://example.com/x?y=1 now www.foo.bar", want: "watch now"},
		{name: "hashtags and mentions", in: "so good #fyp #viral @someone", want: "so good"},
		{name: "punctuation", in: "Wait... what?!  really", want: "wait what really"},
		{name: "empty", in: "  ", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizeCaption(tt.in); got != tt.want {
				t.Fatalf("NormalizeCaption(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeCaptionDeterministic(t *testing.T) {
	t.Parallel()
	in := "Crazy SAVE by the keeper!! #football https://t.co/abc"
	if NormalizeCaption(in) != NormalizeCaption(in) {
		t.Fatal("NormalizeCaption is not deterministic")
	}
}

func TestCaptionSimilarity(t *testing.T) {
	t.Parallel()
	a := NormalizeCaption("crazy save by the keeper in the last minute")
	if got := CaptionSimilarity(a, a); got != 1 {
		t.Fatalf("CaptionSimilarity(a, a) = %v, want 1", got)
	}
	b := NormalizeCaption("cat falls off the sofa")
	if got := CaptionSimilarity(a, b); got >= DefaultCaptionThreshold {
		t.Fatalf("unrelated captions scored %v", got)
	}
	if got := CaptionSimilarity("", a); got != 0 {
		t.Fatalf("empty caption scored %v, want 0", got)
	}
}

func TestCaptionSimilarityKeepsShortTokens(t *testing.T) {
	t.Parallel()
	// {a, b} against {a, c}: one shared token out of three.
	if got := CaptionSimilarity("a b", "a c"); got < 0.33 || got > 0.34 {
		t.Fatalf("CaptionSimilarity = %v, want 1/3", got)
	}
}

func TestDurationsAgree(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b float64
		want bool
	}{
		{20, 20.5, true},
		{20, 22, false},
		{0, 0, true},
		{0, 20, false},
		{20, -1, false},
	}
	for _, tt := range tests {
		if got := durationsAgree(tt.a, tt.b, DefaultDurationToleranceS); got != tt.want {
			t.Errorf("durationsAgree(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestComputeVisualHashSplitImage(t *testing.T) {
	t.Parallel()
	data := encodePNG(t, splitImage(t, 64, 64))
	got, err := ComputeVisualHash(data, DefaultGrid)
	if err != nil {
		t.Fatalf("ComputeVisualHash error: %v", err)
	}
	want := strings.Repeat("00001111", 8)
	if got != want {
		t.Fatalf("ComputeVisualHash = %s, want %s", got, want)
	}
}

func TestComputeVisualHashDeterministic(t *testing.T) {
	t.Parallel()
	data := encodePNG(t, splitImage(t, 40, 30))
	a, err := ComputeVisualHash(data, DefaultGrid)
	if err != nil {
		t.Fatalf("ComputeVisualHash error: %v", err)
	}
	b, err := ComputeVisualHash(data, DefaultGrid)
	if err != nil {
		t.Fatalf("ComputeVisualHash error: %v", err)
	}
	if HammingDistance(a, b) != 0 {
		t.Fatalf("hashes of identical bytes differ: %s vs %s", a, b)
	}
	if len(a) != DefaultGrid*DefaultGrid {
		t.Fatalf("len(hash) = %d, want %d", len(a), DefaultGrid*DefaultGrid)
	}
}

func TestComputeVisualHashToleratesRecompression(t *testing.T) {
	t.Parallel()
	img := splitImage(t, 96, 96)
	p, err := ComputeVisualHash(encodePNG(t, img), DefaultGrid)
	if err != nil {
		t.Fatalf("png hash: %v", err)
	}
	j, err := ComputeVisualHash(encodeJPEG(t, img), DefaultGrid)
	if err != nil {
		t.Fatalf("jpeg hash: %v", err)
	}
	if d := HammingDistance(p, j); d > DefaultVisualThreshold {
		t.Fatalf("recompressed distance = %d, want <= %d", d, DefaultVisualThreshold)
	}
}

func TestComputeVisualHashRejectsGarbage(t *testing.T) {
	t.Parallel()
	if _, err := ComputeVisualHash(nil, DefaultGrid); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := ComputeVisualHash([]byte("not an image"), DefaultGrid); err == nil {
		t.Fatal("expected error for undecodable input")
	}
}

func TestHammingDistance(t *testing.T) {
	t.Parallel()
	h := "1010110011110000"
	if d := HammingDistance(h, h); d != 0 {
		t.Fatalf("HammingDistance(h, h) = %d, want 0", d)
	}
	other := "1010110011110011"
	if HammingDistance(h, other) != HammingDistance(other, h) {
		t.Fatal("HammingDistance is not symmetric")
	}
	if d := HammingDistance(h, other); d != 2 {
		t.Fatalf("HammingDistance = %d, want 2", d)
	}
	if d := HammingDistance(h, "1010"); d != MaxDistance {
		t.Fatalf("length mismatch = %d, want MaxDistance", d)
	}
}

func flip(hash string, n int) string {
	b := []byte(hash)
	for i := 0; i < n; i++ {
		if b[i] == '0' {
			b[i] = '1'
		} else {
			b[i] = '0'
		}
	}
	return string(b)
}

func TestIsDuplicateVisual(t *testing.T) {
	t.Parallel()
	base := strings.Repeat("01", 32)
	w := &Window{Entries: []Entry{{Ref: "p1", VisualHash: base, CaptionNorm: "something else"}}}

	m := IsDuplicate(Probe{VisualHash: flip(base, 6)}, w, DefaultOptions())
	if !m.Duplicate || m.Rule != RuleVisual || m.Ref != "p1" {
		t.Fatalf("expected visual duplicate, got %+v", m)
	}
	m = IsDuplicate(Probe{VisualHash: flip(base, 7)}, w, DefaultOptions())
	if m.Duplicate {
		t.Fatalf("distance 7 should not match, got %+v", m)
	}
}

func TestIsDuplicateEmptyWindow(t *testing.T) {
	t.Parallel()
	p := Probe{VisualHash: strings.Repeat("1", 64), AudioKey: "songA", CaptionNorm: "hello", DurationSec: 30}
	if m := IsDuplicate(p, &Window{}, DefaultOptions()); m.Duplicate {
		t.Fatalf("empty window produced %+v", m)
	}
	if m := IsDuplicate(p, nil, DefaultOptions()); m.Duplicate {
		t.Fatalf("nil window produced %+v", m)
	}
}

func TestIsDuplicateAudioNeedsDuration(t *testing.T) {
	t.Parallel()
	w := &Window{Entries: []Entry{
		{Ref: "a", AudioKey: "songA", DurationSec: 30, CaptionNorm: "first clip"},
		{Ref: "b", AudioKey: "songA", DurationSec: 30, CaptionNorm: "second clip"},
	}}

	near := Probe{AudioKey: "songA", DurationSec: 31, CaptionNorm: "totally new"}
	if m := IsDuplicate(near, w, DefaultOptions()); !m.Duplicate || m.Rule != RuleAudio {
		t.Fatalf("durationSec=31 expected audio duplicate, got %+v", m)
	}
	far := Probe{AudioKey: "songA", DurationSec: 45, CaptionNorm: "totally new"}
	if m := IsDuplicate(far, w, DefaultOptions()); m.Duplicate {
		t.Fatalf("durationSec=45 expected no duplicate, got %+v", m)
	}
}

func TestIsDuplicateCaptionNeedsDuration(t *testing.T) {
	t.Parallel()
	caption := NormalizeCaption("Goalkeeper makes an insane double save in stoppage time")
	w := &Window{Entries: []Entry{{Ref: "c", CaptionNorm: caption, DurationSec: 20}}}

	same := Probe{CaptionNorm: NormalizeCaption("goalkeeper makes an INSANE double save in stoppage time!!! #fyp"), DurationSec: 20.5}
	if m := IsDuplicate(same, w, DefaultOptions()); !m.Duplicate || m.Rule != RuleCaption {
		t.Fatalf("expected caption duplicate, got %+v", m)
	}
	longer := same
	longer.DurationSec = 60
	if m := IsDuplicate(longer, w, DefaultOptions()); m.Duplicate {
		t.Fatalf("caption without duration agreement should pass, got %+v", m)
	}
	unknown := same
	unknown.DurationSec = 0
	if m := IsDuplicate(unknown, w, DefaultOptions()); m.Duplicate {
		t.Fatalf("unknown against known duration should pass, got %+v", m)
	}
	bothUnknown := &Window{Entries: []Entry{{Ref: "d", CaptionNorm: caption}}}
	if m := IsDuplicate(unknown, bothUnknown, DefaultOptions()); !m.Duplicate || m.Rule != RuleCaption {
		t.Fatalf("two unknown durations should corroborate, got %+v", m)
	}
}

func TestWindowFromSignatures(t *testing.T) {
	t.Parallel()
	w := WindowFromSignatures([]*models.RecentPostSignature{
		{ExternalPostID: "x1", AudioKey: "a", DurationSec: 10},
		nil,
		{ExternalPostID: "x2", VisualHash: "0101"},
	})
	if w.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", w.Len())
	}
	if w.Entries[1].Ref != "x2" {
		t.Fatalf("Entries[1].Ref = %q, want x2", w.Entries[1].Ref)
	}
}

func TestProbeFromCandidate(t *testing.T) {
	t.Parallel()
	p := ProbeFromCandidate(models.Candidate{Caption: "Hi THERE #tag", AudioKey: "k", DurationSec: 12})
	if p.CaptionNorm != "hi there" || p.AudioKey != "k" || p.DurationSec != 12 {
		t.Fatalf("unexpected probe %+v", p)
	}
}
