package dedup

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestScopeTag(t *testing.T) {
	if got := GlobalScope().Tag(); got != GlobalScopeTag {
		t.Fatalf("expected global tag, got %q", got)
	}
	lessonID := uuid.New()
	if got := LessonScope(lessonID).Tag(); got != lessonID.String() {
		t.Fatalf("expected lesson tag %q, got %q", lessonID.String(), got)
	}
}

func TestConfigDefaultsPerScope(t *testing.T) {
	var cfg Config
	if got := cfg.threshold(GlobalScope()); got != defaultGlobalThreshold {
		t.Fatalf("global threshold: expected %v got %v", defaultGlobalThreshold, got)
	}
	if got := cfg.threshold(LessonScope(uuid.New())); got != defaultLessonThreshold {
		t.Fatalf("lesson threshold: expected %v got %v", defaultLessonThreshold, got)
	}
	if got := cfg.topK(GlobalScope()); got != defaultGlobalTopK {
		t.Fatalf("global topK: expected %d got %d", defaultGlobalTopK, got)
	}
	if got := cfg.topK(LessonScope(uuid.New())); got != defaultLessonTopK {
		t.Fatalf("lesson topK: expected %d got %d", defaultLessonTopK, got)
	}

	cfg = Config{GlobalThreshold: 0.9, LessonThreshold: 0.7, GlobalTopK: 8, LessonTopK: 2}
	if got := cfg.threshold(GlobalScope()); got != 0.9 {
		t.Fatalf("configured global threshold ignored, got %v", got)
	}
	if got := cfg.topK(LessonScope(uuid.New())); got != 2 {
		t.Fatalf("configured lesson topK ignored, got %d", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := cosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: expected 1 got %v", got)
	}
	if got := cosineSimilarity(a, []float32{0, 1, 0}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors: expected 0 got %v", got)
	}
	if got := cosineSimilarity(a, []float32{-1, 0, 0}); math.Abs(got+1) > 1e-9 {
		t.Fatalf("opposite vectors: expected -1 got %v", got)
	}
	if got := cosineSimilarity(a, nil); got != 0 {
		t.Fatalf("empty vector: expected 0 got %v", got)
	}
}
