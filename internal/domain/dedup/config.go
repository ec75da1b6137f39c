package dedup

const (
	defaultGlobalThreshold = 0.85
	defaultLessonThreshold = 0.82
	defaultGlobalTopK      = 5
	defaultLessonTopK      = 3
	defaultOrphanScanLimit = 50
	defaultTopTrending     = 10
)

// Config holds the runtime knobs for the dedup engine.
type Config struct {
	GlobalThreshold float64
	LessonThreshold float64
	GlobalTopK      int
	LessonTopK      int
	// OrphanScanLimit bounds the degraded-mode linear scan over
	// vector-less global records.
	OrphanScanLimit int
	TopTrending     int
}

func (c Config) threshold(scope Scope) float64 {
	if scope.IsGlobal() {
		if c.GlobalThreshold > 0 {
			return c.GlobalThreshold
		}
		return defaultGlobalThreshold
	}
	if c.LessonThreshold > 0 {
		return c.LessonThreshold
	}
	return defaultLessonThreshold
}

func (c Config) topK(scope Scope) int {
	if scope.IsGlobal() {
		if c.GlobalTopK > 0 {
			return c.GlobalTopK
		}
		return defaultGlobalTopK
	}
	if c.LessonTopK > 0 {
		return c.LessonTopK
	}
	return defaultLessonTopK
}

func (c Config) orphanScanLimit() int {
	if c.OrphanScanLimit > 0 {
		return c.OrphanScanLimit
	}
	return defaultOrphanScanLimit
}

func (c Config) topTrending() int {
	if c.TopTrending > 0 {
		return c.TopTrending
	}
	return defaultTopTrending
}
