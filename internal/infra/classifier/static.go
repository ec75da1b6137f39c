package classifier

import (
	"context"

	"github.com/quizmentor/quizmentor/internal/domain/dedup"
)

// Static hands out a fixed verdict. It keeps the pipeline runnable when no
// language model is configured, the same way the deterministic embedder does
// for embeddings.
type Static struct{}

// Classify returns the fixed verdict.
func (Static) Classify(_ context.Context, _, _ string) (dedup.Classification, error) {
	return dedup.Classification{
		Label:       false,
		Explanation: "not verified: no language model configured",
	}, nil
}

var _ dedup.Classifier = Static{}
