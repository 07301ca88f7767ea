package explain

import (
	"context"
	"fmt"
	"path/filepath"
)

// MockExplainer is a canned explainer for tests. Filenames in FailFor return
// an error, exercising the pipeline's partial-failure policy.
type MockExplainer struct {
	FailFor map[string]bool
}

// NewMockExplainer returns an explainer with deterministic canned output.
func NewMockExplainer() *MockExplainer {
	return &MockExplainer{FailFor: make(map[string]bool)}
}

// Explain implements Explainer.
func (e *MockExplainer) Explain(ctx context.Context, imagePath, query string) (string, error) {
	name := filepath.Base(imagePath)
	if e.FailFor[name] {
		return "", fmt.Errorf("mock explanation failure for %s", name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s matches %q", name, query), nil
}

// Close implements Explainer.
func (e *MockExplainer) Close() error {
	return nil
}

var _ Explainer = (*MockExplainer)(nil)
