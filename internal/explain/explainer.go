// Package explain generates short natural-language justifications for why an
// image matches a query.
package explain

import (
	"context"
	"fmt"
)

// Explainer produces a one-to-two sentence justification for a search hit.
// Errors are recovered by the query pipeline: a failed explanation leaves the
// hit in the response with no explanation, it never drops the hit.
type Explainer interface {
	Explain(ctx context.Context, imagePath, query string) (string, error)
	Close() error
}

// prompt builds the analyst instruction for a query.
func prompt(query string) string {
	return fmt.Sprintf(`You are an AI visual search analyst. Explain why this image is a relevant result for the user's query: '%s'.

Your explanation must be:
- Concise (1-2 sentences)
- Business-appropriate and technically sound
- Refer to specific visual elements (objects, colors, actions)
- Mention attributes (style, lighting, composition)
- Describe the context (setting, scene, atmosphere)

Focus on the most relevant aspects that connect the image to the query.
Do not use markdown. Just return the explanation.`, query)
}
