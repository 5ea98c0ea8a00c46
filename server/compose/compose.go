// Package compose maps simplifier results onto the client-facing response
// payload. It performs no I/O and cannot fail.
package compose

import (
	"fmt"
	"net/url"

	"github.com/plainmed/plainmed/server/simplify"
)

// maxCards bounds how many visual cards a response carries.
const maxCards = 4

// defaultKeywords are used when a result carries no keywords, so the client
// always has at least one card to show.
var defaultKeywords = []string{"doctor patient", "heart health"}

// VisualCard pairs a keyword with a decorative image-search link. The link
// is best effort; nothing validates that an image exists behind it.
type VisualCard struct {
	Keyword   string `json:"keyword"`
	ImageHint string `json:"image_hint"`
}

// Response is the public payload of POST /api/simplify.
type Response struct {
	Simplified   string       `json:"simplified"`
	ShortSummary string       `json:"short_summary"`
	VisualCards  []VisualCard `json:"visual_cards"`
}

// Composer builds client responses from simplifier results.
type Composer struct {
	imageHintTemplate string
}

// NewComposer creates a composer whose image hints follow the given
// printf-style template with one %s verb for the URL-encoded keyword.
func NewComposer(imageHintTemplate string) *Composer {
	return &Composer{imageHintTemplate: imageHintTemplate}
}

// Compose maps a simplification result onto the response payload.
// Simplified and ShortSummary pass through verbatim; keywords become at
// most four visual cards, with two fixed default cards substituted when
// the result carries none.
func (c *Composer) Compose(result simplify.Result) Response {
	keywords := result.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	if len(keywords) > maxCards {
		keywords = keywords[:maxCards]
	}

	cards := make([]VisualCard, 0, len(keywords))
	for _, kw := range keywords {
		cards = append(cards, VisualCard{
			Keyword:   kw,
			ImageHint: fmt.Sprintf(c.imageHintTemplate, url.QueryEscape(kw)),
		})
	}

	return Response{
		Simplified:   result.Simplified,
		ShortSummary: result.ShortSummary,
		VisualCards:  cards,
	}
}
