package pipeline

import "strings"

// maxRating caps the importance extracted from a summary card.
const maxRating = 5

// extractRating pulls the star importance rating out of a summary
// card. The summarizer renders importance as filled star glyphs
// (e.g. ★★★★☆) somewhere in the card text; extraction is best-effort
// and a card with no recognizable stars ranks lowest rather than
// erroring.
func extractRating(payload string) int {
	count := strings.Count(payload, "★")
	if count > maxRating {
		count = maxRating
	}
	return count
}
