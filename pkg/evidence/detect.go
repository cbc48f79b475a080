package evidence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp-forge/doccontrol/pkg/controlnumber"
	"github.com/hashicorp-forge/doccontrol/pkg/models"
)

// Scoring constants.
const (
	TypeMatchScore         = 60
	TitleKeywordScore      = 10
	ContentKeywordScore    = 15
	ContentKeywordMinimum  = 2
	CrossReferenceScore    = 40
	MaxConfidence          = 100
	DefaultMinConfidence   = 50
	maxReferencesInReasons = 3
)

// Match is a detected relationship between a document and an element.
type Match struct {
	Element    string `json:"element"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
}

// Detect scores doc against every element in t. text is the document's
// extracted text. Results are ranked by confidence, then element number.
func Detect(t *Tables, doc *models.Document, text string) []Match {
	title := strings.ToLower(doc.Title)
	content := strings.ToLower(text)

	typeHits := map[string]bool{}
	for _, el := range t.TypeElements[strings.ToUpper(doc.TypeCode)] {
		typeHits[el] = true
	}

	candidates := map[string]bool{}
	for el := range typeHits {
		candidates[el] = true
	}
	for el := range t.Keywords {
		candidates[el] = true
	}

	best := map[string]Match{}
	keep := func(m Match) {
		if cur, ok := best[m.Element]; !ok || m.Confidence > cur.Confidence {
			best[m.Element] = m
		}
	}

	for el := range candidates {
		titleHits := t.matchKeywords(el, title)
		contentHits := t.matchKeywords(el, content)

		score := TitleKeywordScore * len(titleHits)
		if len(contentHits) >= ContentKeywordMinimum {
			score += ContentKeywordScore
		}
		var reasons []string
		if typeHits[el] {
			score += TypeMatchScore
			reasons = append(reasons, fmt.Sprintf("document type %s maps to element %s", doc.TypeCode, el))
		}
		if score <= 0 {
			continue
		}
		if score > MaxConfidence {
			score = MaxConfidence
		}
		if len(titleHits) > 0 {
			reasons = append(reasons, "title keywords: "+words(titleHits))
		}
		if len(contentHits) >= ContentKeywordMinimum {
			reasons = append(reasons, "content keywords: "+words(contentHits))
		}
		keep(Match{Element: el, Confidence: score, Reason: strings.Join(reasons, "; ")})
	}

	if refs := controlnumber.FindReferences(text, doc.ControlNumber); len(refs) > 0 {
		shown := refs
		if len(shown) > maxReferencesInReasons {
			shown = shown[:maxReferencesInReasons]
		}
		reason := fmt.Sprintf("references %d other controlled documents (%s)", len(refs), strings.Join(shown, ", "))
		for _, el := range t.CrossReferenceElements {
			keep(Match{Element: el, Confidence: CrossReferenceScore, Reason: reason})
		}
	}

	out := make([]Match, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return elementLess(out[i].Element, out[j].Element)
	})
	return out
}

// Qualifying returns the elements of matches at or above minConfidence.
func Qualifying(matches []Match, minConfidence int) []string {
	var out []string
	for _, m := range matches {
		if m.Confidence >= minConfidence {
			out = append(out, m.Element)
		}
	}
	return out
}

func words(kws []Keyword) string {
	out := make([]string, len(kws))
	for i, kw := range kws {
		out[i] = kw.Word
	}
	return strings.Join(out, ", ")
}
