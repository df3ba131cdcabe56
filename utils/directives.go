package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"backend/models"
)

// DirectiveMarker introduces an inline edit request embedded in generated
// text: the marker, a JSON object, and a closing bracket.
//
//	[CHANGE: {"action": "add", "food": {...}}]
const DirectiveMarker = "[CHANGE:"

// directiveSpan is one resolved marker occurrence inside a text slice.
type directiveSpan struct {
	start        int // index of the marker
	payloadStart int // index of the opening '{'
	payloadEnd   int // index just past the matching '}'
	end          int // index just past the span, including the trailing ']'
}

// nextDirectiveSpan finds the next marker at or after `from` and balances
// its brace payload. ok is false when no marker remains; closed is false
// when the marker's payload never balances, which is normal for text that
// is still streaming in.
//
// The depth counter does not track quoted strings, so a lone brace inside a
// string value unbalances the span. Payloads come from a cooperative
// generator; revisit if directives can ever arrive from untrusted input.
func nextDirectiveSpan(text string, from int) (span directiveSpan, closed, ok bool) {
	i := strings.Index(text[from:], DirectiveMarker)
	if i < 0 {
		return directiveSpan{}, false, false
	}
	start := from + i

	j := strings.IndexByte(text[start+len(DirectiveMarker):], '{')
	if j < 0 {
		return directiveSpan{start: start}, false, true
	}
	payloadStart := start + len(DirectiveMarker) + j

	depth := 0
	for k := payloadStart; k < len(text); k++ {
		switch text[k] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				span = directiveSpan{start: start, payloadStart: payloadStart, payloadEnd: k + 1, end: k + 1}
				if k+1 < len(text) && text[k+1] == ']' {
					span.end = k + 2
				}
				return span, true, true
			}
		}
	}
	return directiveSpan{start: start}, false, true
}

// ExtractEdits returns the edits requested by every well-formed directive in
// text, in marker order. Malformed or unterminated directives contribute
// nothing; scanning resumes after the marker so one bad span never hides a
// later good one.
func ExtractEdits(text string) []models.Edit {
	var edits []models.Edit
	for from := 0; from < len(text); {
		span, closed, ok := nextDirectiveSpan(text, from)
		if !ok {
			break
		}
		if !closed {
			from = span.start + len(DirectiveMarker)
			continue
		}
		if edit, err := decodeDirective(text[span.payloadStart:span.payloadEnd]); err == nil {
			edits = append(edits, edit)
		}
		from = span.end
	}
	return edits
}

// StripDirectives removes every resolved directive span from text, leaving
// the user-visible prose. Spans that never balance are left untouched, so
// the filter is safe to run over a still-growing stream. Idempotent.
func StripDirectives(text string) string {
	var b strings.Builder
	from := 0
	for from < len(text) {
		span, closed, ok := nextDirectiveSpan(text, from)
		if !ok {
			b.WriteString(text[from:])
			break
		}
		if !closed {
			// keep the unbalanced span; re-scan after the marker in case a
			// later directive does close
			b.WriteString(text[from : span.start+len(DirectiveMarker)])
			from = span.start + len(DirectiveMarker)
			continue
		}
		b.WriteString(text[from:span.start])
		from = span.end
	}
	return tidyWhitespace(b.String())
}

var blankLineRuns = regexp.MustCompile(`\n{3,}`)

func tidyWhitespace(s string) string {
	return strings.TrimSpace(blankLineRuns.ReplaceAllString(s, "\n\n"))
}

// wireFood is the food object as it appears on the wire. Calories may be
// fractional there; normalization rounds it.
type wireFood struct {
	Name     *string  `json:"name"`
	Portion  *string  `json:"portion"`
	Calories *float64 `json:"calories"`
	Protein  *float64 `json:"protein"`
	Fat      *float64 `json:"fat"`
	Carbs    *float64 `json:"carbs"`
}

func decodeDirective(payload string) (models.Edit, error) {
	var raw struct {
		Action     string    `json:"action"`
		FoodItemID string    `json:"foodItemId"`
		Food       *wireFood `json:"food"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return models.Edit{}, err
	}

	switch raw.Action {
	case "add":
		if raw.Food == nil || raw.Food.Name == nil || strings.TrimSpace(*raw.Food.Name) == "" {
			return models.Edit{}, fmt.Errorf("add directive missing food.name")
		}
		return models.Edit{Action: models.EditActionAdd, Food: normalizeAdd(raw.Food)}, nil
	case "update":
		if raw.FoodItemID == "" || raw.Food == nil {
			return models.Edit{}, fmt.Errorf("update directive missing foodItemId or food")
		}
		return models.Edit{
			Action:     models.EditActionUpdate,
			FoodItemID: raw.FoodItemID,
			Food:       normalizePartial(raw.Food),
		}, nil
	case "remove":
		if raw.FoodItemID == "" {
			return models.Edit{}, fmt.Errorf("remove directive missing foodItemId")
		}
		return models.Edit{Action: models.EditActionRemove, FoodItemID: raw.FoodItemID}, nil
	}
	return models.Edit{}, fmt.Errorf("unknown directive action %q", raw.Action)
}

// normalizeAdd fills every food field: missing numerics become 0, the
// portion falls back to medium, calories round to the nearest integer.
func normalizeAdd(f *wireFood) *models.FoodPayload {
	name := strings.TrimSpace(*f.Name)
	portion := models.NormalizePortion(deref(f.Portion))
	calories := roundCalories(f.Calories)
	protein := derefFloat(f.Protein)
	fat := derefFloat(f.Fat)
	carbs := derefFloat(f.Carbs)
	return &models.FoodPayload{
		Name:     &name,
		Portion:  &portion,
		Calories: &calories,
		Protein:  &protein,
		Fat:      &fat,
		Carbs:    &carbs,
	}
}

// normalizePartial keeps only the supplied fields so an update edit merges
// instead of overwriting.
func normalizePartial(f *wireFood) *models.FoodPayload {
	out := &models.FoodPayload{
		Protein: f.Protein,
		Fat:     f.Fat,
		Carbs:   f.Carbs,
	}
	if f.Name != nil {
		name := strings.TrimSpace(*f.Name)
		out.Name = &name
	}
	if f.Portion != nil {
		portion := models.NormalizePortion(*f.Portion)
		out.Portion = &portion
	}
	if f.Calories != nil {
		calories := roundCalories(f.Calories)
		out.Calories = &calories
	}
	return out
}

func roundCalories(v *float64) int {
	if v == nil {
		return 0
	}
	return int(math.Round(*v))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
