// Package voting combines per-patch predictions into one whole-leaf diagnosis.
package voting

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// NotDetected is the dominant label when no patch produced a vote. It
	// means no classifiable leaf tissue, which is not the same as healthy.
	NotDetected = "Not Detected"

	// DefaultLabel is the initial dominant candidate before any label is compared.
	DefaultLabel = "Healthy"
)

// Vote is the prediction for one patch.
type Vote struct {
	Label      string
	Confidence float64
}

// Area is one breakdown entry: the share of votes for Label, in percent.
type Area struct {
	Label   string
	Percent float64
}

// Breakdown keeps the label vocabulary order and encodes as a JSON object.
type Breakdown []Area

func (b Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, a := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(a.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.Percent)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Percent returns the area for label and whether the label is present.
func (b Breakdown) Percent(label string) (float64, bool) {
	for _, a := range b {
		if a.Label == label {
			return a.Percent, true
		}
	}
	return 0, false
}

// Result is the whole-leaf diagnosis. Dominant is normalized for display,
// DominantKey and the breakdown keep the vocabulary spelling.
type Result struct {
	Dominant    string    `json:"dominant"`
	DominantKey string    `json:"dominant_key"`
	Confidence  float64   `json:"confidence"`
	Breakdown   Breakdown `json:"detail"`
}

// Detected reports whether at least one patch was classified.
func (r Result) Detected() bool {
	return r.Dominant != NotDetected
}

// Aggregate tallies votes over labels. Votes whose label is not in labels
// count toward the total but can never become dominant.
func Aggregate(votes []Vote, labels []string) Result {
	if len(votes) == 0 {
		return Result{
			Dominant:    NotDetected,
			DominantKey: NotDetected,
			Breakdown:   Breakdown{},
		}
	}

	counts := make(map[string]int, len(labels))
	sums := make(map[string]float64, len(labels))
	for _, v := range votes {
		counts[v.Label]++
		sums[v.Label] += v.Confidence
	}

	total := float64(len(votes))
	dominant := DefaultLabel
	maxArea := -1.0
	breakdown := make(Breakdown, 0, len(labels))

	for _, label := range labels {
		n := counts[label]
		area := float64(n) / total * 100
		breakdown = append(breakdown, Area{Label: label, Percent: round(area, 1)})

		if n > 0 && area > maxArea {
			maxArea = area
			dominant = label
		}
	}

	confidence := 0.0
	if n := counts[dominant]; n > 0 {
		confidence = round(sums[dominant]/float64(n)*100, 2)
	}

	return Result{
		Dominant:    DisplayLabel(dominant),
		DominantKey: dominant,
		Confidence:  confidence,
		Breakdown:   breakdown,
	}
}

// DisplayLabel turns a vocabulary key such as "bercak_daun" into "Bercak Daun".
// Underscores become spaces, a letter that follows a non-letter is title-cased
// and every other letter is lower-cased, so "o'neil" becomes "O'Neil" and
// "leaf2spot" becomes "Leaf2Spot".
func DisplayLabel(label string) string {
	title := cases.Title(language.Und)
	lower := cases.Lower(language.Und)

	var b strings.Builder
	prevCased := false
	for _, r := range strings.ReplaceAll(label, "_", " ") {
		cased := unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
		switch {
		case cased && !prevCased:
			b.WriteString(title.String(string(r)))
		case cased:
			b.WriteString(lower.String(string(r)))
		default:
			b.WriteRune(r)
		}
		prevCased = cased
	}
	return b.String()
}

// round rounds the exact binary value of x to places decimals, ties to even.
func round(x float64, places int) float64 {
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return v
}
