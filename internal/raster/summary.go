package raster

// Summary pairs derived numbers with the human-readable line reported to
// callers. It is built once and not modified afterwards.
type Summary struct {
	Text   string             `json:"text" msgpack:"text"`
	Values map[string]float64 `json:"values" msgpack:"values"`
}

// NewSummary copies values so later edits by the caller do not leak in.
func NewSummary(text string, values map[string]float64) Summary {
	v := make(map[string]float64, len(values))
	for k, x := range values {
		v[k] = x
	}
	return Summary{Text: text, Values: v}
}

func (s Summary) String() string { return s.Text }
