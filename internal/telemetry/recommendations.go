package telemetry

// DefaultAdvice is returned when no recommendation matches a diagnosis.
const DefaultAdvice = "Tidak ada tindakan khusus"

type Recommendation struct {
	ID             int    `json:"id"`
	Disease        string `json:"nama_penyakit"`
	Description    string `json:"deskripsi,omitempty"`
	Symptoms       string `json:"gejala,omitempty"`
	Recommendation string `json:"rekomendasi"`
	Usage          string `json:"cara_penggunaan,omitempty"`
}

// Catalogue is a read-only list of recommendations keyed by disease name.
type Catalogue struct {
	entries []Recommendation
}

// NewCatalogue numbers entries from 1 in the given order.
func NewCatalogue(entries []Recommendation) *Catalogue {
	c := &Catalogue{entries: make([]Recommendation, len(entries))}
	for i, e := range entries {
		e.ID = i + 1
		c.entries[i] = e
	}
	return c
}

// Lookup finds the first entry whose disease name equals disease exactly.
func (c *Catalogue) Lookup(disease string) (Recommendation, bool) {
	for _, e := range c.entries {
		if e.Disease == disease {
			return e, true
		}
	}
	return Recommendation{}, false
}

// Advice returns the recommendation text and id for disease, or
// DefaultAdvice and nil.
func (c *Catalogue) Advice(disease string) (string, *int) {
	e, ok := c.Lookup(disease)
	if !ok {
		return DefaultAdvice, nil
	}
	id := e.ID
	return e.Recommendation, &id
}
