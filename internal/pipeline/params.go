package pipeline

// ScanParams controls standardization and the patch grid.
type ScanParams struct {
	Resolution  int     `yaml:"resolution"`
	PatchSize   int     `yaml:"patchSize"`
	MinCoverage float64 `yaml:"minCoverage"`
	BlurKernel  int     `yaml:"blurKernel"`
}

func DefaultScanParams() ScanParams {
	return ScanParams{
		Resolution:  512,
		PatchSize:   64,
		MinCoverage: 0.3,
		BlurKernel:  5,
	}
}

func (p ScanParams) Validate() error {
	if p.Resolution <= 0 {
		return &ValidationError{
			Context: "ScanParams",
			Field:   "resolution",
			Value:   p.Resolution,
			Reason:  "must be positive",
		}
	}

	if p.PatchSize <= 0 || p.PatchSize > p.Resolution {
		return &ValidationError{
			Context: "ScanParams",
			Field:   "patchSize",
			Value:   p.PatchSize,
			Reason:  "must be between 1 and the resolution",
		}
	}

	if p.MinCoverage < 0 || p.MinCoverage > 1 {
		return &ValidationError{
			Context: "ScanParams",
			Field:   "minCoverage",
			Value:   p.MinCoverage,
			Reason:  "must be between 0.0 and 1.0",
		}
	}

	if p.BlurKernel < 1 || p.BlurKernel%2 == 0 {
		return &ValidationError{
			Context: "ScanParams",
			Field:   "blurKernel",
			Value:   p.BlurKernel,
			Reason:  "must be a positive odd number",
		}
	}

	return nil
}

// minForeground is the number of mask pixels a patch needs to be classified.
func (p ScanParams) minForeground() float64 {
	return p.MinCoverage * float64(p.PatchSize*p.PatchSize)
}
