package features

import "math"

// Texture holds the Haralick statistics used by the classifier, averaged
// over the four co-occurrence directions.
type Texture struct {
	Contrast    float64
	Correlation float64
	// Energy occupies the slot the fitted artifacts were trained against,
	// which is Haralick feature 9 (entropy, base 2).
	Energy      float64
	Homogeneity float64
}

// Co-occurrence offsets as (dy, dx) at distance 1.
var directions = [4][2]int{{0, 1}, {1, 1}, {1, 0}, {1, -1}}

// Haralick computes texture statistics of a width x height gray level map.
// Pairs involving a zero (background) gray level are ignored. It returns
// ErrNotComputable when any direction has no remaining pairs.
func Haralick(gray []uint8, width, height int) (Texture, error) {
	if width <= 0 || height <= 0 || len(gray) < width*height {
		return Texture{}, ErrNotComputable
	}

	levels := 1
	for _, v := range gray[:width*height] {
		if int(v)+1 > levels {
			levels = int(v) + 1
		}
	}

	var sum Texture
	cmat := make([]float64, levels*levels)
	for _, d := range directions {
		for i := range cmat {
			cmat[i] = 0
		}
		total := cooccurrence(gray, width, height, d[0], d[1], levels, cmat)
		if total == 0 {
			return Texture{}, ErrNotComputable
		}

		t := haralickSingle(cmat, levels, total)
		sum.Contrast += t.Contrast
		sum.Correlation += t.Correlation
		sum.Energy += t.Energy
		sum.Homogeneity += t.Homogeneity
	}

	n := float64(len(directions))
	return Texture{
		Contrast:    sum.Contrast / n,
		Correlation: sum.Correlation / n,
		Energy:      sum.Energy / n,
		Homogeneity: sum.Homogeneity / n,
	}, nil
}

// cooccurrence fills the symmetric co-occurrence matrix for one offset and
// returns its total count after dropping gray level zero.
func cooccurrence(gray []uint8, width, height, dy, dx, levels int, cmat []float64) float64 {
	total := 0.0
	for y := 0; y < height; y++ {
		ny := y + dy
		if ny < 0 || ny >= height {
			continue
		}
		for x := 0; x < width; x++ {
			nx := x + dx
			if nx < 0 || nx >= width {
				continue
			}
			a := int(gray[y*width+x])
			b := int(gray[ny*width+nx])
			if a == 0 || b == 0 {
				continue
			}
			cmat[a*levels+b]++
			cmat[b*levels+a]++
			total += 2
		}
	}
	return total
}

func haralickSingle(cmat []float64, levels int, total float64) Texture {
	px := make([]float64, levels)
	py := make([]float64, levels)
	for i := 0; i < levels; i++ {
		for j := 0; j < levels; j++ {
			p := cmat[i*levels+j] / total
			px[j] += p
			py[i] += p
		}
	}

	var ux, uy, vx, vy float64
	for k := 0; k < levels; k++ {
		fk := float64(k)
		ux += px[k] * fk
		uy += py[k] * fk
		vx += px[k] * fk * fk
		vy += py[k] * fk * fk
	}
	vx = math.Max(vx-ux*ux, 0)
	vy = math.Max(vy-uy*uy, 0)

	var t Texture
	var ij float64
	for i := 0; i < levels; i++ {
		for j := 0; j < levels; j++ {
			p := cmat[i*levels+j] / total
			if p == 0 {
				continue
			}
			diff := float64(i - j)
			t.Contrast += diff * diff * p
			t.Homogeneity += p / (1 + diff*diff)
			t.Energy -= p * math.Log2(p)
			ij += float64(i*j) * p
		}
	}

	sx := math.Sqrt(vx)
	sy := math.Sqrt(vy)
	if sx == 0 || sy == 0 {
		t.Correlation = 1
	} else {
		t.Correlation = (ij - ux*uy) / sx / sy
	}

	return t
}
