package model

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const minPairwiseProb = 1e-7

// SVC evaluates a one-vs-one support vector classifier with Platt-scaled
// pairwise probabilities, using the libsvm layout exported by scikit-learn
// (support_vectors_, n_support_, _dual_coef_, _intercept_, probA_, probB_).
type SVC struct {
	kernel  string
	gamma   float64
	coef0   float64
	degree  float64
	support *mat.Dense
	svNorms []float64
	start   []int
	count   []int
	coef    *mat.Dense
	rho     []float64
	probA   []float64
	probB   []float64
	classes int
}

type svcArtifact struct {
	Kernel         string      `json:"kernel"`
	Gamma          float64     `json:"gamma"`
	Coef0          float64     `json:"coef0"`
	Degree         float64     `json:"degree"`
	SupportVectors [][]float64 `json:"support_vectors"`
	NSupport       []int       `json:"n_support"`
	DualCoef       [][]float64 `json:"dual_coef"`
	Intercept      []float64   `json:"intercept"`
	ProbA          []float64   `json:"prob_a"`
	ProbB          []float64   `json:"prob_b"`
}

func decodeSVC(data []byte) (Classifier, error) {
	var a svcArtifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode svc classifier: %w", err)
	}
	return newSVC(a)
}

func newSVC(a svcArtifact) (*SVC, error) {
	switch a.Kernel {
	case "rbf", "linear", "poly", "sigmoid":
	default:
		return nil, fmt.Errorf("unsupported svc kernel %q", a.Kernel)
	}

	nSV, nFeat, err := denseShape(a.SupportVectors)
	if err != nil {
		return nil, fmt.Errorf("svc support vectors: %w", err)
	}

	classes := len(a.NSupport)
	if classes < 2 {
		return nil, fmt.Errorf("%w: svc needs at least 2 classes, got %d", ErrShapeMismatch, classes)
	}

	start := make([]int, classes)
	total := 0
	for i, n := range a.NSupport {
		start[i] = total
		total += n
	}
	if total != nSV {
		return nil, fmt.Errorf("%w: n_support sums to %d but %d support vectors given",
			ErrShapeMismatch, total, nSV)
	}

	coefRows, coefCols, err := denseShape(a.DualCoef)
	if err != nil {
		return nil, fmt.Errorf("svc dual coefficients: %w", err)
	}
	if coefRows != classes-1 || coefCols != nSV {
		return nil, fmt.Errorf("%w: dual_coef is %dx%d, want %dx%d",
			ErrShapeMismatch, coefRows, coefCols, classes-1, nSV)
	}

	pairs := classes * (classes - 1) / 2
	if len(a.Intercept) != pairs || len(a.ProbA) != pairs || len(a.ProbB) != pairs {
		return nil, fmt.Errorf("%w: %d class pairs need %d intercepts and Platt parameters",
			ErrShapeMismatch, pairs, pairs)
	}

	support := mat.NewDense(nSV, nFeat, flatten(a.SupportVectors))
	norms := make([]float64, nSV)
	for i := 0; i < nSV; i++ {
		row := support.RawRowView(i)
		norms[i] = floatsDot(row, row)
	}

	rho := make([]float64, pairs)
	for i, v := range a.Intercept {
		rho[i] = -v
	}

	degree := a.Degree
	if degree == 0 {
		degree = 3
	}

	return &SVC{
		kernel:  a.Kernel,
		gamma:   a.Gamma,
		coef0:   a.Coef0,
		degree:  degree,
		support: support,
		svNorms: norms,
		start:   start,
		count:   append([]int(nil), a.NSupport...),
		coef:    mat.NewDense(classes-1, nSV, flatten(a.DualCoef)),
		rho:     rho,
		probA:   append([]float64(nil), a.ProbA...),
		probB:   append([]float64(nil), a.ProbB...),
		classes: classes,
	}, nil
}

func (s *SVC) Kind() string { return "svc" }

func (s *SVC) NumClasses() int { return s.classes }

func (s *SVC) NumFeatures() int {
	_, c := s.support.Dims()
	return c
}

func (s *SVC) PredictProba(x *mat.VecDense) ([]float64, error) {
	if err := checkInput(s, x); err != nil {
		return nil, err
	}

	kv := s.kernelValues(x)
	k := s.classes

	r := mat.NewDense(k, k, nil)
	p := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			sum := 0.0
			for n := 0; n < s.count[i]; n++ {
				idx := s.start[i] + n
				sum += s.coef.At(j-1, idx) * kv[idx]
			}
			for n := 0; n < s.count[j]; n++ {
				idx := s.start[j] + n
				sum += s.coef.At(i, idx) * kv[idx]
			}
			dec := sum - s.rho[p]

			prob := sigmoidPredict(dec, s.probA[p], s.probB[p])
			prob = math.Min(math.Max(prob, minPairwiseProb), 1-minPairwiseProb)
			r.Set(i, j, prob)
			r.Set(j, i, 1-prob)
			p++
		}
	}

	if k == 2 {
		return []float64{r.At(0, 1), r.At(1, 0)}, nil
	}
	return coupleProbabilities(r), nil
}

func (s *SVC) kernelValues(x *mat.VecDense) []float64 {
	nSV, _ := s.support.Dims()
	dots := mat.NewVecDense(nSV, nil)
	dots.MulVec(s.support, x)

	out := dots.RawVector().Data
	switch s.kernel {
	case "rbf":
		xNorm := mat.Dot(x, x)
		for i := range out {
			out[i] = math.Exp(-s.gamma * (s.svNorms[i] + xNorm - 2*out[i]))
		}
	case "poly":
		for i := range out {
			out[i] = math.Pow(s.gamma*out[i]+s.coef0, s.degree)
		}
	case "sigmoid":
		for i := range out {
			out[i] = math.Tanh(s.gamma*out[i] + s.coef0)
		}
	}
	return out
}

// sigmoidPredict is Platt's sigmoid in its numerically stable form.
func sigmoidPredict(dec, a, b float64) float64 {
	fApB := dec*a + b
	if fApB >= 0 {
		return math.Exp(-fApB) / (1 + math.Exp(-fApB))
	}
	return 1 / (1 + math.Exp(fApB))
}

// coupleProbabilities turns the pairwise probability matrix r into class
// probabilities with the iterative method of Wu, Lin and Weng (libsvm).
func coupleProbabilities(r *mat.Dense) []float64 {
	k, _ := r.Dims()
	q := mat.NewDense(k, k, nil)
	for t := 0; t < k; t++ {
		for j := 0; j < t; j++ {
			q.Set(t, t, q.At(t, t)+r.At(j, t)*r.At(j, t))
			q.Set(t, j, q.At(j, t))
		}
		for j := t + 1; j < k; j++ {
			q.Set(t, t, q.At(t, t)+r.At(j, t)*r.At(j, t))
			q.Set(t, j, -r.At(j, t)*r.At(t, j))
		}
	}

	p := make([]float64, k)
	for t := range p {
		p[t] = 1 / float64(k)
	}

	maxIter := 100
	if k > maxIter {
		maxIter = k
	}
	eps := 0.005 / float64(k)
	qp := make([]float64, k)

	for iter := 0; iter < maxIter; iter++ {
		pVec := mat.NewVecDense(k, p)
		qpVec := mat.NewVecDense(k, qp)
		qpVec.MulVec(q, pVec)
		pQp := mat.Dot(pVec, qpVec)

		maxErr := 0.0
		for t := 0; t < k; t++ {
			maxErr = math.Max(maxErr, math.Abs(qp[t]-pQp))
		}
		if maxErr < eps {
			break
		}

		for t := 0; t < k; t++ {
			diff := (-qp[t] + pQp) / q.At(t, t)
			p[t] += diff
			pQp = (pQp + diff*(diff*q.At(t, t)+2*qp[t])) / (1 + diff) / (1 + diff)
			for j := 0; j < k; j++ {
				qp[j] = (qp[j] + diff*q.At(t, j)) / (1 + diff)
				p[j] /= 1 + diff
			}
		}
	}

	return p
}

func floatsDot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
