package features

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// CentroidBins is the number of leading magnitude-spectrum bins used for the
// spectral centroid
const CentroidBins = 50

// ErrEmptyWindow is returned for zero-length windows
var ErrEmptyWindow = errors.New("empty audio window")

// Vector is the classifier input. The order returned by Slice is fixed:
// energy first, spectral centroid second
type Vector struct {
	Energy           float64 `json:"energy"`
	SpectralCentroid float64 `json:"spectral_centroid"`
}

// Names lists the feature names in Slice order
var Names = []string{"energy", "spectral_centroid"}

// Slice returns the vector as [energy, spectral_centroid]
func (v Vector) Slice() []float64 {
	return []float64{v.Energy, v.SpectralCentroid}
}

// Energy returns the root-mean-square amplitude of the window
func Energy(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, s := range window {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(window)))
}

// Extractor computes feature vectors. It caches the FFT plan for the last
// window length and reuses its work buffers, so one Extractor must not be
// shared between goroutines
type Extractor struct {
	fft    *fourier.FFT
	n      int
	seq    []float64
	coeffs []complex128
}

// NewExtractor creates an extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract computes the feature vector of the window
func (e *Extractor) Extract(window []float32) (Vector, error) {
	if len(window) == 0 {
		return Vector{}, ErrEmptyWindow
	}
	return Vector{
		Energy:           Energy(window),
		SpectralCentroid: e.SpectralCentroid(window),
	}, nil
}

// SpectralCentroid returns the magnitude-weighted mean bin index over the
// first CentroidBins bins of the real DFT, or 0 if those bins carry no energy
func (e *Extractor) SpectralCentroid(window []float32) float64 {
	if len(window) == 0 {
		return 0
	}
	e.plan(len(window))

	for i, s := range window {
		e.seq[i] = float64(s)
	}
	e.coeffs = e.fft.Coefficients(e.coeffs, e.seq)

	bins := len(e.coeffs)
	if bins > CentroidBins {
		bins = CentroidBins
	}

	var weighted, total float64
	for i := 0; i < bins; i++ {
		mag := cmplx.Abs(e.coeffs[i])
		weighted += float64(i) * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func (e *Extractor) plan(n int) {
	if e.fft != nil && e.n == n {
		return
	}
	e.fft = fourier.NewFFT(n)
	e.n = n
	e.seq = make([]float64, n)
	e.coeffs = make([]complex128, n/2+1)
}

// Extract is a convenience wrapper using a fresh Extractor
func Extract(window []float32) (Vector, error) {
	return NewExtractor().Extract(window)
}
