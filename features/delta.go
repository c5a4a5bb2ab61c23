package features

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// deltaWidth is the Savitzky-Golay window length used for delta features.
const deltaWidth = 9

// delta estimates the order-th time derivative of every row of m with a
// Savitzky-Golay filter of polynomial order equal to order. Near the edges
// the polynomial is fitted to the first or last deltaWidth frames instead of
// padding. Rows shorter than deltaWidth are an error.
func delta(m [][]float64, order int) ([][]float64, error) {
	coeffs, err := savgolCoeffs(deltaWidth, order)
	if err != nil {
		return nil, err
	}
	half := deltaWidth / 2

	out := make([][]float64, len(m))
	for r, row := range m {
		if len(row) < deltaWidth {
			return nil, fmt.Errorf("delta needs at least %d frames, got %d", deltaWidth, len(row))
		}
		d := make([]float64, len(row))
		for t := range row {
			start := min(max(t-half, 0), len(row)-deltaWidth)
			var sum float64
			for j, c := range coeffs {
				sum += c * row[start+j]
			}
			d[t] = sum
		}
		out[r] = d
	}
	return out, nil
}

// savgolCoeffs returns the filter taps that give the order-th derivative of a
// least-squares polynomial of degree order fitted over width samples. The
// derivative of that degree is constant, so the same taps serve every
// window position.
func savgolCoeffs(width, order int) ([]float64, error) {
	if order < 1 || order >= width {
		return nil, fmt.Errorf("delta order must be in [1, %d), got %d", width, order)
	}
	v := mat.NewDense(width, order+1, nil)
	for i := 0; i < width; i++ {
		z := float64(i - width/2)
		p := 1.0
		for j := 0; j <= order; j++ {
			v.Set(i, j, p)
			p *= z
		}
	}

	// rows of (VᵀV)⁻¹Vᵀ map samples to polynomial coefficients
	var normal, fit mat.Dense
	normal.Mul(v.T(), v)
	if err := fit.Solve(&normal, v.T()); err != nil {
		return nil, fmt.Errorf("savgol fit: %w", err)
	}

	fact := 1.0
	for k := 2; k <= order; k++ {
		fact *= float64(k)
	}
	coeffs := make([]float64, width)
	for i := range coeffs {
		coeffs[i] = fact * fit.At(order, i)
	}
	return coeffs, nil
}
