package backend

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/artdr/internal/params"
)

// PCA projects onto the leading principal components in process.
type PCA struct{}

func (PCA) Name() string { return "pca" }

func (PCA) Available(context.Context) error { return nil }

// FitTransform centers X and multiplies by the top n_components right
// singular vectors. Component signs are fixed so the largest-magnitude
// loading is positive, which makes output independent of the SVD's sign
// choice. Components beyond rank(X) are zero.
func (PCA) FitTransform(ctx context.Context, X [][]float64, p params.Params) ([][]float64, error) {
	n, d, err := validateMatrix(X)
	if err != nil {
		return nil, fmt.Errorf("pca: %w", err)
	}
	k := 2
	if v, ok := p["n_components"]; ok {
		i, ok := params.AsInt(v)
		if !ok || i < 1 {
			return nil, fmt.Errorf("pca: invalid n_components %s", params.Format(v))
		}
		k = int(i)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, k)
	}
	if n < 2 {
		return out, nil
	}

	data := mat.NewDense(n, d, nil)
	for i, row := range X {
		data.SetRow(i, row)
	}

	centered := mat.NewDense(n, d, nil)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, data)
		mean := stat.Mean(col, nil)
		for i := range col {
			centered.Set(i, j, col[i]-mean)
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, errors.New("pca: decomposition failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	_, avail := vecs.Dims()
	use := min(k, avail)
	if use == 0 {
		return out, nil
	}

	basis := mat.DenseCopyOf(vecs.Slice(0, d, 0, use))
	for j := 0; j < use; j++ {
		flipSign(basis, j)
	}

	var proj mat.Dense
	proj.Mul(centered, basis)
	for i := 0; i < n; i++ {
		for j := 0; j < use; j++ {
			out[i][j] = proj.At(i, j)
		}
	}
	return out, nil
}

func flipSign(m *mat.Dense, j int) {
	rows, _ := m.Dims()
	best, sign := 0.0, 1.0
	for i := 0; i < rows; i++ {
		v := m.At(i, j)
		if math.Abs(v) > best {
			best = math.Abs(v)
			sign = math.Copysign(1, v)
		}
	}
	if sign < 0 {
		for i := 0; i < rows; i++ {
			m.Set(i, j, -m.At(i, j))
		}
	}
}
