package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	errTooFewSamples = errors.New("too few samples for the number of free features")
	errNoVariance    = errors.New("no feature varies across the buffer")
	errSingular      = errors.New("design matrix is singular")
)

// singularRatio is the smallest acceptable ratio of the smallest to the
// largest singular value of the standardized design matrix.
const singularRatio = 1e-10

type fit struct {
	coef      []float64
	intercept float64
	mse       float64
	r2        float64
}

// fitOLS solves ordinary least squares with an intercept over the buffer.
// Features are standardized before solving; a feature that is constant
// across the buffer gets a zero coefficient. The returned coefficients are
// on the original feature scale.
func fitOLS(buf *ring, dim int) (res fit, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model: ols panicked: %v", r)
		}
	}()

	n := buf.len()
	mean := make([]float64, dim)
	std := make([]float64, dim)
	for i := 0; i < n; i++ {
		s := buf.at(i)
		for j := 0; j < dim; j++ {
			mean[j] += s.x[j]
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}
	for i := 0; i < n; i++ {
		s := buf.at(i)
		for j := 0; j < dim; j++ {
			d := s.x[j] - mean[j]
			std[j] += d * d
		}
	}

	active := make([]int, 0, dim)
	for j := range std {
		std[j] = math.Sqrt(std[j] / float64(n))
		if std[j] > 1e-12*math.Max(1, math.Abs(mean[j])) {
			active = append(active, j)
		}
	}
	if len(active) == 0 {
		return fit{}, errNoVariance
	}
	p := len(active) + 1
	if n < p {
		return fit{}, errTooFewSamples
	}

	x := mat.NewDense(n, p, nil)
	ys := make([]float64, n)
	for i := 0; i < n; i++ {
		s := buf.at(i)
		x.Set(i, 0, 1)
		for k, j := range active {
			x.Set(i, k+1, (s.x[j]-mean[j])/std[j])
		}
		ys[i] = s.y
	}
	y := mat.NewVecDense(n, ys)

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDNone) {
		return fit{}, fmt.Errorf("model: svd did not converge: %w", errSingular)
	}
	sv := svd.Values(nil)
	if sv[len(sv)-1] <= sv[0]*singularRatio {
		return fit{}, errSingular
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return fit{}, fmt.Errorf("model: solve: %w", err)
	}

	res.coef = make([]float64, dim)
	res.intercept = beta.AtVec(0)
	for k, j := range active {
		c := beta.AtVec(k+1) / std[j]
		res.coef[j] = c
		res.intercept -= c * mean[j]
	}
	if !finite(res.intercept) || !allFinite(res.coef) {
		return fit{}, fmt.Errorf("model: non-finite coefficients: %w", errSingular)
	}

	res.mse, res.r2 = fitMetrics(buf, res.coef, res.intercept)
	return res, nil
}

// fitMetrics returns in-sample mean squared error and R².
func fitMetrics(buf *ring, coef []float64, intercept float64) (mse, r2 float64) {
	n := buf.len()
	var yMean float64
	for i := 0; i < n; i++ {
		yMean += buf.at(i).y
	}
	yMean /= float64(n)

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		s := buf.at(i)
		d := s.y - predict(coef, intercept, s.x)
		ssRes += d * d
		t := s.y - yMean
		ssTot += t * t
	}
	mse = ssRes / float64(n)
	switch {
	case ssTot > 0:
		r2 = 1 - ssRes/ssTot
	case ssRes == 0:
		r2 = 1
	}
	return mse, r2
}

func predict(coef []float64, intercept float64, x []float64) float64 {
	y := intercept
	for j, c := range coef {
		y += c * x[j]
	}
	return y
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}
