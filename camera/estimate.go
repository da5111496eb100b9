package camera

import (
	"errors"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrTooFewPoints is returned when a sample is too small to analyse.
var ErrTooFewPoints = errors.New("camera: too few points")

const (
	// MinPoints is the loaded point count that triggers estimation.
	MinPoints = 20000
	// MaxSample bounds the number of points analysed.
	MaxSample = 120000

	// Buckets is the number of longitudinal bins per lateral side.
	Buckets = 32

	// elevatedThreshold is how far the 95th height percentile must rise
	// above the median to count as elevated structure.
	elevatedThreshold = 3.0

	minRoadWidth = 2.0
)

// Estimate computes a pose from sampled points.
func Estimate(points []mgl32.Vec3, farMultiplier float32) (Pose, error) {
	if len(points) < 3 {
		return Pose{}, ErrTooFewPoints
	}
	if farMultiplier <= 0 {
		farMultiplier = 1
	}

	n := len(points)
	xy := mat.NewDense(n, 2, nil)
	zs := make([]float64, n)
	var cx, cy float64
	for i, p := range points {
		xy.Set(i, 0, float64(p[0]))
		xy.Set(i, 1, float64(p[1]))
		zs[i] = float64(p[2])
		cx += float64(p[0])
		cy += float64(p[1])
	}
	cx /= float64(n)
	cy /= float64(n)

	fx, fy := principalAxis(xy)

	slices.Sort(zs)
	zMed := stat.Quantile(0.5, stat.Empirical, zs, nil)
	zIQR := stat.Quantile(0.75, stat.Empirical, zs, nil) - stat.Quantile(0.25, stat.Empirical, zs, nil)
	z95 := stat.Quantile(0.95, stat.Empirical, zs, nil)
	elevated := z95-zMed > elevatedThreshold

	lo, hi := zMed-zIQR, zMed+zIQR
	ground := make([]mgl32.Vec3, 0, n)
	for _, p := range points {
		if z := float64(p[2]); z >= lo && z <= hi {
			ground = append(ground, p)
		}
	}
	if len(ground) < 3 {
		ground = points
	}

	a, b := fitPlane(ground, cx, cy)
	up := mgl32.Vec3{float32(-a), float32(-b), 1}.Normalize()
	forward := mgl32.Vec3{float32(fx), float32(fy), float32(a*fx + b*fy)}.Normalize()

	// Signed offsets of ground points along and across the travel axis.
	along := make([]float64, len(ground))
	across := make([]float64, len(ground))
	for i, p := range ground {
		dx, dy := float64(p[0])-cx, float64(p[1])-cy
		along[i] = dx*fx + dy*fy
		across[i] = -dx*fy + dy*fx
	}

	sortedAcross := slices.Clone(across)
	slices.Sort(sortedAcross)
	roadWidth := 2 * (stat.Quantile(0.75, stat.Empirical, sortedAcross, nil) - stat.Quantile(0.25, stat.Empirical, sortedAcross, nil))
	roadWidth = math.Max(roadWidth, minRoadWidth)

	target := densestBucket(ground, along, across)

	dist := float32(math.Min(math.Max(roadWidth*2, 8), 200))
	height := float32(roadWidth * 0.75)
	if elevated {
		height *= 2
	}

	span := float32(slices.Max(along) - slices.Min(along))
	return Pose{
		Position:  target.Sub(forward.Mul(dist)).Add(up.Mul(height)),
		Target:    target,
		Up:        up,
		Near:      max(0.05, dist/1000),
		Far:       max(dist*20, span*1.5) * farMultiplier,
		Forward:   forward,
		RoadWidth: float32(roadWidth),
		Elevated:  elevated,
	}, nil
}

// principalAxis returns the unit eigenvector of the largest eigenvalue of
// the XY covariance, oriented towards +X (or +Y when vertical).
func principalAxis(xy *mat.Dense) (float64, float64) {
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, xy, nil)

	var eig mat.EigenSym
	if !eig.Factorize(&cov, true) {
		return 1, 0
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Eigenvalues are ascending; the last column is dominant.
	fx, fy := vecs.At(0, 1), vecs.At(1, 1)
	if norm := math.Hypot(fx, fy); norm > 0 {
		fx, fy = fx/norm, fy/norm
	} else {
		return 1, 0
	}
	if fx < 0 || (fx == 0 && fy < 0) {
		fx, fy = -fx, -fy
	}
	return fx, fy
}

// fitPlane fits z = a·x + b·y + c by least squares around (cx, cy). A
// degenerate fit yields a horizontal plane.
func fitPlane(points []mgl32.Vec3, cx, cy float64) (float64, float64) {
	m := len(points)
	A := mat.NewDense(m, 3, nil)
	z := mat.NewVecDense(m, nil)
	for i, p := range points {
		A.Set(i, 0, float64(p[0])-cx)
		A.Set(i, 1, float64(p[1])-cy)
		A.Set(i, 2, 1)
		z.SetVec(i, float64(p[2]))
	}

	var coef mat.VecDense
	if err := coef.SolveVec(A, z); err != nil {
		return 0, 0
	}
	a, b := coef.AtVec(0), coef.AtVec(1)
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return 0, 0
	}
	return a, b
}

// densestBucket bins points by longitudinal offset on each lateral side and
// returns the mean position of the fullest bin.
func densestBucket(points []mgl32.Vec3, along, across []float64) mgl32.Vec3 {
	lo, hi := slices.Min(along), slices.Max(along)
	width := (hi - lo) / Buckets
	if width <= 0 {
		width = 1
	}

	var counts [2][Buckets]int
	var sums [2][Buckets]mgl32.Vec3
	for i, p := range points {
		side := 0
		if across[i] >= 0 {
			side = 1
		}
		k := min(int((along[i]-lo)/width), Buckets-1)
		counts[side][k]++
		sums[side][k] = sums[side][k].Add(p)
	}

	bestSide, bestK := 0, 0
	for side := range counts {
		for k := range counts[side] {
			if counts[side][k] > counts[bestSide][bestK] {
				bestSide, bestK = side, k
			}
		}
	}
	return sums[bestSide][bestK].Mul(1 / float32(counts[bestSide][bestK]))
}
