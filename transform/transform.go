// Package transform holds the small amount of rigid body math needed to
// turn SLAM pose matrices into ROS transforms.
package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Transformation is a rigid body transform held as a unit rotation
// quaternion and a translation vector.
type Transformation struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// Identity returns the identity transformation.
func Identity() Transformation {
	return Transformation{Rotation: quat.Number{Real: 1}}
}

// FromMatrix builds a Transformation from a 4x4 homogeneous pose matrix.
// The rotation block of a pose coming out of a tracking engine accumulates
// floating point drift, so it is first snapped to the nearest proper
// rotation before converting to a quaternion.
func FromMatrix(m *mat.Dense) (Transformation, error) {
	r, c := m.Dims()
	if r != 4 || c != 4 {
		return Transformation{}, errors.Errorf("pose matrix must be 4x4, got %dx%d", r, c)
	}
	rot, err := nearestRotation(mat.DenseCopyOf(m.Slice(0, 3, 0, 3)))
	if err != nil {
		return Transformation{}, err
	}
	return Transformation{
		Rotation:    matrixToQuat(rot),
		Translation: r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)},
	}, nil
}

// Inverse returns the transformation mapping the opposite way.
func (t Transformation) Inverse() Transformation {
	inv := quat.Conj(t.Rotation)
	return Transformation{
		Rotation:    inv,
		Translation: rotate(inv, t.Translation).Mul(-1),
	}
}

// Mul composes two transformations, applying other first.
func (t Transformation) Mul(other Transformation) Transformation {
	return Transformation{
		Rotation:    quat.Mul(t.Rotation, other.Rotation),
		Translation: rotate(t.Rotation, other.Translation).Add(t.Translation),
	}
}

// Apply maps a point through the transformation.
func (t Transformation) Apply(v r3.Vector) r3.Vector {
	return rotate(t.Rotation, v).Add(t.Translation)
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// nearestRotation projects an almost orthonormal 3x3 matrix onto the
// closest proper rotation, U V^T with the determinant corrected.
func nearestRotation(m *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize rotation block")
	}
	u, v := &mat.Dense{}, &mat.Dense{}
	svd.UTo(u)
	svd.VTo(v)
	var r mat.Dense
	r.Mul(u, v.T())
	if mat.Det(&r) < 0 {
		flip := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, -1})
		r.Mul(u, flip)
		r.Mul(&r, v.T())
	}
	return &r, nil
}

// matrixToQuat converts a proper rotation matrix to a unit quaternion with
// a non-negative scalar part, picking the numerically stable branch.
func matrixToQuat(m *mat.Dense) quat.Number {
	var q quat.Number
	t := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	switch {
	case t > 0:
		s := 2.0 * math.Sqrt(1.0 + t)
		q.Real = 0.25 * s
		q.Imag = (m.At(2, 1) - m.At(1, 2)) / s
		q.Jmag = (m.At(0, 2) - m.At(2, 0)) / s
		q.Kmag = (m.At(1, 0) - m.At(0, 1)) / s
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := 2.0 * math.Sqrt(1.0 + m.At(0, 0) - m.At(1, 1) - m.At(2, 2))
		q.Real = (m.At(2, 1) - m.At(1, 2)) / s
		q.Imag = 0.25 * s
		q.Jmag = (m.At(0, 1) + m.At(1, 0)) / s
		q.Kmag = (m.At(0, 2) + m.At(2, 0)) / s
	case m.At(1, 1) > m.At(2, 2):
		s := 2.0 * math.Sqrt(1.0 + m.At(1, 1) - m.At(0, 0) - m.At(2, 2))
		q.Real = (m.At(0, 2) - m.At(2, 0)) / s
		q.Imag = (m.At(0, 1) + m.At(1, 0)) / s
		q.Jmag = 0.25 * s
		q.Kmag = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := 2.0 * math.Sqrt(1.0 + m.At(2, 2) - m.At(0, 0) - m.At(1, 1))
		q.Real = (m.At(1, 0) - m.At(0, 1)) / s
		q.Imag = (m.At(0, 2) + m.At(2, 0)) / s
		q.Jmag = (m.At(1, 2) + m.At(2, 1)) / s
		q.Kmag = 0.25 * s
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return quat.Scale(1/quat.Abs(q), q)
}
