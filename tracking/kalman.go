package tracking

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// kalmanFilter is a single-model extended Kalman filter over the shared
// state space. The measurement model is the linear selector [x, y, yaw], so
// the innovation math indexes the leading block of the covariance directly.
type kalmanFilter struct {
	model      MotionModel
	transition transitionFunc

	x *mat.VecDense // state, stateDim
	p *mat.Dense    // error covariance, stateDim x stateDim

	processNoise     float64
	measurementNoise float64
}

func newKalmanFilter(model MotionModel, seed *mat.VecDense, processNoise, measurementNoise, initCovariance float64) (*kalmanFilter, error) {
	transition, err := transitionFor(model)
	if err != nil {
		return nil, err
	}
	p := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		p.Set(i, i, initCovariance)
	}
	x := mat.NewVecDense(stateDim, nil)
	x.CopyVec(seed)
	return &kalmanFilter{
		model:            model,
		transition:       transition,
		x:                x,
		p:                p,
		processNoise:     processNoise,
		measurementNoise: measurementNoise,
	}, nil
}

// setState overwrites the filter state with mixed initial conditions.
func (kf *kalmanFilter) setState(x *mat.VecDense, p *mat.Dense) {
	kf.x.CopyVec(x)
	kf.p.Copy(p)
}

// predict propagates state and covariance by dt seconds:
// x = f(x), P = F P F^T + Q*dt with F the transition Jacobian.
func (kf *kalmanFilter) predict(dt float64) {
	if dt <= 0.0 {
		return
	}
	f := numericJacobian(kf.transition, kf.x, dt)
	kf.x = kf.transition(kf.x, dt)

	var fp, fpf mat.Dense
	fp.Mul(f, kf.p)
	fpf.Mul(&fp, f.T())
	q := kf.processNoise * dt
	for i := 0; i < stateDim; i++ {
		fpf.Set(i, i, fpf.At(i, i)+q)
	}
	kf.p.Copy(&fpf)
	symmetrize(kf.p)
}

// correct runs the measurement update against z = [x, y, yaw] and returns
// the Gaussian likelihood of the innovation.
func (kf *kalmanFilter) correct(z [measurementDim]float64) (float64, error) {
	// Innovation; yaw residual goes through DeltaTheta to stay free of the
	// pi-periodic orientation ambiguity.
	innovation := mat.NewVecDense(measurementDim, []float64{
		z[0] - kf.x.AtVec(ixX),
		z[1] - kf.x.AtVec(ixY),
		DeltaTheta(z[2], kf.x.AtVec(ixYaw)),
	})

	s := kf.innovationCovariance()
	var chol mat.Cholesky
	if ok := chol.Factorize(s); !ok {
		// Regularize a nearly singular innovation covariance and retry.
		for i := 0; i < measurementDim; i++ {
			s.SetSym(i, i, s.At(i, i)+1e-9)
		}
		if ok := chol.Factorize(s); !ok {
			return 0.0, errors.Errorf("innovation covariance is not positive definite for model %s", kf.model)
		}
	}

	// K = P H^T S^-1, with P H^T the leading measurementDim columns of P.
	pht := mat.NewDense(stateDim, measurementDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := 0; j < measurementDim; j++ {
			pht.Set(i, j, kf.p.At(i, j))
		}
	}
	var kt mat.Dense
	if err := chol.SolveTo(&kt, pht.T()); err != nil {
		return 0.0, errors.Wrap(err, "can't compute Kalman gain")
	}
	var gain mat.Dense
	gain.CloneFrom(kt.T())

	// x = x + K y
	var correction mat.VecDense
	correction.MulVec(&gain, innovation)
	kf.x.AddVec(kf.x, &correction)

	// P = (I - K H) P = P - K * P[0:measurementDim, :]
	var khp mat.Dense
	khp.Mul(&gain, kf.p.Slice(0, measurementDim, 0, stateDim))
	kf.p.Sub(kf.p, &khp)
	symmetrize(kf.p)

	return gaussianLikelihood(innovation, &chol), nil
}

// innovationCovariance returns S = H P H^T + R, the leading block of P plus
// the measurement noise.
func (kf *kalmanFilter) innovationCovariance() *mat.SymDense {
	s := mat.NewSymDense(measurementDim, nil)
	for i := 0; i < measurementDim; i++ {
		for j := i; j < measurementDim; j++ {
			v := 0.5 * (kf.p.At(i, j) + kf.p.At(j, i))
			if i == j {
				v += kf.measurementNoise
			}
			s.SetSym(i, j, v)
		}
	}
	return s
}

// errorCovariance returns a copy of P.
func (kf *kalmanFilter) errorCovariance() *mat.Dense {
	out := mat.NewDense(stateDim, stateDim, nil)
	out.Copy(kf.p)
	return out
}

// measurementCovariance returns a copy of S = H P H^T + R.
func (kf *kalmanFilter) measurementCovariance() *mat.Dense {
	s := kf.innovationCovariance()
	out := mat.NewDense(measurementDim, measurementDim, nil)
	for i := 0; i < measurementDim; i++ {
		for j := 0; j < measurementDim; j++ {
			out.Set(i, j, s.At(i, j))
		}
	}
	return out
}

// predictedMeasurement returns H x.
func (kf *kalmanFilter) predictedMeasurement() [measurementDim]float64 {
	return [measurementDim]float64{kf.x.AtVec(ixX), kf.x.AtVec(ixY), kf.x.AtVec(ixYaw)}
}

// gaussianLikelihood evaluates the zero-mean multivariate normal density of
// the innovation under the factorized innovation covariance.
func gaussianLikelihood(innovation *mat.VecDense, chol *mat.Cholesky) float64 {
	var solved mat.VecDense
	if err := chol.SolveVecTo(&solved, innovation); err != nil {
		return 0.0
	}
	quad := mat.Dot(innovation, &solved)
	logDensity := -0.5 * (quad + chol.LogDet() + float64(measurementDim)*math.Log(2.0*math.Pi))
	return math.Exp(logDensity)
}

// numericJacobian approximates the transition Jacobian with central
// differences. The step size is scaled per component to stay well
// conditioned for both near-zero and large state entries.
func numericJacobian(f transitionFunc, x *mat.VecDense, dt float64) *mat.Dense {
	out := mat.NewDense(stateDim, stateDim, nil)
	perturbed := mat.NewVecDense(stateDim, nil)
	for j := 0; j < stateDim; j++ {
		h := 1e-6 * math.Max(1.0, math.Abs(x.AtVec(j)))

		perturbed.CopyVec(x)
		perturbed.SetVec(j, x.AtVec(j)+h)
		plus := f(perturbed, dt)

		perturbed.CopyVec(x)
		perturbed.SetVec(j, x.AtVec(j)-h)
		minus := f(perturbed, dt)

		for i := 0; i < stateDim; i++ {
			out.Set(i, j, (plus.AtVec(i)-minus.AtVec(i))/(2.0*h))
		}
	}
	return out
}

// symmetrize enforces P = (P + P^T) / 2 against floating-point drift.
func symmetrize(p *mat.Dense) {
	r, _ := p.Dims()
	for i := 0; i < r; i++ {
		for j := i + 1; j < r; j++ {
			v := 0.5 * (p.At(i, j) + p.At(j, i))
			p.Set(i, j, v)
			p.Set(j, i, v)
		}
	}
}
