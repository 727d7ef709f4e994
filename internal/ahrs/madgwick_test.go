// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ahrs

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

var (
	zeroGyro = Vec3(0.0, 0, 0)
	up       = Vec3(0.0, 0, 1)
	north    = Vec3(1.0, 0, 0)
)

func degreesFromIdentity(q Quaternion[float64]) float64 {
	return Identity[float64]().Angle(q) * 180 / math.Pi
}

func randomVec(rng *rand.Rand, scale float64) Vector3[float64] {
	return Vec3(rng.NormFloat64()*scale, rng.NormFloat64()*scale, rng.NormFloat64()*scale)
}

func TestNewMadgwickValidation(t *testing.T) {
	nan, inf := math.NaN(), math.Inf(1)
	tests := []struct {
		name    string
		dt      float64
		beta    float64
		initial Quaternion[float64]
	}{
		{"zero period", 0, 0.1, Identity[float64]()},
		{"negative period", -0.01, 0.1, Identity[float64]()},
		{"NaN period", nan, 0.1, Identity[float64]()},
		{"negative beta", 0.01, -0.1, Identity[float64]()},
		{"infinite beta", 0.01, inf, Identity[float64]()},
		{"zero orientation", 0.01, 0.1, Quaternion[float64]{}},
		{"NaN orientation", 0.01, 0.1, Quaternion[float64]{W: nan}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewMadgwick(tt.dt, tt.beta, tt.initial)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if f != nil {
				t.Fatal("filter returned alongside error")
			}
		})
	}

	f, err := NewMadgwick(0.01, 0, Quaternion[float64]{W: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.Quaternion(); got != Identity[float64]() {
		t.Errorf("initial orientation not normalized: %v", got)
	}
}

func TestDefaultMadgwick(t *testing.T) {
	f := DefaultMadgwick[float64]()
	if f.samplePeriod != 1.0/256 || f.beta != 0.1 {
		t.Errorf("defaults = (%v, %v)", f.samplePeriod, f.beta)
	}
	if f.Quaternion() != Identity[float64]() {
		t.Errorf("default orientation = %v", f.Quaternion())
	}
	if mode, _, _, ok := f.MagReference(); mode != MagReferenceTracking || ok {
		t.Errorf("default reference = %v, known %v", mode, ok)
	}
}

func TestUnitNormAfterEveryUpdate(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := DefaultMadgwick[float64]()
	for i := 0; i < 5000; i++ {
		gyro := randomVec(rng, 3)
		accel := randomVec(rng, 9.81)
		var (
			q   Quaternion[float64]
			err error
		)
		if i%3 == 0 {
			q, err = f.UpdateIMU(gyro, accel)
		} else {
			q, err = f.Update(gyro, accel, randomVec(rng, 50))
		}
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if d := math.Abs(q.Norm() - 1); d > 1e-9 {
			t.Fatalf("step %d: |q| - 1 = %g", i, d)
		}
	}
}

func TestFixedPointWithoutGainOrRotation(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	start := FromAxisAngle(Vec3(1.0, -2, 0.5), 0.7)
	f, err := NewMadgwick(1.0/256, 0, start)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		if _, err := f.Update(zeroGyro, randomVec(rng, 1), randomVec(rng, 1)); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if _, err := f.UpdateIMU(zeroGyro, randomVec(rng, 1)); err != nil {
			t.Fatalf("UpdateIMU: %v", err)
		}
	}
	if a := start.Angle(f.Quaternion()); a > 1e-9 {
		t.Errorf("orientation moved by %g rad", a)
	}
}

func TestIMUEqualsMARGWithoutField(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100; i++ {
		f1, _ := NewMadgwick(0.01, 0.3, randomQuat(rng))
		f2, _ := NewMadgwick(0.01, 0.3, f1.Quaternion())
		q := f1.Quaternion()
		accel := randomVec(rng, 9.81)
		a, _ := accel.Normalize()

		imu := imuGradient(q, a)
		marg := margGradient(q, a, Vector3[float64]{}, 0, 0)
		if imu != marg {
			t.Fatalf("gradients differ: imu %v marg %v", imu, marg)
		}

		gyro := randomVec(rng, 1)
		got, err := f1.UpdateIMU(gyro, accel)
		if err != nil {
			t.Fatal(err)
		}
		want, err := f2.step(q, gyro, marg)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("UpdateIMU = %v, MARG step without field = %v", got, want)
		}
	}
}

func TestRejectedInputKeepsState(t *testing.T) {
	start := FromAxisAngle(Vec3(0.0, 1, 0), 0.2)
	tests := []struct {
		name    string
		update  func(f *Madgwick[float64]) error
		wantErr error
	}{
		{"zero accel", func(f *Madgwick[float64]) error {
			_, err := f.Update(zeroGyro, Vec3(0.0, 0, 0), north)
			return err
		}, ErrZeroNormInput},
		{"zero accel imu", func(f *Madgwick[float64]) error {
			_, err := f.UpdateIMU(zeroGyro, Vec3(0.0, 0, 0))
			return err
		}, ErrZeroNormInput},
		{"zero mag", func(f *Madgwick[float64]) error {
			_, err := f.Update(zeroGyro, up, Vec3(0.0, 0, 0))
			return err
		}, ErrZeroNormInput},
		{"NaN gyro", func(f *Madgwick[float64]) error {
			_, err := f.Update(Vec3(math.NaN(), 0, 0), up, north)
			return err
		}, ErrInvalidInput},
		{"infinite accel", func(f *Madgwick[float64]) error {
			_, err := f.UpdateIMU(zeroGyro, Vec3(0, math.Inf(-1), 0))
			return err
		}, ErrInvalidInput},
		{"NaN mag", func(f *Madgwick[float64]) error {
			_, err := f.Update(zeroGyro, up, Vec3(0, 0, math.NaN()))
			return err
		}, ErrInvalidInput},
		{"overflowing gyro", func(f *Madgwick[float64]) error {
			// q ⊗ (0, g) sums two terms near MaxFloat64 into +Inf
			_, err := f.UpdateIMU(Vec3(math.MaxFloat64, 0, math.MaxFloat64), up)
			return err
		}, ErrDegenerateQuaternion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewMadgwick(1.0/256, 0.1, start, WithLatchedMagReference[float64]())
			if err != nil {
				t.Fatal(err)
			}
			before := f.Quaternion()
			if err := tt.update(f); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if f.Quaternion() != before {
				t.Errorf("state changed: %v -> %v", before, f.Quaternion())
			}
			if _, _, _, ok := f.MagReference(); ok {
				t.Error("magnetic reference latched by a failed update")
			}
		})
	}
}

func TestAlignedInputSkipsCorrection(t *testing.T) {
	if _, err := normalizedGradient([4]float64{}); !errors.Is(err, ErrDegenerateGradient) {
		t.Fatalf("zero gradient: err = %v", err)
	}

	f := DefaultMadgwick[float64]()
	for i := 0; i < 10; i++ {
		q, err := f.Update(zeroGyro, up, north)
		if err != nil {
			t.Fatalf("aligned update failed: %v", err)
		}
		if q != Identity[float64]() {
			t.Fatalf("aligned update moved orientation to %v", q)
		}
	}
}

func TestJacobian(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	const h = 1e-6
	for i := 0; i < 50; i++ {
		q, _ := randomQuat(rng).Normalize()
		a, _ := randomVec(rng, 1).Normalize()
		m, _ := randomVec(rng, 1).Normalize()
		bx, bz := earthField(q, m)

		residual := func(p Quaternion[float64]) []float64 {
			g, f := gravityResidual(p, a), fieldResidual(p, m, bx, bz)
			return []float64{g[0], g[1], g[2], f[0], f[1], f[2]}
		}
		gj, fj := gravityJacobian(q), fieldJacobian(q, bx, bz)
		jac := mat.NewDense(6, 4, nil)
		for c := 0; c < 4; c++ {
			jac.Set(0, c, gj[0][c])
			jac.Set(1, c, gj[1][c])
			jac.Set(2, c, gj[2][c])
			jac.Set(3, c, fj[0][c])
			jac.Set(4, c, fj[1][c])
			jac.Set(5, c, fj[2][c])
		}

		// Analytic Jacobian against central differences.
		for c := 0; c < 4; c++ {
			var d [4]float64
			d[c] = h
			dq := Quaternion[float64]{W: d[0], X: d[1], Y: d[2], Z: d[3]}
			plus, minus := residual(q.Add(dq)), residual(q.Add(dq.Scale(-1)))
			for r := 0; r < 6; r++ {
				numeric := (plus[r] - minus[r]) / (2 * h)
				if math.Abs(numeric-jac.At(r, c)) > 1e-6 {
					t.Fatalf("J[%d][%d] = %v, numeric %v", r, c, jac.At(r, c), numeric)
				}
			}
		}

		// Jᵀ·F against the hand-expanded gradient.
		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(6, residual(q)))
		got := margGradient(q, a, m, bx, bz)
		for c := 0; c < 4; c++ {
			if math.Abs(grad.AtVec(c)-got[c]) > 1e-12 {
				t.Fatalf("gradient[%d] = %v, gonum %v", c, got[c], grad.AtVec(c))
			}
		}
	}
}

func TestConvergence(t *testing.T) {
	tests := []struct {
		name  string
		axis  Vector3[float64]
		beta  float64
		steps int
		imu   bool
	}{
		{"roll beta 0.1", Vec3(1.0, 0, 0), 0.1, 2000, false},
		{"yaw beta 0.1", Vec3(0.0, 0, 1), 0.1, 2000, false},
		{"pitch beta 0.1 imu", Vec3(0.0, 1, 0), 0.1, 2000, true},
		{"roll beta 1", Vec3(1.0, 0, 0), 1, 100, false},
		{"yaw beta 1", Vec3(0.0, 0, 1), 1, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewMadgwick(1.0/256, tt.beta, FromAxisAngle(tt.axis, 30*math.Pi/180))
			if err != nil {
				t.Fatal(err)
			}
			prev := degreesFromIdentity(f.Quaternion())
			for i := 0; i < tt.steps; i++ {
				var q Quaternion[float64]
				if tt.imu {
					q, err = f.UpdateIMU(zeroGyro, up)
				} else {
					q, err = f.Update(zeroGyro, up, north)
				}
				if err != nil {
					t.Fatalf("step %d: %v", i, err)
				}
				if i == 99 && tt.beta == 0.1 {
					// One step moves at most beta*dt, so 100 steps close a few degrees.
					if e := degreesFromIdentity(q); e > prev-3 {
						t.Errorf("after 100 steps error %.2f°, started at %.2f°", e, prev)
					}
				}
			}
			if e := degreesFromIdentity(f.Quaternion()); e > 1 {
				t.Errorf("error after %d steps = %.3f°, want < 1°", tt.steps, e)
			}
		})
	}
}

func TestGainSpeedsConvergence(t *testing.T) {
	const steps = 50
	start := FromAxisAngle(Vec3(1.0, 0, 0), 30*math.Pi/180)
	prev := math.Inf(1)
	for _, beta := range []float64{0, 0.05, 0.1, 0.2, 0.4, 0.6, 0.8, 1} {
		f, err := NewMadgwick(1.0/256, beta, start)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < steps; i++ {
			if _, err := f.Update(zeroGyro, up, north); err != nil {
				t.Fatal(err)
			}
		}
		e := degreesFromIdentity(f.Quaternion())
		if e > prev+1e-9 {
			t.Errorf("beta %.2f: error %.4f° worse than smaller gain (%.4f°)", beta, e, prev)
		}
		prev = e
	}
}

func TestKnownValueIMU(t *testing.T) {
	f := DefaultMadgwick[float64]()
	accel := Vec3(-3.102632460623745e-02, 3.049616351072091e-02, 9.721632321637426e-01)
	for i := 1; i < 2000; i++ {
		if _, err := f.UpdateIMU(zeroGyro, accel); err != nil {
			t.Fatal(err)
		}
	}

	// The reference vector is published as the earth-to-sensor rotation.
	want := Quaternion[float64]{
		W: 0.999750219795400,
		X: -0.015666683681890,
		Y: -0.015939041422266,
		Z: -2.661844518290388e-18,
	}.Conjugate()
	if a := want.Angle(f.Quaternion()); a > 5e-4 {
		t.Errorf("orientation %v is %g rad from reference %v", f.Quaternion(), a, want)
	}

	// Predicted gravity matches the measurement at rest.
	a, _ := accel.Normalize()
	if g := f.Quaternion().RotateInverse(up); !closeVec(g, a, 2e-3) {
		t.Errorf("predicted gravity %v, measured %v", g, a)
	}
}

func TestLatchedMagReference(t *testing.T) {
	f, err := NewMadgwick(1.0/256, 0.1, Identity[float64](), WithLatchedMagReference[float64]())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Update(zeroGyro, up, Vec3(1.0, 0, 1)); err != nil {
		t.Fatal(err)
	}
	mode, bx, bz, ok := f.MagReference()
	if mode != MagReferenceLatched || !ok {
		t.Fatalf("reference not latched: %v %v", mode, ok)
	}
	if math.Abs(bx-math.Sqrt2/2) > 1e-9 || math.Abs(bz-math.Sqrt2/2) > 1e-9 {
		t.Errorf("latched b = (%v, %v)", bx, bz)
	}

	if _, err := f.Update(zeroGyro, up, Vec3(1.0, 0, -3)); err != nil {
		t.Fatal(err)
	}
	if _, bx2, bz2, _ := f.MagReference(); bx2 != bx || bz2 != bz {
		t.Errorf("latched reference changed to (%v, %v)", bx2, bz2)
	}

	if err := f.Reset(Identity[float64]()); err != nil {
		t.Fatal(err)
	}
	if _, _, _, ok := f.MagReference(); ok {
		t.Error("Reset kept latched reference")
	}
}

func TestFixedMagReference(t *testing.T) {
	f, err := NewMadgwick(1.0/256, 0.1, Identity[float64](), WithMagReference(2.0, 0))
	if err != nil {
		t.Fatal(err)
	}
	mode, bx, bz, ok := f.MagReference()
	if mode != MagReferenceFixed || !ok || bx != 1 || bz != 0 {
		t.Errorf("fixed reference = %v (%v, %v) %v", mode, bx, bz, ok)
	}
	// A field matching the reference is already aligned.
	if q, err := f.Update(zeroGyro, up, Vec3(5.0, 0, 0)); err != nil || q != Identity[float64]() {
		t.Errorf("aligned update = %v, %v", q, err)
	}
	if err := f.Reset(FromAxisAngle(up, 1)); err != nil {
		t.Fatal(err)
	}
	if _, _, _, ok := f.MagReference(); !ok {
		t.Error("Reset dropped fixed reference")
	}

	for _, b := range [][2]float64{{0, 0}, {math.NaN(), 1}} {
		if _, err := NewMadgwick(1.0/256, 0.1, Identity[float64](), WithMagReference(b[0], b[1])); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("WithMagReference(%v): err = %v", b, err)
		}
	}
}

func TestResetValidates(t *testing.T) {
	f := DefaultMadgwick[float64]()
	if err := f.Reset(Quaternion[float64]{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Reset(0): err = %v", err)
	}
	if f.Quaternion() != Identity[float64]() {
		t.Error("failed Reset changed state")
	}
}

func TestSinglePrecision(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	f := DefaultMadgwick[float32]()
	for i := 0; i < 2000; i++ {
		g, a, m := randomVec(rng, 1), randomVec(rng, 1), randomVec(rng, 1)
		q, err := f.Update(
			Vec3(float32(g.X), float32(g.Y), float32(g.Z)),
			Vec3(float32(a.X), float32(a.Y), float32(a.Z)),
			Vec3(float32(m.X), float32(m.Y), float32(m.Z)),
		)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if d := math.Abs(float64(q.Norm()) - 1); d > 1e-5 {
			t.Fatalf("step %d: |q| - 1 = %g", i, d)
		}
	}

	g, err := NewMadgwick[float32](1.0/256, 0.1, FromAxisAngle(Vec3[float32](1, 0, 0), 0.5))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2000; i++ {
		if _, err := g.Update(Vec3[float32](0, 0, 0), Vec3[float32](0, 0, 1), Vec3[float32](1, 0, 0)); err != nil {
			t.Fatal(err)
		}
	}
	if a := Identity[float32]().Angle(g.Quaternion()); a > 0.02 {
		t.Errorf("float32 filter ended %v rad from identity", a)
	}
}
