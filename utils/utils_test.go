package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestGuard(t *testing.T) {
	cleaned := 0
	func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
	}()
	test.That(t, cleaned, test.ShouldEqual, 1)

	func() {
		guard := NewGuard(func() { cleaned++ })
		defer guard.OnFail()
		guard.Success()
	}()
	test.That(t, cleaned, test.ShouldEqual, 1)
}

func TestGetenv(t *testing.T) {
	t.Setenv("PICKPLACE_TEST_INT", "7")
	t.Setenv("PICKPLACE_TEST_BAD", "seven")
	test.That(t, GetenvInt("PICKPLACE_TEST_INT", 1), test.ShouldEqual, 7)
	test.That(t, GetenvInt("PICKPLACE_TEST_BAD", 1), test.ShouldEqual, 1)
	test.That(t, GetenvInt("PICKPLACE_TEST_UNSET", 3), test.ShouldEqual, 3)
}

func TestMath(t *testing.T) {
	test.That(t, DegToRad(90), test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, Clamp(5, -1, 1), test.ShouldEqual, 1.)
	test.That(t, IsFinite(1, 2), test.ShouldBeTrue)
	test.That(t, IsFinite(1, math.NaN()), test.ShouldBeFalse)
	test.That(t, ScaleOrDefault(0), test.ShouldEqual, 1.)
	test.That(t, ScaleOrDefault(0.5), test.ShouldEqual, 0.5)
}
