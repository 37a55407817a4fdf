/*
Copyright © 2026 the Plasma authors.
This file is part of Plasma.

Plasma is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Plasma is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Plasma.  If not, see <http://www.gnu.org/licenses/>.
*/

package plasma

import (
	"testing"

	"github.com/ctessum/sparse"

	"github.com/spectralmodel/plasma/atom"
)

func heliumIons() ([]atom.Species, []atom.Species) {
	ions := ionsOf(atom.TestData().Levels)
	return ions, phiSpecies(ions)
}

func TestPhiSpecies(t *testing.T) {
	_, rows := heliumIons()
	want := []atom.Species{
		{AtomicNumber: 2, IonNumber: 1},
		{AtomicNumber: 2, IonNumber: 2},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %v, want %v", rows, want)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d: got %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestPhiGeneral(t *testing.T) {
	const (
		tolerance = 2.e-2
		want      = 3.92e9 // Φ for He I → He II at 10⁴ K [1/cm³]
	)
	levels := atom.TestData().Levels
	ions, rows := heliumIons()
	beta := calculateOne(t, BetaRadiation(), []float64{10000.}).([]float64)
	gE := calculateOne(t, GElectron(), beta).([]float64)
	bf := calculateOne(t, LevelBoltzmannFactorLTE(), levels, beta).(*sparse.DenseArray)
	z := calculateOne(t, PartitionFunction(), levels, bf, ions).(*sparse.DenseArray)

	phi := calculateOne(t, PhiGeneral(), gE, beta, z,
		atom.TestData().IonizationEnergy, ions, rows).(*sparse.DenseArray)
	if different(phi.Get(0, 0), want, tolerance) {
		t.Errorf("Φ(He II): got %g, want %g", phi.Get(0, 0), want)
	}
	// The second ionization is much harder at this temperature.
	if phi.Get(1, 0) >= phi.Get(0, 0) {
		t.Errorf("Φ(He III) = %g not below Φ(He II) = %g", phi.Get(1, 0), phi.Get(0, 0))
	}
}

// The four branches of the radiation field correction must join
// continuously: the dilute formulas evaluated at β_e = β_rad equal the
// thermal ones, and at χ = χ₀ the below-χ₀ formulas equal the above-χ₀
// ones.
func TestDeltaBranches(t *testing.T) {
	const (
		a    = 0.45 // T_e/(b·w·T_rad)
		chi  = 4.e-11
		chi0 = 3.e-11
		bR   = 7.e11
		bE   = 8.e11
	)
	if deltaValue(deltaThermalAboveChi0, a, chi, chi0, bR, bR) !=
		deltaValue(deltaDiluteAboveChi0, a, chi, chi0, bR, bR) {
		t.Error("above-χ₀ branches disagree at β_e = β_rad")
	}
	if deltaValue(deltaThermalBelowChi0, a, chi0, chi, bR, bR) !=
		deltaValue(deltaDiluteBelowChi0, a, chi0, chi, bR, bR) {
		t.Error("below-χ₀ branches disagree at β_e = β_rad")
	}
	if different(deltaValue(deltaDiluteAboveChi0, a, chi, chi, bR, bE),
		deltaValue(deltaDiluteBelowChi0, a, chi, chi, bR, bE), 1.e-12) {
		t.Error("dilute branches disagree at χ = χ₀")
	}

	// Equality selects the thermal and the at-or-above branches.
	if got := classifyDelta(1., 1., chi, chi0); got != deltaThermalAboveChi0 {
		t.Errorf("T_e/T_rad at threshold: got case %d", got)
	}
	if got := classifyDelta(0.9, 1., chi0, chi0); got != deltaDiluteAboveChi0 {
		t.Errorf("χ = χ₀: got case %d", got)
	}
	if got := classifyDelta(0.9, 1., chi0, chi); got != deltaDiluteBelowChi0 {
		t.Errorf("dilute below χ₀: got case %d", got)
	}
	if got := classifyDelta(1.1, 1., chi0, chi); got != deltaThermalBelowChi0 {
		t.Errorf("thermal below χ₀: got case %d", got)
	}
}

func TestRadiationFieldCorrection(t *testing.T) {
	const tolerance = 1.e-12
	_, rows := heliumIons()
	chi := atom.TestData().IonizationEnergy
	chi0Species := atom.Species{AtomicNumber: 2, IonNumber: 2}
	w := []float64{0.5}
	tRad := []float64{10000.}
	tE := []float64{9000.}
	betaR := calculateOne(t, BetaRadiation(), tRad).([]float64)
	betaE := calculateOne(t, BetaElectron(), tE).([]float64)

	delta := calculateOne(t, RadiationFieldCorrection(1., nil),
		w, chi, betaR, tE, tRad, betaE, rows, chi0Species).(*sparse.DenseArray)
	// He II → He III sits exactly at χ₀, in the dilute above-χ₀ branch:
	// δ = T_e/(b·w·T_rad)·exp(χ(β_rad - β_e)) with b = 1/w.
	want := tE[0] / tRad[0] * deltaValue(deltaDiluteAboveChi0, 1.,
		chi[chi0Species], chi[chi0Species], betaR[0], betaE[0])
	if different(delta.Get(1, 0), want, tolerance) {
		t.Errorf("δ(He III): got %g, want %g", delta.Get(1, 0), want)
	}

	override := 1.
	fixed := calculateOne(t, RadiationFieldCorrection(1., &override),
		w, chi, betaR, tE, tRad, betaE, rows, chi0Species).(*sparse.DenseArray)
	for i := range rows {
		if fixed.Get(i, 0) != 1. {
			t.Errorf("overridden δ row %d: got %g, want 1", i, fixed.Get(i, 0))
		}
	}

	missing := atom.Species{AtomicNumber: 26, IonNumber: 1}
	if _, err := RadiationFieldCorrection(1., nil).Calculate(
		w, chi, betaR, tE, tRad, betaE, rows, missing); err == nil {
		t.Error("χ₀ species without an ionization energy did not fail")
	}
}

// In an undiluted field with δ = 1 and T_e = T_rad the nebular coefficient
// must reduce to the general Saha factor, whatever the zeta values.
func TestPhiSahaNebularReducesToGeneral(t *testing.T) {
	_, rows := heliumIons()
	nCells := 2
	general := sparse.ZerosDense(len(rows), nCells)
	for i := range rows {
		for j := 0; j < nCells; j++ {
			general.Set(1.e9/float64(i+1), i, j)
		}
	}
	tRad := []float64{10000., 15000.}
	ones := []float64{1., 1.}
	delta := sparse.ZerosDense(len(rows), nCells)
	for i := range delta.Elements {
		delta.Elements[i] = 1.
	}

	// One species deliberately missing from the zeta tables: the ζ = 1
	// fallback must leave the reduction intact.
	zeta := &atom.ZetaTable{
		Temperature: []float64{5000, 40000},
		Zeta: map[atom.Species][]float64{
			{AtomicNumber: 2, IonNumber: 1}: {0.6, 0.7},
		},
	}
	phi := calculateOne(t, PhiSahaNebular(nil),
		general, tRad, ones, zeta, tRad, delta, rows).(*sparse.DenseArray)
	for i := range rows {
		for j := 0; j < nCells; j++ {
			if different(phi.Get(i, j), general.Get(i, j), 1.e-12) {
				t.Errorf("row %d cell %d: got %g, want %g",
					i, j, phi.Get(i, j), general.Get(i, j))
			}
		}
	}
}

// ionizationInputs builds a one-cell helium ionization balance problem
// where the second ionization is negligible.
func ionizationInputs() []interface{} {
	ions, rows := heliumIons()
	phi := sparse.ZerosDense(len(rows), 1)
	phi.Set(1.e9, 0, 0)
	phi.Set(1.e-6, 1, 0)
	z := sparse.ZerosDense(len(ions), 1) // shape-checked only
	nElement := sparse.ZerosDense(1, 1)
	nElement.Set(1.e9, 0, 0)
	return []interface{}{phi, z, nElement, ions, rows, []int{2}}
}

func TestIonNumberDensity(t *testing.T) {
	const tolerance = 1.e-9
	out, err := IonNumberDensity(ConvergenceOptions{}, nil).Calculate(ionizationInputs()...)
	if err != nil {
		t.Fatal(err)
	}
	nIon := out[0].(*sparse.DenseArray)
	nE := out[1].([]float64)
	ions, _ := heliumIons()

	// Number conservation within the element.
	var sum float64
	for r := range ions {
		sum += nIon.Get(r, 0)
	}
	if different(sum, 1.e9, 1.e-12) {
		t.Errorf("ion stages sum to %g, want 1e9", sum)
	}
	// Exact charge neutrality between the returned pair.
	var charge float64
	for r, sp := range ions {
		charge += float64(sp.IonNumber) * nIon.Get(r, 0)
	}
	if charge != nE[0] {
		t.Errorf("charge sum %g does not equal electron density %g", charge, nE[0])
	}
	// With Φ equal to the elemental density the fixed point is the golden
	// ratio fraction, n_e/n = (√5-1)/2.
	if different(nE[0]/1.e9, 0.6180339887, tolerance) {
		t.Errorf("ionization fraction: got %g, want 0.618", nE[0]/1.e9)
	}
	if nIon.Get(2, 0) > 1. {
		t.Errorf("He III population %g not negligible", nIon.Get(2, 0))
	}
}

func TestIonNumberDensityConvergenceError(t *testing.T) {
	opts := ConvergenceOptions{Tolerance: 1.e-15, MaxIterations: 1}
	_, err := IonNumberDensity(opts, nil).Calculate(ionizationInputs()...)
	cErr, ok := err.(*ConvergenceError)
	if !ok {
		t.Fatalf("got %v, want a convergence error", err)
	}
	if cErr.Iterations != 1 || cErr.Residual <= cErr.Tolerance {
		t.Errorf("unexpected convergence report: %+v", cErr)
	}
	if len(cErr.NElectron) != 1 || cErr.NElectron[0] <= 0 {
		t.Errorf("last iterate not retained: %v", cErr.NElectron)
	}
}

// An over-tight tolerance must be rescued by the relaxing retries.
func TestIonNumberDensityRetry(t *testing.T) {
	opts := ConvergenceOptions{
		Tolerance:     1.e-30,
		MaxIterations: 2,
		Retries:       8,
		RelaxFactor:   1.e8,
	}
	out, err := IonNumberDensity(opts, nil).Calculate(ionizationInputs()...)
	if err != nil {
		t.Fatal(err)
	}
	if nE := out[1].([]float64); nE[0] <= 0 {
		t.Errorf("electron density %g after retry", nE[0])
	}
}

func TestIonLadderGap(t *testing.T) {
	ions := []atom.Species{
		{AtomicNumber: 2, IonNumber: 0},
		{AtomicNumber: 2, IonNumber: 2}, // stage 1 missing
	}
	if _, err := ionLadders([]int{2}, ions, phiSpecies(ions)); err == nil {
		t.Error("gapped ionization ladder did not fail")
	}
}
