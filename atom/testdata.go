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

package atom

import "math"

// Physical constants [CGS] for deriving line quantities in the test
// dataset.
const (
	hPlanck     = 6.62607004e-27 // erg·s
	cLight      = 2.99792458e10  // cm/s
	mElectron   = 9.10938356e-28 // g
	eCharge     = 4.80320425e-10 // esu
	ergPerEV    = 1.6021766208e-12
	gramsPerAMU = 1.660539040e-24
)

// newLine builds a Line from level energies [erg], statistical weights and
// the absorption oscillator strength, deriving the frequency, wavelength
// and Einstein coefficients from the standard relations.
func newLine(z, ion, lower, upper int, eLower, eUpper, gLower, gUpper, fLu float64) Line {
	nu := (eUpper - eLower) / hPlanck
	bLu := 4 * math.Pi / (hPlanck * nu) * math.Pi * eCharge * eCharge / (mElectron * cLight) * fLu
	bUl := gLower / gUpper * bLu
	aUl := 2 * hPlanck * nu * nu * nu / (cLight * cLight) * bUl
	return Line{
		AtomicNumber:       z,
		IonNumber:          ion,
		LevelLower:         lower,
		LevelUpper:         upper,
		Nu:                 nu,
		Wavelength:         cLight / nu,
		OscillatorStrength: fLu,
		EinsteinA:          aUl,
		EinsteinBul:        bUl,
		EinsteinBlu:        bLu,
	}
}

// TestData returns a minimal helium dataset: two levels each for He I and
// He II, the bare He III ground state, one line per bound ion, and a small
// zeta table. It is intended for tests.
func TestData() *Data {
	const (
		heI0  = 0.
		heI1  = 20.62 * ergPerEV
		heII0 = 0.
		heII1 = 40.81 * ergPerEV
	)
	return &Data{
		Levels: []Level{
			{AtomicNumber: 2, IonNumber: 0, LevelNumber: 0, Energy: heI0, G: 1, Metastable: true},
			{AtomicNumber: 2, IonNumber: 0, LevelNumber: 1, Energy: heI1, G: 3},
			{AtomicNumber: 2, IonNumber: 1, LevelNumber: 0, Energy: heII0, G: 2, Metastable: true},
			{AtomicNumber: 2, IonNumber: 1, LevelNumber: 1, Energy: heII1, G: 8},
			{AtomicNumber: 2, IonNumber: 2, LevelNumber: 0, Energy: 0, G: 1, Metastable: true},
		},
		Lines: []Line{
			newLine(2, 0, 0, 1, heI0, heI1, 1, 3, 0.276),
			newLine(2, 1, 0, 1, heII0, heII1, 2, 8, 0.4162),
		},
		IonizationEnergy: map[Species]float64{
			{AtomicNumber: 2, IonNumber: 1}: 24.587 * ergPerEV,
			{AtomicNumber: 2, IonNumber: 2}: 54.418 * ergPerEV,
		},
		AtomicMass: map[int]float64{
			2: 4.002602 * gramsPerAMU,
		},
		Zeta: &ZetaTable{
			Temperature: []float64{5000, 10000, 20000, 40000},
			Zeta: map[Species][]float64{
				{AtomicNumber: 2, IonNumber: 1}: {0.54, 0.60, 0.66, 0.72},
				{AtomicNumber: 2, IonNumber: 2}: {0.90, 0.92, 0.95, 0.97},
			},
		},
	}
}
