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
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/spectralmodel/plasma/atom"
)

// phiSpecies lists the ionization transitions present in the ion list, as
// the produced ion of each adjacent pair, in ion-list order. Rows of the
// Saha factor and delta tables align with this list.
func phiSpecies(ions []atom.Species) []atom.Species {
	present := make(map[atom.Species]bool, len(ions))
	for _, sp := range ions {
		present[sp] = true
	}
	var rows []atom.Species
	for _, sp := range ions {
		if sp.IonNumber == 0 {
			continue
		}
		if present[atom.Species{AtomicNumber: sp.AtomicNumber, IonNumber: sp.IonNumber - 1}] {
			rows = append(rows, sp)
		}
	}
	return rows
}

// PhiSpecies exposes the Saha-factor row keys as a property.
func PhiSpecies() Property {
	return Property{
		Provides: []string{"phi_species"},
		Inputs:   []string{"ions"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			ions, ok := inputs[0].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "phi_species",
					Input: "ions", Reason: "not an ion list"}
			}
			return []interface{}{phiSpecies(ions)}, nil
		},
	}
}

// PhiGeneral is the general Saha factor for each adjacent ion pair per
// cell, defined so that n_upper·n_e/n_lower = Φ in LTE:
//
//	Φ = 2·(Z_upper/Z_lower)·g_electron·exp(-β_rad·χ)
//
// with Z the partition functions and χ the ionization energy of the pair.
func PhiGeneral() Property {
	return Property{
		Provides: []string{"phi_general"},
		Inputs:   []string{"g_electron", "beta_rad", "partition_function", "ionization_data", "ions", "phi_species"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			gElectron, err := asCellArray("phi_general", "g_electron", inputs[0], 0)
			if err != nil {
				return nil, err
			}
			nCells := len(gElectron)
			beta, err := asCellArray("phi_general", "beta_rad", inputs[1], nCells)
			if err != nil {
				return nil, err
			}
			ions, ok := inputs[4].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "phi_general",
					Input: "ions", Reason: "not an ion list"}
			}
			z, err := asTable("phi_general", "partition_function", inputs[2], len(ions), nCells)
			if err != nil {
				return nil, err
			}
			chi, ok := inputs[3].(map[atom.Species]float64)
			if !ok {
				return nil, &InvalidInputError{Property: "phi_general",
					Input: "ionization_data", Reason: "not an ionization energy table"}
			}
			rows, ok := inputs[5].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "phi_general",
					Input: "phi_species", Reason: "not an ion list"}
			}
			idx := ionIndex(ions)
			phi := sparse.ZerosDense(len(rows), nCells)
			for i, sp := range rows {
				chiIon, ok := chi[sp]
				if !ok {
					return nil, &InvalidInputError{Property: "phi_general",
						Input:  "ionization_data",
						Reason: fmt.Sprintf("missing ionization energy for %v", sp)}
				}
				upper := idx[sp]
				lower := idx[atom.Species{AtomicNumber: sp.AtomicNumber, IonNumber: sp.IonNumber - 1}]
				for j := 0; j < nCells; j++ {
					phi.Set(2.*z.Get(upper, j)/z.Get(lower, j)*gElectron[j]*
						math.Exp(-beta[j]*chiIon), i, j)
				}
			}
			return []interface{}{phi}, nil
		},
	}
}

// PhiSahaLTE uses the general Saha factor directly as the ionization
// balance coefficient.
func PhiSahaLTE() Property {
	return Property{
		Provides: []string{"phi"},
		Inputs:   []string{"phi_general"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			phi, err := asTable("phi", "phi_general", inputs[0], 0, 0)
			if err != nil {
				return nil, err
			}
			return []interface{}{phi}, nil
		},
	}
}

// deltaCase enumerates the four branches of the radiation field correction
// of Mazzali & Lucy (1993): the radiation field is either near-thermal
// (T_e/T_rad at or above the configured ratio) or dilute, and the ion's
// ionization energy lies either at-or-above or below the χ₀ reference
// energy. The boundary convention is that equality selects the thermal and
// the at-or-above branches.
type deltaCase int

const (
	deltaThermalAboveChi0 deltaCase = iota
	deltaThermalBelowChi0
	deltaDiluteAboveChi0
	deltaDiluteBelowChi0
)

func classifyDelta(teRatio, thermalRatio, chi, chi0 float64) deltaCase {
	thermal := teRatio >= thermalRatio
	above := chi >= chi0
	switch {
	case thermal && above:
		return deltaThermalAboveChi0
	case thermal && !above:
		return deltaThermalBelowChi0
	case !thermal && above:
		return deltaDiluteAboveChi0
	default:
		return deltaDiluteBelowChi0
	}
}

// deltaValue evaluates one branch of the correction. factorA is
// T_e/(b·w·T_rad) with b the departure coefficient. In the thermal
// branches the exponential factors are evaluated at β_e = β_rad, to which
// the dilute branches reduce continuously as T_e → T_rad.
func deltaValue(c deltaCase, factorA, chi, chi0, betaRad, betaElectron float64) float64 {
	switch c {
	case deltaThermalAboveChi0:
		return factorA
	case deltaThermalBelowChi0:
		return 1 - math.Exp(chi*betaRad-chi0*betaRad) +
			factorA*math.Exp(chi*betaRad-chi0*betaRad)
	case deltaDiluteAboveChi0:
		return factorA * math.Exp(chi*(betaRad-betaElectron))
	default: // deltaDiluteBelowChi0
		return 1 - math.Exp(chi*betaRad-chi0*betaRad) +
			factorA*math.Exp(chi*betaRad-chi0*betaElectron)
	}
}

// RadiationFieldCorrection is the delta correction applied to the nebular
// Saha factor (Mazzali & Lucy 1993, eqs. 15 and 20), per adjacent ion pair
// per cell. The χ₀ reference energy is the ionization energy of the
// configured chi_0_species; thermalRatio sets the T_e/T_rad value at or
// above which the radiation field is treated as thermal. If override is
// non-nil, that value is used everywhere instead.
func RadiationFieldCorrection(thermalRatio float64, override *float64) Property {
	return Property{
		Provides: []string{"delta"},
		Inputs: []string{"w", "ionization_data", "beta_rad", "t_electron",
			"t_rad", "beta_electron", "phi_species", "chi_0_species"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			w, err := asCellArray("delta", "w", inputs[0], 0)
			if err != nil {
				return nil, err
			}
			nCells := len(w)
			chi, ok := inputs[1].(map[atom.Species]float64)
			if !ok {
				return nil, &InvalidInputError{Property: "delta",
					Input: "ionization_data", Reason: "not an ionization energy table"}
			}
			betaRad, err := asCellArray("delta", "beta_rad", inputs[2], nCells)
			if err != nil {
				return nil, err
			}
			tElectron, err := asCellArray("delta", "t_electron", inputs[3], nCells)
			if err != nil {
				return nil, err
			}
			tRad, err := asCellArray("delta", "t_rad", inputs[4], nCells)
			if err != nil {
				return nil, err
			}
			betaElectron, err := asCellArray("delta", "beta_electron", inputs[5], nCells)
			if err != nil {
				return nil, err
			}
			rows, ok := inputs[6].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "delta",
					Input: "phi_species", Reason: "not an ion list"}
			}
			chi0Species, ok := inputs[7].(atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "delta",
					Input: "chi_0_species", Reason: "not a species"}
			}
			chi0, ok := chi[chi0Species]
			if !ok {
				return nil, &InvalidInputError{Property: "delta",
					Input:  "chi_0_species",
					Reason: fmt.Sprintf("no ionization energy for %v in the selected species", chi0Species)}
			}
			delta := sparse.ZerosDense(len(rows), nCells)
			for i, sp := range rows {
				chiIon, ok := chi[sp]
				if !ok {
					return nil, &InvalidInputError{Property: "delta",
						Input:  "ionization_data",
						Reason: fmt.Sprintf("missing ionization energy for %v", sp)}
				}
				for j := 0; j < nCells; j++ {
					if override != nil {
						delta.Set(*override, i, j)
						continue
					}
					// Departure coefficient b = 1/w.
					b := 1. / w[j]
					factorA := tElectron[j] / (b * w[j] * tRad[j])
					c := classifyDelta(tElectron[j]/tRad[j], thermalRatio, chiIon, chi0)
					delta.Set(deltaValue(c, factorA, chiIon, chi0, betaRad[j], betaElectron[j]), i, j)
				}
			}
			return []interface{}{delta}, nil
		},
	}
}

// PhiSahaNebular is the nebular ionization balance coefficient of Mazzali
// & Lucy (1993, eq. 14): the general Saha factor corrected for the dilute
// radiation field,
//
//	Φ_neb = w·(δ·ζ + w·(1-ζ))·√(T_e/T_rad)·Φ_general
//
// with ζ interpolated from the recombination tables at T_rad. Species
// missing from the ζ tables fall back to ζ = 1, with a diagnostic.
func PhiSahaNebular(log logrus.FieldLogger) Property {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return Property{
		Provides: []string{"phi"},
		Inputs:   []string{"phi_general", "t_rad", "w", "zeta_data", "t_electron", "delta", "phi_species"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			rows, ok := inputs[6].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "phi",
					Input: "phi_species", Reason: "not an ion list"}
			}
			general, err := asTable("phi", "phi_general", inputs[0], len(rows), 0)
			if err != nil {
				return nil, err
			}
			nCells := general.GetShape()[1]
			tRad, err := asCellArray("phi", "t_rad", inputs[1], nCells)
			if err != nil {
				return nil, err
			}
			w, err := asCellArray("phi", "w", inputs[2], nCells)
			if err != nil {
				return nil, err
			}
			zeta, ok := inputs[3].(*atom.ZetaTable)
			if !ok {
				return nil, &InvalidInputError{Property: "phi",
					Input: "zeta_data", Reason: "not a zeta table"}
			}
			tElectron, err := asCellArray("phi", "t_electron", inputs[4], nCells)
			if err != nil {
				return nil, err
			}
			delta, err := asTable("phi", "delta", inputs[5], len(rows), nCells)
			if err != nil {
				return nil, err
			}
			phi := sparse.ZerosDense(len(rows), nCells)
			for i, sp := range rows {
				missing := false
				for j := 0; j < nCells; j++ {
					z, ok := zeta.Interpolate(sp, tRad[j])
					if !ok {
						z = 1
						missing = true
					}
					phi.Set(w[j]*(delta.Get(i, j)*z+w[j]*(1-z))*
						math.Sqrt(tElectron[j]/tRad[j])*general.Get(i, j), i, j)
				}
				if missing {
					log.Warnf("plasma: no zeta data for %v; using 1", sp)
				}
			}
			return []interface{}{phi}, nil
		},
	}
}

// ConvergenceOptions tunes the ion population–electron density fixed-point
// solver. The zero value selects the documented defaults.
type ConvergenceOptions struct {
	// Tolerance is the largest acceptable relative change of the electron
	// density between iterations. Default 1e-6.
	Tolerance float64
	// MaxIterations bounds the fixed-point iteration. Default 100.
	MaxIterations int
	// Damping mixes the new electron density iterate with the old one:
	// n_e ← damping·new + (1-damping)·old. Default 0.5.
	Damping float64
	// Retries is the number of additional solver attempts made with a
	// progressively relaxed tolerance after a convergence failure.
	// Default 2.
	Retries uint64
	// RelaxFactor multiplies the tolerance on each retry. Default 10.
	RelaxFactor float64
	// InitialElectronDensity optionally seeds the iteration; by default
	// every element is assumed singly ionized.
	InitialElectronDensity []float64
}

func (o ConvergenceOptions) withDefaults() ConvergenceOptions {
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-6
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 100
	}
	if o.Damping <= 0 || o.Damping > 1 {
		o.Damping = 0.5
	}
	if o.RelaxFactor <= 1 {
		o.RelaxFactor = 10
	}
	return o
}

// ionLadder relates one element's rows across the tables involved in the
// ionization balance.
type ionLadder struct {
	elementRow int   // row in number_density
	ionRows    []int // rows in the ion tables, ascending charge
	charges    []int
	phiRows    []int // rows in phi for the transition into ionRows[k], k ≥ 1
}

func ionLadders(atoms []int, ions []atom.Species, phiRows []atom.Species) ([]ionLadder, error) {
	phiIdx := make(map[atom.Species]int, len(phiRows))
	for i, sp := range phiRows {
		phiIdx[sp] = i
	}
	byElement := make(map[int][]int) // atomic number → ion rows
	for i, sp := range ions {
		byElement[sp.AtomicNumber] = append(byElement[sp.AtomicNumber], i)
	}
	ladders := make([]ionLadder, len(atoms))
	for ei, z := range atoms {
		rows := byElement[z]
		if len(rows) == 0 {
			return nil, fmt.Errorf("plasma: element %d has no levels in the atomic dataset", z)
		}
		sort.Slice(rows, func(a, b int) bool {
			return ions[rows[a]].IonNumber < ions[rows[b]].IonNumber
		})
		l := ionLadder{elementRow: ei, ionRows: rows}
		for k, r := range rows {
			charge := ions[r].IonNumber
			l.charges = append(l.charges, charge)
			if k == 0 {
				continue
			}
			if charge != ions[rows[k-1]].IonNumber+1 {
				return nil, fmt.Errorf("plasma: element %d has a gap in its ionization ladder at charge %d", z, charge)
			}
			pi, ok := phiIdx[ions[r]]
			if !ok {
				return nil, fmt.Errorf("plasma: no Saha factor for %v", ions[r])
			}
			l.phiRows = append(l.phiRows, pi)
		}
		ladders[ei] = l
	}
	return ladders, nil
}

// IonNumberDensity solves the coupled ionization balance: the Saha ratios
// n_upper/n_lower = Φ/n_e for every element's ion ladder, subject to
// number conservation within each element and overall charge neutrality.
// Because n_e appears in the ratios, the solution is found by fixed-point
// iteration with damping; on non-convergence the solve is retried with a
// relaxed tolerance before a ConvergenceError is surfaced.
//
// This is the one physically cyclic calculation in the graph; it provides
// both the ion number densities and the electron density so that the graph
// itself stays acyclic.
func IonNumberDensity(opts ConvergenceOptions, log logrus.FieldLogger) Property {
	o := opts.withDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}
	return Property{
		Provides: []string{"ion_number_density", "electron_densities"},
		Inputs:   []string{"phi", "partition_function", "number_density", "ions", "phi_species", "selected_atoms"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			ions, ok := inputs[3].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "ion_number_density",
					Input: "ions", Reason: "not an ion list"}
			}
			phiRows, ok := inputs[4].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "ion_number_density",
					Input: "phi_species", Reason: "not an ion list"}
			}
			atoms, ok := inputs[5].([]int)
			if !ok {
				return nil, &InvalidInputError{Property: "ion_number_density",
					Input: "selected_atoms", Reason: "not a species selector"}
			}
			phi, err := asTable("ion_number_density", "phi", inputs[0], len(phiRows), 0)
			if err != nil {
				return nil, err
			}
			nCells := phi.GetShape()[1]
			if _, err := asTable("ion_number_density", "partition_function", inputs[1], len(ions), nCells); err != nil {
				return nil, err
			}
			nElement, err := asTable("ion_number_density", "number_density", inputs[2], len(atoms), nCells)
			if err != nil {
				return nil, err
			}
			ladders, err := ionLadders(atoms, ions, phiRows)
			if err != nil {
				return nil, err
			}
			if o.InitialElectronDensity != nil && len(o.InitialElectronDensity) != nCells {
				return nil, &InvalidInputError{Property: "ion_number_density",
					Input: "initial electron density", Reason: "cell-index length mismatch"}
			}

			var nIon *sparse.DenseArray
			var nE []float64
			tol := o.Tolerance
			err = backoff.RetryNotify(
				func() error {
					var err error
					nIon, nE, err = solveIonizationBalance(phi, nElement, ladders, len(ions), o, tol)
					return err
				},
				backoff.WithMaxRetries(&backoff.ZeroBackOff{}, o.Retries),
				func(err error, _ time.Duration) {
					tol *= o.RelaxFactor
					log.Warnf("plasma: %v; retrying with tolerance %g", err, tol)
				},
			)
			if err != nil {
				return nil, err
			}
			return []interface{}{nIon, nE}, nil
		},
	}
}

// solveIonizationBalance runs the damped fixed-point iteration for all
// cells simultaneously. The returned electron density is the charge sum of
// the returned ion densities, so charge neutrality holds exactly for the
// returned pair.
func solveIonizationBalance(phi, nElement *sparse.DenseArray, ladders []ionLadder,
	nIons int, o ConvergenceOptions, tolerance float64) (*sparse.DenseArray, []float64, error) {

	nCells := phi.GetShape()[1]

	// Initial guess: every element singly ionized.
	nE := make([]float64, nCells)
	if o.InitialElectronDensity != nil {
		copy(nE, o.InitialElectronDensity)
	} else {
		for j := 0; j < nCells; j++ {
			var sum float64
			for _, l := range ladders {
				sum += nElement.Get(l.elementRow, j)
			}
			nE[j] = sum
		}
	}

	nIon := sparse.ZerosDense(nIons, nCells)
	newNE := make([]float64, nCells)
	for it := 1; it <= o.MaxIterations; it++ {
		for j := 0; j < nCells; j++ {
			newNE[j] = 0
			for _, l := range ladders {
				// Cumulative Saha ratios down the ladder, normalized so
				// the stages sum to the elemental number density.
				cum, sum := 1., 1.
				fracs := make([]float64, len(l.ionRows))
				fracs[0] = 1
				for k := 1; k < len(l.ionRows); k++ {
					cum *= phi.Get(l.phiRows[k-1], j) / nE[j]
					fracs[k] = cum
					sum += cum
				}
				nZ := nElement.Get(l.elementRow, j)
				for k, r := range l.ionRows {
					n := nZ * fracs[k] / sum
					nIon.Set(n, r, j)
					newNE[j] += float64(l.charges[k]) * n
				}
			}
		}
		var residual float64
		for j := 0; j < nCells; j++ {
			r := math.Abs(newNE[j]-nE[j]) / nE[j]
			if r > residual {
				residual = r
			}
		}
		if residual < tolerance {
			// Charge neutrality holds exactly between the returned ion
			// densities and electron density.
			out := make([]float64, nCells)
			copy(out, newNE)
			return nIon, out, nil
		}
		for j := 0; j < nCells; j++ {
			nE[j] = o.Damping*newNE[j] + (1-o.Damping)*nE[j]
		}
		if it == o.MaxIterations {
			last := make([]float64, nCells)
			copy(last, nE)
			return nil, nil, &ConvergenceError{
				Iterations: it,
				Tolerance:  tolerance,
				Residual:   residual,
				NElectron:  last,
			}
		}
	}
	// Unreachable: the loop always returns.
	return nil, nil, &ConvergenceError{Tolerance: tolerance}
}
