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
	"math"

	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/spectralmodel/plasma/atom"
)

// StimulatedEmissionFactor is 1 - (g_lower·n_upper)/(g_upper·n_lower) per
// line per cell. A negative factor means the level populations are
// inverted (a maser); the factor is clipped to zero and the occurrence
// counted through the supplied counter, but the calculation proceeds.
// Lines with an empty lower level get a zero factor.
func StimulatedEmissionFactor(log logrus.FieldLogger, maserCount *int) Property {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return Property{
		Provides: []string{"stimulated_emission_factor"},
		Inputs:   []string{"levels", "level_number_density", "lines_lower_level_index", "lines_upper_level_index"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			levels, ok := inputs[0].([]atom.Level)
			if !ok {
				return nil, &InvalidInputError{Property: "stimulated_emission_factor",
					Input: "levels", Reason: "not a level table"}
			}
			n, err := asTable("stimulated_emission_factor", "level_number_density", inputs[1], len(levels), 0)
			if err != nil {
				return nil, err
			}
			nCells := n.GetShape()[1]
			lower, ok := inputs[2].([]int)
			if !ok {
				return nil, &InvalidInputError{Property: "stimulated_emission_factor",
					Input: "lines_lower_level_index", Reason: "not a line index"}
			}
			upper, ok := inputs[3].([]int)
			if !ok {
				return nil, &InvalidInputError{Property: "stimulated_emission_factor",
					Input: "lines_upper_level_index", Reason: "not a line index"}
			}
			if len(upper) != len(lower) {
				return nil, &InvalidInputError{Property: "stimulated_emission_factor",
					Input: "lines_upper_level_index", Reason: "line index length mismatch"}
			}
			factor := sparse.ZerosDense(len(lower), nCells)
			masers := 0
			for i := range lower {
				gl, gu := levels[lower[i]].G, levels[upper[i]].G
				for j := 0; j < nCells; j++ {
					nl, nu := n.Get(lower[i], j), n.Get(upper[i], j)
					if nl == 0 {
						continue
					}
					f := 1 - gl*nu/(gu*nl)
					if f < 0 {
						masers++
						f = 0
					}
					factor.Set(f, i, j)
				}
			}
			if masers > 0 {
				*maserCount += masers
				log.Warnf("plasma: %d inverted line populations (maser); stimulated emission factors clipped to 0", masers)
			}
			return []interface{}{factor}, nil
		},
	}
}

// JBluesDiluteBlackbody estimates the mean intensity at each line's
// blue edge as a dilute blackbody, w·B_ν(T_rad). The simulation driver
// normally overrides this leaf with Monte Carlo estimates after the first
// iteration.
func JBluesDiluteBlackbody() Property {
	return Property{
		Provides: []string{"j_blues"},
		Inputs:   []string{"lines", "t_rad", "w", "beta_rad"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			lines, ok := inputs[0].([]atom.Line)
			if !ok {
				return nil, &InvalidInputError{Property: "j_blues",
					Input: "lines", Reason: "not a line table"}
			}
			tRad, err := asCellArray("j_blues", "t_rad", inputs[1], 0)
			if err != nil {
				return nil, err
			}
			nCells := len(tRad)
			w, err := asCellArray("j_blues", "w", inputs[2], nCells)
			if err != nil {
				return nil, err
			}
			beta, err := asCellArray("j_blues", "beta_rad", inputs[3], nCells)
			if err != nil {
				return nil, err
			}
			j := sparse.ZerosDense(len(lines), nCells)
			for i, l := range lines {
				planckCoef := 2 * hPlanck * l.Nu * l.Nu * l.Nu / (cLight * cLight)
				for k := 0; k < nCells; k++ {
					b := planckCoef / math.Expm1(hPlanck*l.Nu*beta[k])
					j.Set(w[k]*b, i, k)
				}
			}
			return []interface{}{j}, nil
		},
	}
}

// TauSobolev is the Sobolev line optical depth in the homologously
// expanding ejecta,
//
//	τ = (π e²/(mₑ c))·f_lu·λ·t_exp·n_lower·stim_factor
//
// per line per cell.
func TauSobolev() Property {
	return Property{
		Provides: []string{"tau_sobolev"},
		Inputs: []string{"lines", "level_number_density", "lines_lower_level_index",
			"time_explosion", "stimulated_emission_factor", "j_blues"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			lines, ok := inputs[0].([]atom.Line)
			if !ok {
				return nil, &InvalidInputError{Property: "tau_sobolev",
					Input: "lines", Reason: "not a line table"}
			}
			n, err := asTable("tau_sobolev", "level_number_density", inputs[1], 0, 0)
			if err != nil {
				return nil, err
			}
			nCells := n.GetShape()[1]
			lower, ok := inputs[2].([]int)
			if !ok || len(lower) != len(lines) {
				return nil, &InvalidInputError{Property: "tau_sobolev",
					Input: "lines_lower_level_index", Reason: "not a line index aligned with lines"}
			}
			tExplosion, ok := inputs[3].(float64)
			if !ok || tExplosion <= 0 {
				return nil, &InvalidInputError{Property: "tau_sobolev",
					Input: "time_explosion", Reason: "not a positive scalar"}
			}
			stim, err := asTable("tau_sobolev", "stimulated_emission_factor", inputs[4], len(lines), nCells)
			if err != nil {
				return nil, err
			}
			// j_blues does not enter the optical depth itself, but it is
			// declared so this property is invalidated together with the
			// radiation field estimates it is used alongside.
			if _, err := asTable("tau_sobolev", "j_blues", inputs[5], len(lines), nCells); err != nil {
				return nil, err
			}
			tau := sparse.ZerosDense(len(lines), nCells)
			for i, l := range lines {
				coef := sobolevCoefficient * l.OscillatorStrength * l.Wavelength * tExplosion
				for j := 0; j < nCells; j++ {
					tau.Set(coef*n.Get(lower[i], j)*stim.Get(i, j), i, j)
				}
			}
			return []interface{}{tau}, nil
		},
	}
}

// betaSobolev is the Sobolev escape probability (1-exp(-τ))/τ, with the
// removable singularity at τ = 0 replaced by its limit 1.
func betaSobolev(tau float64) float64 {
	if tau == 0 {
		return 1
	}
	return -math.Expm1(-tau) / tau
}

// BetaSobolev is the photon escape probability for each line per cell.
func BetaSobolev() Property {
	return Property{
		Provides: []string{"beta_sobolev"},
		Inputs:   []string{"tau_sobolev"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			tau, err := asTable("beta_sobolev", "tau_sobolev", inputs[0], 0, 0)
			if err != nil {
				return nil, err
			}
			beta := sparse.ZerosDense(tau.GetShape()...)
			for i, t := range tau.Elements {
				beta.Elements[i] = betaSobolev(t)
			}
			return []interface{}{beta}, nil
		},
	}
}

// TransitionType distinguishes the directions in the radiative transition
// probability table.
type TransitionType int

const (
	// EmissionDown is radiative de-excitation from a line's upper to its
	// lower level.
	EmissionDown TransitionType = iota
	// InternalUp is radiative excitation from a line's lower to its upper
	// level.
	InternalUp
)

// TransitionProbabilityTable is the up/down radiative transition matrix
// for each cell, flattened to one row per (line, direction). Outgoing
// probabilities from each source level sum to one in every cell.
type TransitionProbabilityTable struct {
	Line             []int // row in the line table
	SourceLevel      []int // row in the level table
	DestinationLevel []int
	Type             []TransitionType
	Probabilities    *sparse.DenseArray
}

// TransitionProbabilities builds the normalized radiative transition-rate
// matrix per cell: downward rates A_ul·β_sob and upward rates
// B_lu·J_blue·stim·β_sob, normalized so the outgoing probabilities of each
// source level sum to one. The result feeds a downstream macro-atom
// solver.
func TransitionProbabilities() Property {
	return Property{
		Provides: []string{"transition_probabilities"},
		Inputs: []string{"lines", "beta_sobolev", "j_blues", "stimulated_emission_factor",
			"tau_sobolev", "lines_lower_level_index", "lines_upper_level_index"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			lines, ok := inputs[0].([]atom.Line)
			if !ok {
				return nil, &InvalidInputError{Property: "transition_probabilities",
					Input: "lines", Reason: "not a line table"}
			}
			beta, err := asTable("transition_probabilities", "beta_sobolev", inputs[1], len(lines), 0)
			if err != nil {
				return nil, err
			}
			nCells := beta.GetShape()[1]
			jBlues, err := asTable("transition_probabilities", "j_blues", inputs[2], len(lines), nCells)
			if err != nil {
				return nil, err
			}
			stim, err := asTable("transition_probabilities", "stimulated_emission_factor", inputs[3], len(lines), nCells)
			if err != nil {
				return nil, err
			}
			if _, err := asTable("transition_probabilities", "tau_sobolev", inputs[4], len(lines), nCells); err != nil {
				return nil, err
			}
			lower, ok := inputs[5].([]int)
			if !ok || len(lower) != len(lines) {
				return nil, &InvalidInputError{Property: "transition_probabilities",
					Input: "lines_lower_level_index", Reason: "not a line index aligned with lines"}
			}
			upper, ok := inputs[6].([]int)
			if !ok || len(upper) != len(lines) {
				return nil, &InvalidInputError{Property: "transition_probabilities",
					Input: "lines_upper_level_index", Reason: "not a line index aligned with lines"}
			}

			nRows := 2 * len(lines)
			t := &TransitionProbabilityTable{
				Line:             make([]int, nRows),
				SourceLevel:      make([]int, nRows),
				DestinationLevel: make([]int, nRows),
				Type:             make([]TransitionType, nRows),
				Probabilities:    sparse.ZerosDense(nRows, nCells),
			}
			for i, l := range lines {
				down, up := 2*i, 2*i+1
				t.Line[down], t.Line[up] = i, i
				t.SourceLevel[down], t.DestinationLevel[down] = upper[i], lower[i]
				t.Type[down] = EmissionDown
				t.SourceLevel[up], t.DestinationLevel[up] = lower[i], upper[i]
				t.Type[up] = InternalUp
				for j := 0; j < nCells; j++ {
					b := beta.Get(i, j)
					t.Probabilities.Set(l.EinsteinA*b, down, j)
					t.Probabilities.Set(l.EinsteinBlu*jBlues.Get(i, j)*stim.Get(i, j)*b, up, j)
				}
			}

			// Normalize outgoing probabilities per source level per cell.
			for j := 0; j < nCells; j++ {
				sums := make(map[int]float64)
				for r := 0; r < nRows; r++ {
					sums[t.SourceLevel[r]] += t.Probabilities.Get(r, j)
				}
				for r := 0; r < nRows; r++ {
					if s := sums[t.SourceLevel[r]]; s > 0 {
						t.Probabilities.Set(t.Probabilities.Get(r, j)/s, r, j)
					}
				}
			}
			return []interface{}{t}, nil
		},
	}
}
