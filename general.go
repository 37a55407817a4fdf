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
	"sort"

	"github.com/ctessum/sparse"
)

// asCellArray type-asserts a per-cell input array, optionally checking its
// length against nCells (pass nCells <= 0 to skip the check).
func asCellArray(property, input string, v interface{}, nCells int) ([]float64, error) {
	a, ok := v.([]float64)
	if !ok {
		return nil, &InvalidInputError{Property: property, Input: input,
			Reason: "not a cell-indexed array"}
	}
	if len(a) == 0 {
		return nil, &InvalidInputError{Property: property, Input: input,
			Reason: "empty cell-indexed array"}
	}
	if nCells > 0 && len(a) != nCells {
		return nil, &InvalidInputError{Property: property, Input: input,
			Reason: "cell-index length mismatch"}
	}
	return a, nil
}

// asTable type-asserts a (row × cell) table input and checks its shape.
func asTable(property, input string, v interface{}, nRows, nCells int) (*sparse.DenseArray, error) {
	t, ok := v.(*sparse.DenseArray)
	if !ok {
		return nil, &InvalidInputError{Property: property, Input: input,
			Reason: "not a row × cell table"}
	}
	shape := t.GetShape()
	if len(shape) != 2 {
		return nil, &InvalidInputError{Property: property, Input: input,
			Reason: "table is not two-dimensional"}
	}
	if nRows > 0 && shape[0] != nRows {
		return nil, &InvalidInputError{Property: property, Input: input,
			Reason: "table row count mismatch"}
	}
	if nCells > 0 && shape[1] != nCells {
		return nil, &InvalidInputError{Property: property, Input: input,
			Reason: "table cell count mismatch"}
	}
	return t, nil
}

// SelectedAtoms projects the set of elements present in the abundance data
// with nonzero abundance, as an ascending list of atomic numbers. Every
// species-filtered property downstream uses this one selector.
func SelectedAtoms() Property {
	return Property{
		Provides: []string{"selected_atoms"},
		Inputs:   []string{"abundance"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			abundance, ok := inputs[0].(map[int][]float64)
			if !ok {
				return nil, &InvalidInputError{Property: "selected_atoms",
					Input: "abundance", Reason: "not an abundance table"}
			}
			var atoms []int
			for z, frac := range abundance {
				for _, v := range frac {
					if v != 0 {
						atoms = append(atoms, z)
						break
					}
				}
			}
			sort.Ints(atoms)
			return []interface{}{atoms}, nil
		},
	}
}

// BetaRadiation is 1/(k_B·T_rad) per cell [1/erg].
func BetaRadiation() Property {
	return Property{
		Provides: []string{"beta_rad"},
		Inputs:   []string{"t_rad"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			tRad, err := asCellArray("beta_rad", "t_rad", inputs[0], 0)
			if err != nil {
				return nil, err
			}
			beta := make([]float64, len(tRad))
			for i, t := range tRad {
				beta[i] = 1. / (kB * t)
			}
			return []interface{}{beta}, nil
		},
	}
}

// GElectron is the electron phase-space density factor
// (2π·mₑ·k_B·T_rad/h²)^(3/2) per cell [1/cm³], used in the Saha equation.
func GElectron() Property {
	return Property{
		Provides: []string{"g_electron"},
		Inputs:   []string{"beta_rad"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			beta, err := asCellArray("g_electron", "beta_rad", inputs[0], 0)
			if err != nil {
				return nil, err
			}
			g := make([]float64, len(beta))
			for i, b := range beta {
				g[i] = math.Pow(2.*math.Pi*mElectron/(b*hPlanck*hPlanck), 1.5)
			}
			return []interface{}{g}, nil
		},
	}
}

// ElectronTemperature links the electron temperature to the radiation
// temperature via a constant ratio, T_e = link·T_rad per cell.
func ElectronTemperature() Property {
	return Property{
		Provides: []string{"t_electron"},
		Inputs:   []string{"t_rad", "link_t_rad_t_electron"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			tRad, err := asCellArray("t_electron", "t_rad", inputs[0], 0)
			if err != nil {
				return nil, err
			}
			link, ok := inputs[1].(float64)
			if !ok || link <= 0 {
				return nil, &InvalidInputError{Property: "t_electron",
					Input: "link_t_rad_t_electron", Reason: "not a positive scalar"}
			}
			tElectron := make([]float64, len(tRad))
			for i, t := range tRad {
				tElectron[i] = link * t
			}
			return []interface{}{tElectron}, nil
		},
	}
}

// BetaElectron is 1/(k_B·T_e) per cell [1/erg].
func BetaElectron() Property {
	return Property{
		Provides: []string{"beta_electron"},
		Inputs:   []string{"t_electron"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			tElectron, err := asCellArray("beta_electron", "t_electron", inputs[0], 0)
			if err != nil {
				return nil, err
			}
			beta := make([]float64, len(tElectron))
			for i, t := range tElectron {
				beta[i] = 1. / (kB * t)
			}
			return []interface{}{beta}, nil
		},
	}
}

// NumberDensity is the elemental number density per cell [1/cm³] for each
// selected element: mass fraction × mass density / atomic mass. Rows align
// with selected_atoms.
func NumberDensity() Property {
	return Property{
		Provides: []string{"number_density"},
		Inputs:   []string{"atomic_mass", "abundance", "density", "selected_atoms"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			mass, ok := inputs[0].(map[int]float64)
			if !ok {
				return nil, &InvalidInputError{Property: "number_density",
					Input: "atomic_mass", Reason: "not an atomic mass table"}
			}
			abundance, ok := inputs[1].(map[int][]float64)
			if !ok {
				return nil, &InvalidInputError{Property: "number_density",
					Input: "abundance", Reason: "not an abundance table"}
			}
			density, err := asCellArray("number_density", "density", inputs[2], 0)
			if err != nil {
				return nil, err
			}
			atoms, ok := inputs[3].([]int)
			if !ok {
				return nil, &InvalidInputError{Property: "number_density",
					Input: "selected_atoms", Reason: "not a species selector"}
			}
			nCells := len(density)
			n := sparse.ZerosDense(len(atoms), nCells)
			for i, z := range atoms {
				m, ok := mass[z]
				if !ok || m <= 0 {
					return nil, &InvalidInputError{Property: "number_density",
						Input: "atomic_mass", Reason: "missing mass for selected element"}
				}
				frac, ok := abundance[z]
				if !ok {
					return nil, &InvalidInputError{Property: "number_density",
						Input: "abundance", Reason: "missing abundance for selected element"}
				}
				if len(frac) != nCells {
					return nil, &InvalidInputError{Property: "number_density",
						Input: "abundance", Reason: "cell-index length mismatch"}
				}
				for j := 0; j < nCells; j++ {
					n.Set(frac[j]*density[j]/m, i, j)
				}
			}
			return []interface{}{n}, nil
		},
	}
}
