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
	"github.com/spectralmodel/plasma/atom"
)

// LevelBoltzmannFactorLTE is the Boltzmann factor g·exp(-β_rad·E) per
// level per cell, assuming local thermodynamic equilibrium.
func LevelBoltzmannFactorLTE() Property {
	return Property{
		Provides: []string{"level_boltzmann_factor"},
		Inputs:   []string{"levels", "beta_rad"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			levels, ok := inputs[0].([]atom.Level)
			if !ok {
				return nil, &InvalidInputError{Property: "level_boltzmann_factor",
					Input: "levels", Reason: "not a level table"}
			}
			beta, err := asCellArray("level_boltzmann_factor", "beta_rad", inputs[1], 0)
			if err != nil {
				return nil, err
			}
			nCells := len(beta)
			bf := sparse.ZerosDense(len(levels), nCells)
			for i, l := range levels {
				for j, b := range beta {
					bf.Set(l.G*math.Exp(-b*l.Energy), i, j)
				}
			}
			return []interface{}{bf}, nil
		},
	}
}

// LevelBoltzmannFactorDiluteLTE is the Boltzmann factor for a diluted
// radiation field: metastable levels (ground states included) keep their
// LTE value, all other levels are scaled by the dilution factor w.
func LevelBoltzmannFactorDiluteLTE() Property {
	return Property{
		Provides: []string{"level_boltzmann_factor"},
		Inputs:   []string{"levels", "beta_rad", "w"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			levels, ok := inputs[0].([]atom.Level)
			if !ok {
				return nil, &InvalidInputError{Property: "level_boltzmann_factor",
					Input: "levels", Reason: "not a level table"}
			}
			beta, err := asCellArray("level_boltzmann_factor", "beta_rad", inputs[1], 0)
			if err != nil {
				return nil, err
			}
			w, err := asCellArray("level_boltzmann_factor", "w", inputs[2], len(beta))
			if err != nil {
				return nil, err
			}
			nCells := len(beta)
			bf := sparse.ZerosDense(len(levels), nCells)
			for i, l := range levels {
				for j, b := range beta {
					v := l.G * math.Exp(-b*l.Energy)
					if !l.Metastable {
						v *= w[j]
					}
					bf.Set(v, i, j)
				}
			}
			return []interface{}{bf}, nil
		},
	}
}

// PartitionFunction sums the level Boltzmann factors over the levels of
// each ion, per cell. Rows align with ions.
func PartitionFunction() Property {
	return Property{
		Provides: []string{"partition_function"},
		Inputs:   []string{"levels", "level_boltzmann_factor", "ions"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			levels, ok := inputs[0].([]atom.Level)
			if !ok {
				return nil, &InvalidInputError{Property: "partition_function",
					Input: "levels", Reason: "not a level table"}
			}
			ions, ok := inputs[2].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "partition_function",
					Input: "ions", Reason: "not an ion list"}
			}
			bf, err := asTable("partition_function", "level_boltzmann_factor", inputs[1], len(levels), 0)
			if err != nil {
				return nil, err
			}
			nCells := bf.GetShape()[1]
			idx := ionIndex(ions)
			z := sparse.ZerosDense(len(ions), nCells)
			for i, l := range levels {
				r := idx[l.Species()]
				for j := 0; j < nCells; j++ {
					z.Set(z.Get(r, j)+bf.Get(i, j), r, j)
				}
			}
			return []interface{}{z}, nil
		},
	}
}

// LevelPopulationFraction is the fraction of an ion's population in each
// level: the level Boltzmann factor divided by the ion partition function.
// The fractions of each ion sum to one in every cell.
func LevelPopulationFraction() Property {
	return Property{
		Provides: []string{"level_population_fraction"},
		Inputs:   []string{"levels", "partition_function", "level_boltzmann_factor", "ions"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			levels, ok := inputs[0].([]atom.Level)
			if !ok {
				return nil, &InvalidInputError{Property: "level_population_fraction",
					Input: "levels", Reason: "not a level table"}
			}
			ions, ok := inputs[3].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "level_population_fraction",
					Input: "ions", Reason: "not an ion list"}
			}
			z, err := asTable("level_population_fraction", "partition_function", inputs[1], len(ions), 0)
			if err != nil {
				return nil, err
			}
			nCells := z.GetShape()[1]
			bf, err := asTable("level_population_fraction", "level_boltzmann_factor", inputs[2], len(levels), nCells)
			if err != nil {
				return nil, err
			}
			idx := ionIndex(ions)
			frac := sparse.ZerosDense(len(levels), nCells)
			for i, l := range levels {
				r := idx[l.Species()]
				for j := 0; j < nCells; j++ {
					frac.Set(bf.Get(i, j)/z.Get(r, j), i, j)
				}
			}
			return []interface{}{frac}, nil
		},
	}
}

// LevelNumberDensity is the level population fraction multiplied by the
// number density of the level's ion [1/cm³].
func LevelNumberDensity() Property {
	return Property{
		Provides: []string{"level_number_density"},
		Inputs:   []string{"levels", "level_population_fraction", "ion_number_density", "ions"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			levels, ok := inputs[0].([]atom.Level)
			if !ok {
				return nil, &InvalidInputError{Property: "level_number_density",
					Input: "levels", Reason: "not a level table"}
			}
			ions, ok := inputs[3].([]atom.Species)
			if !ok {
				return nil, &InvalidInputError{Property: "level_number_density",
					Input: "ions", Reason: "not an ion list"}
			}
			frac, err := asTable("level_number_density", "level_population_fraction", inputs[1], len(levels), 0)
			if err != nil {
				return nil, err
			}
			nCells := frac.GetShape()[1]
			nIon, err := asTable("level_number_density", "ion_number_density", inputs[2], len(ions), nCells)
			if err != nil {
				return nil, err
			}
			idx := ionIndex(ions)
			n := sparse.ZerosDense(len(levels), nCells)
			for i, l := range levels {
				r := idx[l.Species()]
				for j := 0; j < nCells; j++ {
					n.Set(frac.Get(i, j)*nIon.Get(r, j), i, j)
				}
			}
			return []interface{}{n}, nil
		},
	}
}
