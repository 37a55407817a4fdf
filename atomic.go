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
	"context"

	"github.com/spectralmodel/plasma/atom"
)

// AtomicSelection projects the atomic reference data onto the selected
// elements. All atomic tables downstream are views of this one selection,
// so their row indexes stay aligned.
func AtomicSelection() Property {
	return Property{
		Provides: []string{"atomic_selection"},
		Inputs:   []string{"atomic_data", "selected_atoms"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			data, ok := inputs[0].(*atom.Data)
			if !ok {
				return nil, &InvalidInputError{Property: "atomic_selection",
					Input: "atomic_data", Reason: "not an atomic dataset"}
			}
			atoms, ok := inputs[1].([]int)
			if !ok {
				return nil, &InvalidInputError{Property: "atomic_selection",
					Input: "selected_atoms", Reason: "not a species selector"}
			}
			sel, err := data.Select(context.Background(), atoms)
			if err != nil {
				return nil, err
			}
			return []interface{}{sel}, nil
		},
	}
}

// selectionField adapts one field of the atomic selection into its own
// property, so properties can declare only the tables they read.
func selectionField(name string, get func(*atom.Selection) interface{}) Property {
	return Property{
		Provides: []string{name},
		Inputs:   []string{"atomic_selection"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			sel, ok := inputs[0].(*atom.Selection)
			if !ok {
				return nil, &InvalidInputError{Property: name,
					Input: "atomic_selection", Reason: "not an atomic selection"}
			}
			return []interface{}{get(sel)}, nil
		},
	}
}

// Levels is the species-filtered level table.
func Levels() Property {
	return selectionField("levels", func(s *atom.Selection) interface{} { return s.Levels })
}

// Lines is the species-filtered line table.
func Lines() Property {
	return selectionField("lines", func(s *atom.Selection) interface{} { return s.Lines })
}

// IonizationData is the species-filtered ionization energy table [erg],
// keyed by the produced ion.
func IonizationData() Property {
	return selectionField("ionization_data", func(s *atom.Selection) interface{} { return s.IonizationEnergy })
}

// AtomicMass is the species-filtered elemental mass table [g].
func AtomicMass() Property {
	return selectionField("atomic_mass", func(s *atom.Selection) interface{} { return s.AtomicMass })
}

// ZetaData is the species-filtered zeta recombination table.
func ZetaData() Property {
	return selectionField("zeta_data", func(s *atom.Selection) interface{} { return s.Zeta })
}

// Ions lists the ions present in the level table, in level-table order.
// Tables indexed by ion (partition functions, ion number densities) share
// this row order.
func Ions() Property {
	return Property{
		Provides: []string{"ions"},
		Inputs:   []string{"levels"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			levels, ok := inputs[0].([]atom.Level)
			if !ok {
				return nil, &InvalidInputError{Property: "ions",
					Input: "levels", Reason: "not a level table"}
			}
			return []interface{}{ionsOf(levels)}, nil
		},
	}
}

// ionsOf returns the distinct ions of a level table in first-appearance
// order.
func ionsOf(levels []atom.Level) []atom.Species {
	var ions []atom.Species
	seen := make(map[atom.Species]bool)
	for _, l := range levels {
		sp := l.Species()
		if !seen[sp] {
			seen[sp] = true
			ions = append(ions, sp)
		}
	}
	return ions
}

func ionIndex(ions []atom.Species) map[atom.Species]int {
	idx := make(map[atom.Species]int, len(ions))
	for i, sp := range ions {
		idx[sp] = i
	}
	return idx
}

// linesLevelIndex builds, for each line, the row index in the level table
// of one of its endpoints.
func linesLevelIndex(name string, level func(atom.Line) int) Property {
	return Property{
		Provides: []string{name},
		Inputs:   []string{"atomic_selection", "lines"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			sel, ok := inputs[0].(*atom.Selection)
			if !ok {
				return nil, &InvalidInputError{Property: name,
					Input: "atomic_selection", Reason: "not an atomic selection"}
			}
			lines, ok := inputs[1].([]atom.Line)
			if !ok {
				return nil, &InvalidInputError{Property: name,
					Input: "lines", Reason: "not a line table"}
			}
			idx := make([]int, len(lines))
			for i, l := range lines {
				j, ok := sel.LevelIndex(l.AtomicNumber, l.IonNumber, level(l))
				if !ok {
					return nil, &InvalidInputError{Property: name,
						Input: "lines", Reason: "line endpoint missing from level table"}
				}
				idx[i] = j
			}
			return []interface{}{idx}, nil
		},
	}
}

// LinesLowerLevelIndex maps each line to the level-table row of its lower
// level.
func LinesLowerLevelIndex() Property {
	return linesLevelIndex("lines_lower_level_index", func(l atom.Line) int { return l.LevelLower })
}

// LinesUpperLevelIndex maps each line to the level-table row of its upper
// level.
func LinesUpperLevelIndex() Property {
	return linesLevelIndex("lines_upper_level_index", func(l atom.Line) int { return l.LevelUpper })
}
