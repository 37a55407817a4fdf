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

// Package atom holds the immutable atomic reference data consumed by the
// plasma state calculation: energy levels, line transitions, ionization
// energies, atomic masses, and tabulated recombination (zeta) corrections.
// All quantities are in CGS units.
package atom

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ctessum/requestcache"
)

// Species identifies one ionization stage of one element. IonNumber is the
// ion charge: 0 for the neutral atom, 1 for the singly ionized stage, and
// so on.
type Species struct {
	AtomicNumber int
	IonNumber    int
}

func (s Species) String() string {
	return fmt.Sprintf("(%d,%d)", s.AtomicNumber, s.IonNumber)
}

// Level is one bound energy level of one ion.
type Level struct {
	AtomicNumber int
	IonNumber    int
	LevelNumber  int
	Energy       float64 // erg above the ion ground state
	G            float64 // statistical weight
	Metastable   bool
}

// Species returns the ion this level belongs to.
func (l Level) Species() Species {
	return Species{AtomicNumber: l.AtomicNumber, IonNumber: l.IonNumber}
}

// Line is one radiative transition between two levels of one ion.
type Line struct {
	AtomicNumber       int
	IonNumber          int
	LevelLower         int
	LevelUpper         int
	Nu                 float64 // Hz
	Wavelength         float64 // cm
	OscillatorStrength float64 // f_lu, absorption oscillator strength
	EinsteinA          float64 // A_ul [1/s]
	EinsteinBul        float64 // B_ul [per mean intensity]
	EinsteinBlu        float64 // B_lu [per mean intensity]
}

// Species returns the ion this line belongs to.
func (l Line) Species() Species {
	return Species{AtomicNumber: l.AtomicNumber, IonNumber: l.IonNumber}
}

// ZetaTable holds the tabulated zeta recombination correction of Mazzali &
// Lucy (1993): the fraction of recombinations going directly to the ground
// state, on a shared radiation-temperature grid.
type ZetaTable struct {
	Temperature []float64 // K, ascending
	// Zeta is keyed by the produced ion, matching IonizationEnergy.
	Zeta map[Species][]float64
}

// Interpolate returns the zeta value for species sp at temperature t,
// interpolating linearly on the temperature grid and clamping outside it.
// The second return is false if the table has no entry for sp.
func (z *ZetaTable) Interpolate(sp Species, t float64) (float64, bool) {
	if z == nil {
		return 0, false
	}
	vals, ok := z.Zeta[sp]
	if !ok || len(vals) != len(z.Temperature) || len(vals) == 0 {
		return 0, false
	}
	ts := z.Temperature
	if t <= ts[0] {
		return vals[0], true
	}
	if t >= ts[len(ts)-1] {
		return vals[len(vals)-1], true
	}
	i := sort.SearchFloat64s(ts, t)
	frac := (t - ts[i-1]) / (ts[i] - ts[i-1])
	return vals[i-1] + frac*(vals[i]-vals[i-1]), true
}

// Data is the full atomic reference dataset. It is read-only after
// construction; the plasma calculation only ever looks values up.
type Data struct {
	Levels []Level
	Lines  []Line

	// IonizationEnergy holds, keyed by the produced ion (IonNumber ≥ 1),
	// the energy [erg] needed to ionize the stage below it.
	IonizationEnergy map[Species]float64

	// AtomicMass holds the elemental mass [g] keyed by atomic number.
	AtomicMass map[int]float64

	Zeta *ZetaTable

	cacheOnce  sync.Once
	selections *requestcache.Cache
}

// Selection is the projection of a Data set onto a set of selected
// elements. Row order of Levels and Lines is the order of the parent
// dataset, so indexes built from one Selection align with every other
// table built from the same Selection.
type Selection struct {
	Atoms []int // ascending

	Levels []Level
	Lines  []Line

	IonizationEnergy map[Species]float64
	AtomicMass       map[int]float64
	Zeta             *ZetaTable

	levelIndex map[levelKey]int
}

type levelKey struct {
	z, ion, level int
}

// LevelIndex returns the row index in s.Levels of the given level, and
// whether it exists.
func (s *Selection) LevelIndex(atomicNumber, ionNumber, levelNumber int) (int, bool) {
	i, ok := s.levelIndex[levelKey{atomicNumber, ionNumber, levelNumber}]
	return i, ok
}

// Select returns the projection of d onto the given elements. Projections
// are cached, keyed by the selected atoms, so two requests with the same
// selector share one Selection; this keeps every property that filters by
// species on identical row indexes.
func (d *Data) Select(ctx context.Context, atoms []int) (*Selection, error) {
	d.cacheOnce.Do(func() {
		d.selections = requestcache.NewCache(d.runSelect, 1,
			requestcache.Deduplicate(), requestcache.Memory(20))
	})
	sorted := make([]int, len(atoms))
	copy(sorted, atoms)
	sort.Ints(sorted)
	req := d.selections.NewRequest(ctx, sorted, fmt.Sprintf("select_%v", sorted))
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	return result.(*Selection), nil
}

func (d *Data) runSelect(ctx context.Context, payload interface{}) (interface{}, error) {
	atoms := payload.([]int)
	s := &Selection{
		Atoms:            atoms,
		IonizationEnergy: make(map[Species]float64),
		AtomicMass:       make(map[int]float64),
		levelIndex:       make(map[levelKey]int),
	}
	want := make(map[int]bool)
	for _, z := range atoms {
		if _, ok := d.AtomicMass[z]; !ok {
			return nil, fmt.Errorf("atom: element %d is not in the atomic dataset", z)
		}
		want[z] = true
		s.AtomicMass[z] = d.AtomicMass[z]
	}
	for _, l := range d.Levels {
		if !want[l.AtomicNumber] {
			continue
		}
		s.levelIndex[levelKey{l.AtomicNumber, l.IonNumber, l.LevelNumber}] = len(s.Levels)
		s.Levels = append(s.Levels, l)
	}
	for _, l := range d.Lines {
		if want[l.AtomicNumber] {
			s.Lines = append(s.Lines, l)
		}
	}
	for sp, chi := range d.IonizationEnergy {
		if want[sp.AtomicNumber] {
			s.IonizationEnergy[sp] = chi
		}
	}
	if d.Zeta != nil {
		zt := &ZetaTable{
			Temperature: d.Zeta.Temperature,
			Zeta:        make(map[Species][]float64),
		}
		for sp, vals := range d.Zeta.Zeta {
			if want[sp.AtomicNumber] {
				zt.Zeta[sp] = vals
			}
		}
		s.Zeta = zt
	}
	return s, nil
}
