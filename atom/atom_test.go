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

import (
	"context"
	"math"
	"testing"
)

func TestSelect(t *testing.T) {
	d := TestData()
	sel, err := d.Select(context.Background(), []int{2})
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Atoms) != 1 || sel.Atoms[0] != 2 {
		t.Errorf("atoms: got %v, want [2]", sel.Atoms)
	}
	if len(sel.Levels) != 5 {
		t.Errorf("levels: got %d rows, want 5", len(sel.Levels))
	}
	if len(sel.Lines) != 2 {
		t.Errorf("lines: got %d rows, want 2", len(sel.Lines))
	}
	// Row order must follow the parent dataset.
	for i, l := range sel.Levels {
		if l != d.Levels[i] {
			t.Errorf("level row %d: got %+v, want %+v", i, l, d.Levels[i])
		}
	}
	for sp := range d.IonizationEnergy {
		if _, ok := sel.IonizationEnergy[sp]; !ok {
			t.Errorf("ionization energy for %v missing from selection", sp)
		}
	}
	if sel.Zeta == nil || len(sel.Zeta.Zeta) != 2 {
		t.Error("zeta table not carried into selection")
	}
}

func TestSelectLevelIndex(t *testing.T) {
	d := TestData()
	sel, err := d.Select(context.Background(), []int{2})
	if err != nil {
		t.Fatal(err)
	}
	i, ok := sel.LevelIndex(2, 1, 1)
	if !ok {
		t.Fatal("level (2,1,1) not indexed")
	}
	l := sel.Levels[i]
	if l.AtomicNumber != 2 || l.IonNumber != 1 || l.LevelNumber != 1 {
		t.Errorf("LevelIndex(2,1,1) points at %+v", l)
	}
	if _, ok := sel.LevelIndex(2, 0, 99); ok {
		t.Error("nonexistent level reported as indexed")
	}
}

// Repeated selections with the same selector must share one Selection, so
// row indexes built from one are valid against tables built from another.
func TestSelectCached(t *testing.T) {
	d := TestData()
	a, err := d.Select(context.Background(), []int{2})
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Select(context.Background(), []int{2})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("identical selectors returned distinct selections")
	}
}

func TestSelectUnknownElement(t *testing.T) {
	d := TestData()
	if _, err := d.Select(context.Background(), []int{26}); err == nil {
		t.Error("selecting an element absent from the dataset did not fail")
	}
}

func TestZetaInterpolate(t *testing.T) {
	const tolerance = 1.e-12
	z := TestData().Zeta
	sp := Species{AtomicNumber: 2, IonNumber: 1}

	cases := []struct {
		temperature, want float64
	}{
		{10000, 0.60},  // grid point
		{15000, 0.63},  // midpoint
		{1000, 0.54},   // clamped low
		{100000, 0.72}, // clamped high
	}
	for _, c := range cases {
		got, ok := z.Interpolate(sp, c.temperature)
		if !ok {
			t.Fatalf("no zeta for %v at %g K", sp, c.temperature)
		}
		if math.Abs(got-c.want) > tolerance {
			t.Errorf("zeta at %g K: got %g, want %g", c.temperature, got, c.want)
		}
	}

	if _, ok := z.Interpolate(Species{AtomicNumber: 26, IonNumber: 1}, 10000); ok {
		t.Error("zeta reported for a species missing from the table")
	}
}
