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
	"testing"
)

// sumProperty adds two scalar inputs. The counter records how many times
// the calculation actually ran.
func sumProperty(name, a, b string, calls *int) Property {
	return Property{
		Provides: []string{name},
		Inputs:   []string{a, b},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			*calls++
			return []interface{}{inputs[0].(float64) + inputs[1].(float64)}, nil
		},
	}
}

func TestGraphResolve(t *testing.T) {
	var calls int
	g := NewGraph(nil)
	g.SetInput("a", 2.)
	g.SetInput("b", 3.)
	if err := g.Register(sumProperty("sum", "a", "b", &calls)); err != nil {
		t.Fatal(err)
	}

	v, err := g.Get("sum")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 5. {
		t.Errorf("sum: got %v, want 5", v)
	}
	if _, err := g.Get("sum"); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("calculation ran %d times for two requests, want 1", calls)
	}
}

func TestGraphInvalidation(t *testing.T) {
	var sumCalls, doubleCalls, otherCalls int
	g := NewGraph(nil)
	g.SetInput("a", 2.)
	g.SetInput("b", 3.)
	g.SetInput("c", 7.)
	if err := g.Register(sumProperty("sum", "a", "b", &sumCalls)); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(sumProperty("double", "sum", "sum", &doubleCalls)); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(sumProperty("other", "c", "c", &otherCalls)); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"double", "other"} {
		if _, err := g.Get(name); err != nil {
			t.Fatal(err)
		}
	}

	// Updating a must invalidate sum and double but leave other cached.
	g.SetInput("a", 10.)
	v, err := g.Get("double")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 26. {
		t.Errorf("double after update: got %v, want 26", v)
	}
	if _, err := g.Get("other"); err != nil {
		t.Fatal(err)
	}
	if sumCalls != 2 || doubleCalls != 2 {
		t.Errorf("dependent calculations ran %d and %d times, want 2 and 2",
			sumCalls, doubleCalls)
	}
	if otherCalls != 1 {
		t.Errorf("unrelated calculation ran %d times, want 1", otherCalls)
	}
}

// Repeated requests must return the identical cached value, not a copy.
func TestGraphCachedIdentity(t *testing.T) {
	g := NewGraph(nil)
	g.SetInput("n", 3)
	if err := g.Register(Property{
		Provides: []string{"slice"},
		Inputs:   []string{"n"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			return []interface{}{make([]float64, inputs[0].(int))}, nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	a, err := g.Get("slice")
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Get("slice")
	if err != nil {
		t.Fatal(err)
	}
	if &a.([]float64)[0] != &b.([]float64)[0] {
		t.Error("repeated requests returned distinct values")
	}
}

func TestGraphCycle(t *testing.T) {
	var calls int
	g := NewGraph(nil)
	if err := g.Register(sumProperty("x", "y", "y", &calls)); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(sumProperty("y", "x", "x", &calls)); err != nil {
		t.Fatal(err)
	}
	_, err := g.Get("x")
	cErr, ok := err.(*CyclicDependencyError)
	if !ok {
		t.Fatalf("got %v, want a cyclic dependency error", err)
	}
	if len(cErr.Stack) < 2 {
		t.Errorf("cycle stack %v does not show the cycle", cErr.Stack)
	}
}

func TestGraphUnknownProperty(t *testing.T) {
	g := NewGraph(nil)
	_, err := g.Get("nope")
	if _, ok := err.(*UnknownPropertyError); !ok {
		t.Errorf("got %v, want an unknown property error", err)
	}

	var calls int
	if err := g.Register(sumProperty("sum", "missing", "missing", &calls)); err != nil {
		t.Fatal(err)
	}
	_, err = g.Get("sum")
	uErr, ok := err.(*UnknownPropertyError)
	if !ok {
		t.Fatalf("got %v, want an unknown property error", err)
	}
	if uErr.Name != "missing" {
		t.Errorf("error names %s, want missing", uErr.Name)
	}
}

func TestGraphDuplicateRegistration(t *testing.T) {
	var calls int
	g := NewGraph(nil)
	if err := g.Register(sumProperty("sum", "a", "b", &calls)); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(sumProperty("sum", "a", "b", &calls)); err == nil {
		t.Error("registering the same name twice did not fail")
	}
}

// A failing calculation must not disturb siblings that already resolved,
// and must recover once the offending input is fixed.
func TestGraphFailureIsolation(t *testing.T) {
	var goodCalls int
	g := NewGraph(nil)
	g.SetInput("flag", -1.)
	g.SetInput("c", 1.)
	if err := g.Register(sumProperty("good", "c", "c", &goodCalls)); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(Property{
		Provides: []string{"bad"},
		Inputs:   []string{"flag"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			if inputs[0].(float64) < 0 {
				return nil, fmt.Errorf("plasma: negative flag")
			}
			return []interface{}{inputs[0]}, nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := g.Register(sumProperty("downstream", "good", "bad", new(int))); err != nil {
		t.Fatal(err)
	}

	if _, err := g.Get("downstream"); err == nil {
		t.Fatal("resolving through a failing calculation did not fail")
	}
	// The sibling resolved before the failure stays cached.
	if _, err := g.Get("good"); err != nil {
		t.Fatal(err)
	}
	if goodCalls != 1 {
		t.Errorf("sibling recalculated %d times after an unrelated failure, want 1",
			goodCalls)
	}

	g.SetInput("flag", 1.)
	v, err := g.Get("downstream")
	if err != nil {
		t.Fatal(err)
	}
	if v.(float64) != 3. {
		t.Errorf("downstream after recovery: got %v, want 3", v)
	}
}

func TestGraphMultiOutput(t *testing.T) {
	g := NewGraph(nil)
	g.SetInput("x", 4.)
	var calls int
	if err := g.Register(Property{
		Provides: []string{"twice", "half"},
		Inputs:   []string{"x"},
		Calculate: func(inputs ...interface{}) ([]interface{}, error) {
			calls++
			x := inputs[0].(float64)
			return []interface{}{2 * x, x / 2}, nil
		},
	}); err != nil {
		t.Fatal(err)
	}
	twice, err := g.Get("twice")
	if err != nil {
		t.Fatal(err)
	}
	half, err := g.Get("half")
	if err != nil {
		t.Fatal(err)
	}
	if twice.(float64) != 8. || half.(float64) != 2. {
		t.Errorf("got %v and %v, want 8 and 2", twice, half)
	}
	if calls != 1 {
		t.Errorf("shared calculation ran %d times for both outputs, want 1", calls)
	}
}
