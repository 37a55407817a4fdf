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
	"strings"
)

// InvalidInputError reports a shape or index mismatch between a property
// and one of its declared inputs. It indicates a programming error in graph
// assembly and is never recovered from.
type InvalidInputError struct {
	Property string // the property whose calculation rejected the input
	Input    string // the offending input name
	Reason   string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("plasma: property %s: invalid input %s: %s",
		e.Property, e.Input, e.Reason)
}

// UnknownPropertyError reports a request for a property name that is not
// registered in the graph.
type UnknownPropertyError struct {
	Name string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("plasma: unknown property %s", e.Name)
}

// CyclicDependencyError reports that resolving a property re-entered a
// property that was already being resolved. The one physically cyclic
// calculation (ion populations and electron density) iterates internally,
// so any cycle seen by the resolver is a graph-construction bug.
type CyclicDependencyError struct {
	Property string
	Stack    []string // resolution stack from the requested property down
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("plasma: cyclic dependency on %s (resolution stack %s)",
		e.Property, strings.Join(e.Stack, " → "))
}

// ConvergenceError reports that the ion population–electron density fixed
// point did not converge within the iteration budget. The last iterate and
// its residual are retained so that a caller can retry with a relaxed
// tolerance or a different initial guess.
type ConvergenceError struct {
	Iterations int
	Tolerance  float64
	Residual   float64   // largest relative electron-density change in the last iteration
	NElectron  []float64 // last electron-density iterate, one value per cell
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("plasma: electron density not converged after %d iterations (residual %g, tolerance %g)",
		e.Iterations, e.Residual, e.Tolerance)
}
