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

	"github.com/sirupsen/logrus"
)

// CalcFunc performs the calculation for one property. The inputs arrive in
// the order declared by the property, fully resolved. The returned slice
// must hold one value for each name the property provides. Calculations
// must be pure: they may not mutate their inputs, and identical inputs must
// yield identical outputs.
type CalcFunc func(inputs ...interface{}) ([]interface{}, error)

// Property is the atomic unit of computation in the plasma graph: a named
// calculation with a declared ordered input signature. Most properties
// provide a single named value; the coupled ion population–electron density
// solver provides two from one calculation.
type Property struct {
	Provides  []string // output names; must be non-empty
	Inputs    []string // input property names, in calculation-argument order
	Calculate CalcFunc
}

// Resolution state of a graph node.
type nodeState int

const (
	unresolved nodeState = iota
	resolving            // evaluation in progress; re-entry means a cycle
	resolved
	failed
)

type node struct {
	prop   Property
	state  nodeState
	values []interface{} // cached outputs, aligned with prop.Provides
	err    error         // set when state == failed
}

// value returns the cached output with the given name.
func (n *node) value(name string) interface{} {
	for i, p := range n.prop.Provides {
		if p == name {
			return n.values[i]
		}
	}
	panic(fmt.Sprintf("plasma: node does not provide %s", name))
}

// Graph is a registry of properties keyed by the names they provide,
// together with the machinery to resolve any property in dependency order.
// Outputs are cached until an upstream input changes, so repeated requests
// for the same property return the identical value.
//
// Evaluation is synchronous and single-threaded: a request for a property
// runs the full transitive resolution to completion before returning.
type Graph struct {
	nodes      []*node
	byName     map[string]*node   // provided name → node
	dependents map[string][]*node // input name → nodes that consume it

	log logrus.FieldLogger
}

// NewGraph returns an empty property graph that logs diagnostics to log.
func NewGraph(log logrus.FieldLogger) *Graph {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Graph{
		byName:     make(map[string]*node),
		dependents: make(map[string][]*node),
		log:        log,
	}
}

// Register adds a property to the graph. Each provided name may be
// registered only once.
func (g *Graph) Register(p Property) error {
	if len(p.Provides) == 0 {
		return fmt.Errorf("plasma: property provides no outputs")
	}
	if p.Calculate == nil {
		return fmt.Errorf("plasma: property %s has no calculation", p.Provides[0])
	}
	n := &node{prop: p}
	for _, name := range p.Provides {
		if _, ok := g.byName[name]; ok {
			return fmt.Errorf("plasma: property %s registered twice", name)
		}
		g.byName[name] = n
	}
	for _, in := range p.Inputs {
		g.dependents[in] = append(g.dependents[in], n)
	}
	g.nodes = append(g.nodes, n)
	return nil
}

// SetInput registers or updates an externally supplied value (a graph
// leaf). Updating an existing leaf invalidates every property that
// transitively depends on it, so stale values are never served.
func (g *Graph) SetInput(name string, value interface{}) {
	if n, ok := g.byName[name]; ok && n.prop.Calculate == nil {
		n.values[0] = value
		g.invalidateDependents(name)
		return
	}
	n := &node{
		prop:   Property{Provides: []string{name}},
		state:  resolved,
		values: []interface{}{value},
	}
	g.byName[name] = n
	g.nodes = append(g.nodes, n)
	g.invalidateDependents(name)
}

// Has reports whether name is registered, either as a property or a leaf.
func (g *Graph) Has(name string) bool {
	_, ok := g.byName[name]
	return ok
}

// Get resolves the named property, recursively resolving any of its inputs
// that are not yet resolved, and returns the cached value. Repeated calls
// without an intervening input change return the identical value, not
// merely an equal one.
func (g *Graph) Get(name string) (interface{}, error) {
	n, ok := g.byName[name]
	if !ok {
		return nil, &UnknownPropertyError{Name: name}
	}
	if err := g.resolve(n, nil); err != nil {
		return nil, err
	}
	return n.value(name), nil
}

// resolve brings n to the resolved state. stack holds the names of the
// properties currently being resolved, outermost first, for cycle
// reporting.
func (g *Graph) resolve(n *node, stack []string) error {
	switch n.state {
	case resolved:
		return nil
	case failed:
		return n.err
	case resolving:
		return &CyclicDependencyError{
			Property: n.prop.Provides[0],
			Stack:    append(stack, n.prop.Provides[0]),
		}
	}
	n.state = resolving
	stack = append(stack, n.prop.Provides[0])

	inputs := make([]interface{}, len(n.prop.Inputs))
	for i, name := range n.prop.Inputs {
		in, ok := g.byName[name]
		if !ok {
			n.state = unresolved
			return &UnknownPropertyError{Name: name}
		}
		if err := g.resolve(in, stack); err != nil {
			// A failed input aborts this branch only; siblings already
			// resolved stay cached.
			n.state = unresolved
			return err
		}
		inputs[i] = in.value(name)
	}

	values, err := n.prop.Calculate(inputs...)
	if err != nil {
		n.state = failed
		n.err = err
		return err
	}
	if len(values) != len(n.prop.Provides) {
		n.state = failed
		n.err = fmt.Errorf("plasma: property %s returned %d values, expected %d",
			n.prop.Provides[0], len(values), len(n.prop.Provides))
		return n.err
	}
	n.values = values
	n.state = resolved
	return nil
}

// invalidateDependents marks every property that transitively consumes name
// as unresolved. The next Get re-runs only the invalidated subgraph;
// untouched branches keep their cached values.
func (g *Graph) invalidateDependents(name string) {
	for _, n := range g.dependents[name] {
		if n.state == unresolved {
			continue // dependents already invalidated through this node
		}
		n.state = unresolved
		n.values = nil
		n.err = nil
		for _, p := range n.prop.Provides {
			g.invalidateDependents(p)
		}
	}
}
