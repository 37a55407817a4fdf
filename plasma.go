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

// Package plasma computes the physical state of the ionized ejecta in each
// spatial cell of a radiative transfer simulation: ionization balance,
// atomic level populations, and line optical depths, derived from tabulated
// atomic data and the macroscopic state supplied by the simulation driver.
//
// The calculation is organized as a dependency graph of named properties.
// Each property declares the inputs it needs and produces one value; the
// graph resolves lazily, caches results, and recomputes only the subgraph
// downstream of a changed input. The one physically circular pair
// (ionization balance and electron density) is solved by fixed-point
// iteration inside a single composite property, keeping the graph acyclic.
package plasma

import (
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/spectralmodel/plasma/atom"
)

// ExcitationMode selects how level populations respond to the radiation
// field.
type ExcitationMode int

const (
	// LTEExcitation populates levels with pure Boltzmann statistics at
	// the radiation temperature.
	LTEExcitation ExcitationMode = iota
	// DiluteLTEExcitation scales non-metastable level populations by the
	// dilution factor.
	DiluteLTEExcitation
)

// IonizationMode selects the ionization balance coefficient.
type IonizationMode int

const (
	// LTEIonization uses the general Saha factor directly.
	LTEIonization IonizationMode = iota
	// NebularIonization applies the zeta recombination correction and the
	// delta radiation field correction of Mazzali & Lucy (1993).
	NebularIonization
)

// ModelParameters is the macroscopic state of the ejecta for one
// evaluation pass, supplied per cell by the simulation driver. All arrays
// share the canonical cell ordering fixed at simulation setup.
type ModelParameters struct {
	TRad           []float64 // radiation temperature [K]
	DilutionFactor []float64 // radiation field dilution factor w
	Density        []float64 // mass density [g/cm³]

	// Abundance holds elemental mass fractions per cell, keyed by atomic
	// number.
	Abundance map[int][]float64

	// TimeExplosion is the time since explosion [s].
	TimeExplosion *unit.Unit

	// JBlues optionally supplies the mean intensity at each line's blue
	// edge (one row per selected line). When nil, a dilute blackbody
	// estimate is used until the driver supplies Monte Carlo estimates.
	JBlues *sparse.DenseArray

	// LinkTRadTElectron sets T_e = link·T_rad. Zero means the default
	// 0.9.
	LinkTRadTElectron float64

	// Chi0Species selects the reference ionization energy χ₀ of the
	// radiation field correction. The zero value means the default, Ca III
	// (20,2).
	Chi0Species atom.Species

	// DeltaOverride, if non-nil, replaces the computed radiation field
	// correction with a constant.
	DeltaOverride *float64
}

const defaultLinkTRadTElectron = 0.9

var defaultChi0Species = atom.Species{AtomicNumber: 20, IonNumber: 2}

// thermalDeltaRatio is the T_e/T_rad value at or above which the radiation
// field correction treats the field as thermal.
const thermalDeltaRatio = 1.0

// StateSnapshot is a copy of the externally driven plasma state and the
// resulting electron density for one outer iteration.
type StateSnapshot struct {
	TRad              []float64
	DilutionFactor    []float64
	ElectronDensities []float64
}

// Plasma is the assembled property graph for one simulation, together
// with the driver-facing surface to query properties and feed updated
// radiation field estimates back in.
type Plasma struct {
	graph  *Graph
	data   *atom.Data
	nCells int

	excitation ExcitationMode
	ionization IonizationMode
	conv       ConvergenceOptions
	log        logrus.FieldLogger

	maserCount int
	history    []StateSnapshot
}

// Option configures the plasma assembly.
type Option func(*Plasma)

// WithLogger sets the diagnostic logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(p *Plasma) { p.log = log }
}

// WithExcitation selects the excitation mode.
func WithExcitation(m ExcitationMode) Option {
	return func(p *Plasma) { p.excitation = m }
}

// WithIonization selects the ionization mode.
func WithIonization(m IonizationMode) Option {
	return func(p *Plasma) { p.ionization = m }
}

// WithConvergenceOptions tunes the ionization balance solver.
func WithConvergenceOptions(o ConvergenceOptions) Option {
	return func(p *Plasma) { p.conv = o }
}

// LTE assembles a pure LTE plasma: Boltzmann excitation and the
// uncorrected Saha ionization balance.
func LTE() Option {
	return func(p *Plasma) {
		p.excitation = LTEExcitation
		p.ionization = LTEIonization
	}
}

// Nebular assembles the dilute-radiation-field plasma: dilution-scaled
// excitation and the zeta/delta-corrected ionization balance.
func Nebular() Option {
	return func(p *Plasma) {
		p.excitation = DiluteLTEExcitation
		p.ionization = NebularIonization
	}
}

// New assembles the property graph for the given atomic dataset and model
// parameters. The default assembly is the nebular plasma.
func New(data *atom.Data, params ModelParameters, opts ...Option) (*Plasma, error) {
	p := &Plasma{
		data:       data,
		excitation: DiluteLTEExcitation,
		ionization: NebularIonization,
		log:        logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(p)
	}
	if err := p.checkParameters(&params); err != nil {
		return nil, err
	}
	p.graph = NewGraph(p.log)
	p.setLeaves(params)

	properties := []Property{
		SelectedAtoms(),
		BetaRadiation(),
		GElectron(),
		ElectronTemperature(),
		BetaElectron(),
		AtomicSelection(),
		Levels(),
		Lines(),
		IonizationData(),
		AtomicMass(),
		ZetaData(),
		Ions(),
		PhiSpecies(),
		LinesLowerLevelIndex(),
		LinesUpperLevelIndex(),
		NumberDensity(),
		PartitionFunction(),
		PhiGeneral(),
		IonNumberDensity(p.conv, p.log),
		LevelPopulationFraction(),
		LevelNumberDensity(),
		StimulatedEmissionFactor(p.log, &p.maserCount),
		TauSobolev(),
		BetaSobolev(),
		TransitionProbabilities(),
	}
	switch p.excitation {
	case LTEExcitation:
		properties = append(properties, LevelBoltzmannFactorLTE())
	case DiluteLTEExcitation:
		properties = append(properties, LevelBoltzmannFactorDiluteLTE())
	default:
		return nil, fmt.Errorf("plasma: unknown excitation mode %d", p.excitation)
	}
	switch p.ionization {
	case LTEIonization:
		properties = append(properties, PhiSahaLTE())
	case NebularIonization:
		properties = append(properties,
			RadiationFieldCorrection(thermalDeltaRatio, params.DeltaOverride),
			PhiSahaNebular(p.log))
	default:
		return nil, fmt.Errorf("plasma: unknown ionization mode %d", p.ionization)
	}
	if params.JBlues == nil {
		properties = append(properties, JBluesDiluteBlackbody())
	}
	for _, prop := range properties {
		if err := p.graph.Register(prop); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Plasma) checkParameters(params *ModelParameters) error {
	p.nCells = len(params.TRad)
	if p.nCells == 0 {
		return &InvalidInputError{Property: "plasma", Input: "t_rad",
			Reason: "no cells"}
	}
	for name, a := range map[string][]float64{
		"w":       params.DilutionFactor,
		"density": params.Density,
	} {
		if len(a) != p.nCells {
			return &InvalidInputError{Property: "plasma", Input: name,
				Reason: "cell-index length mismatch"}
		}
	}
	for z, a := range params.Abundance {
		if len(a) != p.nCells {
			return &InvalidInputError{Property: "plasma",
				Input:  fmt.Sprintf("abundance[%d]", z),
				Reason: "cell-index length mismatch"}
		}
	}
	if params.TimeExplosion == nil {
		return &InvalidInputError{Property: "plasma", Input: "time_explosion",
			Reason: "missing"}
	}
	if err := params.TimeExplosion.Check(unit.Second); err != nil {
		return &InvalidInputError{Property: "plasma", Input: "time_explosion",
			Reason: err.Error()}
	}
	if params.TimeExplosion.Value() <= 0 {
		return &InvalidInputError{Property: "plasma", Input: "time_explosion",
			Reason: "not positive"}
	}
	if params.LinkTRadTElectron == 0 {
		params.LinkTRadTElectron = defaultLinkTRadTElectron
	}
	if (params.Chi0Species == atom.Species{}) {
		params.Chi0Species = defaultChi0Species
	}
	return nil
}

func (p *Plasma) setLeaves(params ModelParameters) {
	p.graph.SetInput("atomic_data", p.data)
	p.graph.SetInput("t_rad", params.TRad)
	p.graph.SetInput("w", params.DilutionFactor)
	p.graph.SetInput("density", params.Density)
	p.graph.SetInput("abundance", params.Abundance)
	p.graph.SetInput("time_explosion", params.TimeExplosion.Value())
	p.graph.SetInput("link_t_rad_t_electron", params.LinkTRadTElectron)
	p.graph.SetInput("chi_0_species", params.Chi0Species)
	if params.JBlues != nil {
		p.graph.SetInput("j_blues", params.JBlues)
	}
}

// Get resolves and returns the named property, running the full transitive
// resolution if needed.
func (p *Plasma) Get(name string) (interface{}, error) {
	return p.graph.Get(name)
}

// ElectronDensities returns the converged electron density per cell
// [1/cm³].
func (p *Plasma) ElectronDensities() ([]float64, error) {
	v, err := p.graph.Get("electron_densities")
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

// IonNumberDensities returns the ion number density table [1/cm³], with
// one row per ion in ion-list order.
func (p *Plasma) IonNumberDensities() (*sparse.DenseArray, error) {
	v, err := p.graph.Get("ion_number_density")
	if err != nil {
		return nil, err
	}
	return v.(*sparse.DenseArray), nil
}

// TauSobolev returns the Sobolev optical depth table, one row per line.
func (p *Plasma) TauSobolev() (*sparse.DenseArray, error) {
	v, err := p.graph.Get("tau_sobolev")
	if err != nil {
		return nil, err
	}
	return v.(*sparse.DenseArray), nil
}

// TransitionProbabilities returns the normalized radiative transition
// probability table.
func (p *Plasma) TransitionProbabilities() (*TransitionProbabilityTable, error) {
	v, err := p.graph.Get("transition_probabilities")
	if err != nil {
		return nil, err
	}
	return v.(*TransitionProbabilityTable), nil
}

// MaserWarnings reports how many inverted line populations have been
// clipped since assembly.
func (p *Plasma) MaserWarnings() int {
	return p.maserCount
}

// Update replaces the full set of driver-supplied parameters, invalidating
// every property downstream of a changed leaf. The cell count is fixed at
// assembly and must not change.
func (p *Plasma) Update(params ModelParameters) error {
	if len(params.TRad) != p.nCells {
		return &InvalidInputError{Property: "plasma", Input: "t_rad",
			Reason: "cell count changed after assembly"}
	}
	if err := p.checkParameters(&params); err != nil {
		return err
	}
	p.setLeaves(params)
	return nil
}

// UpdateRadiationField feeds updated radiation field estimates from the
// driver back into the graph, invalidating exactly the dependent subgraph.
// Nil arguments leave the corresponding leaf untouched. A non-nil jBlues
// replaces the dilute blackbody estimate if the plasma was assembled
// without external mean intensities.
func (p *Plasma) UpdateRadiationField(tRad, w []float64, jBlues *sparse.DenseArray) error {
	if tRad != nil {
		if len(tRad) != p.nCells {
			return &InvalidInputError{Property: "plasma", Input: "t_rad",
				Reason: "cell-index length mismatch"}
		}
		p.graph.SetInput("t_rad", tRad)
	}
	if w != nil {
		if len(w) != p.nCells {
			return &InvalidInputError{Property: "plasma", Input: "w",
				Reason: "cell-index length mismatch"}
		}
		p.graph.SetInput("w", w)
	}
	if jBlues != nil {
		shape := jBlues.GetShape()
		if len(shape) != 2 || shape[1] != p.nCells {
			return &InvalidInputError{Property: "plasma", Input: "j_blues",
				Reason: "table cell count mismatch"}
		}
		p.graph.SetInput("j_blues", jBlues)
	}
	return nil
}

// StoreState appends a snapshot of the current radiation field and
// electron density to the iteration history, for convergence diagnostics
// across outer iterations.
func (p *Plasma) StoreState() error {
	tRad, err := p.graph.Get("t_rad")
	if err != nil {
		return err
	}
	w, err := p.graph.Get("w")
	if err != nil {
		return err
	}
	nE, err := p.ElectronDensities()
	if err != nil {
		return err
	}
	s := StateSnapshot{
		TRad:              make([]float64, p.nCells),
		DilutionFactor:    make([]float64, p.nCells),
		ElectronDensities: make([]float64, p.nCells),
	}
	copy(s.TRad, tRad.([]float64))
	copy(s.DilutionFactor, w.([]float64))
	copy(s.ElectronDensities, nE)
	p.history = append(p.history, s)
	return nil
}

// History returns the stored per-iteration snapshots, oldest first.
func (p *Plasma) History() []StateSnapshot {
	return p.history
}

// DampedConverge mixes a newly estimated quantity with its previous value,
// returning old + damping·(new − old). Drivers use it to stabilize the
// outer temperature/dilution iteration.
func DampedConverge(old, estimate []float64, damping float64) []float64 {
	out := make([]float64, len(old))
	copy(out, old)
	diff := make([]float64, len(old))
	floats.SubTo(diff, estimate, old)
	floats.AddScaled(out, damping, diff)
	return out
}
