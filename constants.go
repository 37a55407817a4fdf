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

import "math"

// Physical constants [CGS units].
const (
	kB            = 1.38064852e-16 // erg/K, Boltzmann constant
	hPlanck       = 6.62607004e-27 // erg·s, Planck constant
	mElectron     = 9.10938356e-28 // g, electron mass
	cLight        = 2.99792458e10  // cm/s, speed of light
	eCharge       = 4.80320425e-10 // esu, elementary charge
	ergPerEV      = 1.6021766208e-12
	gramsPerAMU   = 1.660539040e-24
	secondsPerDay = 86400.
)

// sobolevCoefficient is the classical line-interaction cross section
// bundle π e²/(mₑ c) appearing in the Sobolev optical depth.
var sobolevCoefficient = math.Pi * eCharge * eCharge / (mElectron * cLight)
