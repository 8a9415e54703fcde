// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package controlnet

import "errors"

// Status results of local, expected failures. Callers check these with errors.Is
// and decide per point or measure; none of them aborts a bundle run by itself.
var (
	ErrPointLocked           = errors.New("controlnet: point is edit locked")
	ErrMeasureLocked         = errors.New("controlnet: measure is edit locked")
	ErrDuplicateSerialNumber = errors.New("controlnet: point already has a measure for this serial number")
	ErrDuplicateReference    = errors.New("controlnet: point already has a reference measure")
	ErrInvalidType           = errors.New("controlnet: invalid type for this operation")
	ErrMeasureNotFound       = errors.New("controlnet: measure not found")
	ErrPointNotFound         = errors.New("controlnet: point not found")
	ErrDuplicatePointID      = errors.New("controlnet: network already has a point with this id")
	ErrNoValidMeasures       = errors.New("controlnet: no valid measures")
	ErrNoAprioriCoordinates  = errors.New("controlnet: point has no apriori coordinates")
	ErrNoSensor              = errors.New("controlnet: no sensor for serial number")
)
