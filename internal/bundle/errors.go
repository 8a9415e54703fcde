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

package bundle

import (
	"fmt"

	"github.com/pkg/errors"
)

// Classes of fatal bundle errors. Returned errors wrap one of these with context,
// so errors.Is recovers the class.
var (
	ErrConfiguration = errors.New("bundle: configuration error")
	ErrLinearization = errors.New("bundle: linearization error")
	ErrNumerical     = errors.New("bundle: numerical error")
	ErrCancelled     = errors.New("bundle: cancelled")
)

// Iteration state of a bundle run
type State int

const (
	StateInitializing State = iota
	StateFormingNormals
	StateSolving
	StateApplyingCorrections
	StateCheckingConvergence
	StateErrorPropagation
	StateDone
	StateFailed
)

var stateNames = []string{"Initializing", "FormingNormals", "Solving", "ApplyingCorrections",
	"CheckingConvergence", "ErrorPropagation", "Done", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal outcome of a run that did not fail
type Status int

const (
	StatusConverged Status = iota
	StatusMaxIterations
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "Converged"
	case StatusMaxIterations:
		return "MaxIterationsReached"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
