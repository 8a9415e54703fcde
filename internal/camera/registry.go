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

package camera

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Creates a sensor from its JSON description
type Factory func(raw json.RawMessage) (Sensor, error)

// Sensor model factories by model name. Constructed explicitly and passed to the project loader.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Registry with all built-in sensor models
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("collinear", NewCollinearFromJSON)
	return r
}

func (r *Registry) Register(model string, f Factory) error {
	if _, ok := r.factories[model]; ok {
		return fmt.Errorf("camera: model %q already registered", model)
	}
	r.factories[model] = f
	return nil
}

func (r *Registry) New(model string, raw json.RawMessage) (Sensor, error) {
	f, ok := r.factories[model]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownModel, model)
	}
	return f(raw)
}

func (r *Registry) Models() []string {
	res := make([]string, 0, len(r.factories))
	for m := range r.factories {
		res = append(res, m)
	}
	sort.Strings(res)
	return res
}
