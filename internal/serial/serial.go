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

// Package serial maps image serial numbers and observation numbers to dense indices.
package serial

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrDuplicate = errors.New("serial: duplicate serial number")
	ErrNotFound  = errors.New("serial: serial number not found")
)

type entry struct {
	serial      string
	fileName    string
	observation string
}

// Ordered list of image serial numbers with their file names and observation numbers
type SerialNumberList struct {
	entries []entry
	index   map[string]int
}

func NewSerialNumberList() *SerialNumberList {
	return &SerialNumberList{index: map[string]int{}}
}

// Appends an image. An empty observation number makes the image its own observation.
func (l *SerialNumberList) Add(serial, fileName, observation string) error {
	if _, ok := l.index[serial]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, serial)
	}
	if observation == "" {
		observation = serial
	}
	l.index[serial] = len(l.entries)
	l.entries = append(l.entries, entry{serial, fileName, observation})
	return nil
}

func (l *SerialNumberList) Size() int { return len(l.entries) }

func (l *SerialNumberList) Has(serial string) bool {
	_, ok := l.index[serial]
	return ok
}

// Returns the index of the serial number, or -1 if absent
func (l *SerialNumberList) Index(serial string) int {
	if i, ok := l.index[serial]; ok {
		return i
	}
	return -1
}

func (l *SerialNumberList) Serial(i int) string   { return l.entries[i].serial }
func (l *SerialNumberList) FileName(i int) string { return l.entries[i].fileName }

func (l *SerialNumberList) FileNameOf(serial string) (string, error) {
	i, ok := l.index[serial]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	return l.entries[i].fileName, nil
}

func (l *SerialNumberList) ObservationNumber(serial string) (string, error) {
	i, ok := l.index[serial]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	return l.entries[i].observation, nil
}

// Returns all serial numbers in list order
func (l *SerialNumberList) Serials() []string {
	res := make([]string, len(l.entries))
	for i, e := range l.entries {
		res[i] = e.serial
	}
	return res
}

// Dense indices of observations, each grouping one or more images which share
// a single set of exterior orientation parameters
type ObservationNumberList struct {
	observations []string
	members      [][]string
	byObs        map[string]int
	bySerial     map[string]int
}

// Groups the images of the list by their observation number, in first-seen order
func NewObservationNumberList(snl *SerialNumberList) *ObservationNumberList {
	l := newObservationNumberList()
	for _, e := range snl.entries {
		l.add(e.serial, e.observation)
	}
	return l
}

// Makes every image of the list its own observation
func NewImageObservationList(snl *SerialNumberList) *ObservationNumberList {
	l := newObservationNumberList()
	for _, e := range snl.entries {
		l.add(e.serial, e.serial)
	}
	return l
}

func newObservationNumberList() *ObservationNumberList {
	return &ObservationNumberList{byObs: map[string]int{}, bySerial: map[string]int{}}
}

func (l *ObservationNumberList) add(serial, observation string) {
	i, ok := l.byObs[observation]
	if !ok {
		i = len(l.observations)
		l.byObs[observation] = i
		l.observations = append(l.observations, observation)
		l.members = append(l.members, nil)
	}
	l.members[i] = append(l.members[i], serial)
	l.bySerial[serial] = i
}

func (l *ObservationNumberList) Size() int { return len(l.observations) }

func (l *ObservationNumberList) Observation(i int) string { return l.observations[i] }

func (l *ObservationNumberList) ObservationIndex(serial string) (int, error) {
	i, ok := l.bySerial[serial]
	if !ok {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	return i, nil
}

// Returns the serial numbers of all images in the observation, sorted
func (l *ObservationNumberList) SerialsInObservation(observation string) []string {
	i, ok := l.byObs[observation]
	if !ok {
		return nil
	}
	res := append([]string(nil), l.members[i]...)
	sort.Strings(res)
	return res
}

// Returns the serial numbers of the observation with the given index, in list order
func (l *ObservationNumberList) Members(i int) []string {
	return l.members[i]
}
