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
	"sync"

	"go.uber.org/multierr"
)

// Runs work(i) for i in [0,n) on at most maxThreads goroutines and waits for all of them.
// Errors from all failing items are combined.
func parallelFor(n, maxThreads int, work func(i int) error) (err error) {
	if n == 0 {
		return nil
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	limiter := make(chan bool, maxThreads)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		limiter <- true
		go func(i int) {
			defer func() { <-limiter }()
			errs <- work(i)
		}(i)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for i := 0; i < n; i++ { // collect errors
		err = multierr.Append(err, <-errs)
	}
	return err
}

// Pool of constant sized float64 arrays, to reduce allocation of per iteration scratch space
var poolFloat64 = struct {
	sync.RWMutex
	m map[int]*sync.Pool
}{m: make(map[int]*sync.Pool)}

// Returns a pool for float64 arrays of the given size
func getSizedPoolFloat64(size int) *sync.Pool {
	poolFloat64.RLock()
	pool := poolFloat64.m[size]
	poolFloat64.RUnlock()
	if pool == nil {
		poolFloat64.Lock()
		if pool = poolFloat64.m[size]; pool == nil {
			pool = &sync.Pool{
				New: func() interface{} {
					return make([]float64, size)
				},
			}
			poolFloat64.m[size] = pool
		}
		poolFloat64.Unlock()
	}
	return pool
}

// Retrieves an array of the given size from the pool. Contents are undefined.
func getFloat64s(size int) []float64 {
	return getSizedPoolFloat64(size).Get().([]float64)
}

// Returns an array to the pool
func putFloat64s(arr []float64) {
	getSizedPoolFloat64(cap(arr)).Put(arr[:cap(arr)])
}
