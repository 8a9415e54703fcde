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

// Package logging provides the log writer handed to long running operations.
package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Log writer. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines.
type Tee struct {
	mu     sync.Mutex
	out    io.Writer
	file   *bufio.Writer
	fileOS *os.File
}

// Creates a log writer to stdout, and to the given file unless the name is empty
func NewTee(fileName string) (*Tee, error) {
	return NewTeeTo(os.Stdout, fileName)
}

// Creates a log writer to out, and to the given file unless the name is empty
func NewTeeTo(out io.Writer, fileName string) (*Tee, error) {
	t := &Tee{out: out}
	if fileName == "" {
		return t, nil
	}
	if err := t.AlsoToFile(fileName); err != nil {
		return nil, err
	}
	return t, nil
}

// Enables logging to file, closing any previous log file
func (t *Tee) AlsoToFile(fileName string) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err = t.closeFile(); err != nil {
		return err
	}
	t.fileOS, err = os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	t.file = bufio.NewWriter(t.fileOS)
	return nil
}

func (t *Tee) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err = t.out.Write(p)
	if err != nil || t.file == nil {
		return n, err
	}
	return t.file.Write(p)
}

func (t *Tee) Printf(format string, args ...interface{}) {
	fmt.Fprintf(t, format, args...)
}

// Prints, flushes the log file and exits with status 1
func (t *Tee) Fatalf(format string, args ...interface{}) {
	t.Printf(format, args...)
	t.Close()
	os.Exit(1)
}

func (t *Tee) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	if err := t.file.Flush(); err != nil {
		return err
	}
	return t.fileOS.Sync()
}

func (t *Tee) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeFile()
}

func (t *Tee) closeFile() error {
	if t.file == nil {
		return nil
	}
	err := t.file.Flush()
	if cerr := t.fileOS.Close(); err == nil {
		err = cerr
	}
	t.file, t.fileOS = nil, nil
	return err
}
