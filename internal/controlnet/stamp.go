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

import (
	"os"
	"time"
)

// Clock used for lazy date stamping. Tests may replace it.
var now = time.Now

// Change stamp of a point or measure. Mutations clear it, queries stamp it lazily
// with the current user and time.
type stamp struct {
	chooser  string
	dateTime string
}

func (s *stamp) reset() {
	s.chooser, s.dateTime = "", ""
}

func (s *stamp) chooserName() string {
	if s.chooser == "" {
		s.chooser = userName()
	}
	return s.chooser
}

func (s *stamp) date() string {
	if s.dateTime == "" {
		s.dateTime = now().UTC().Format("2006-01-02T15:04:05")
	}
	return s.dateTime
}

func userName() string {
	for _, k := range []string{"USER", "USERNAME", "LOGNAME"} {
		if u := os.Getenv(k); u != "" {
			return u
		}
	}
	return "unknown"
}
