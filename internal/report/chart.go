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

package report

import (
	"io"
	"math"

	"github.com/mlnoga/jigsaw/internal/bundle"
)

// Writes an HTML page charting sigma0 and the residual RMS per iteration
func WriteIterationsHTML(w io.Writer, history []bundle.IterationStatistics) error {
	ew := &errWriter{w: w}
	ew.printf("%s", iterationsHeader)
	ew.printf("[  ['Iteration','Sigma0','RMS x','RMS y','RMS xy','Rejected']\n")
	for _, it := range history {
		ew.printf("  ,[%d,%g,%g,%g,%g,%d]\n", it.Iteration, finite(it.Sigma0), finite(it.RMSx), finite(it.RMSy), finite(it.RMSxy), it.NumRejected)
	}
	ew.printf("]")
	ew.printf("%s", iterationsTrailer)
	return ew.err
}

// JavaScript has no literal for NaN or infinities in numeric arrays
func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

const iterationsHeader = `<html>
  <head>
    <script type="text/javascript" src="https://www.gstatic.com/charts/loader.js"></script>
  </head>
  <body>
    <table height="100%" width="100%"><tr height="100%">
      <td width="90%"><div id="iterationsChart" style="width: 100%; height: 100%"></div></td>
      <td width="10%"><form><input type="checkbox" id="logScale" name="logScale" checked="true" onchange="drawChart()"><label for="logScale">Log scale</label></form></td>
    </tr></table>
  </body>
  <script type="text/javascript">
google.charts.load('current', {'packages':['corechart']});
google.charts.setOnLoadCallback(drawChart);

var dataArray =
`

const iterationsTrailer = `;

var logScaleCheckbox=document.getElementById('logScale');

function drawChart() {
  var data = google.visualization.arrayToDataTable(dataArray);
  var options = {
    title: 'Bundle adjustment iterations',
    curveType: 'none',
    legend: { position: 'bottom' },
    hAxis: { title: 'Iteration' },
    series: {
      0: {targetAxisIndex: 0},
      1: {targetAxisIndex: 1},
      2: {targetAxisIndex: 1},
      3: {targetAxisIndex: 1},
      4: {targetAxisIndex: 0, lineDashStyle: [4, 4]}
    },
    vAxes: {
      0: {title: 'Sigma0', logScale: logScaleCheckbox.checked},
      1: {title: 'RMS (pixels)', logScale: logScaleCheckbox.checked}
    }
  };
  var chart = new google.visualization.LineChart(document.getElementById('iterationsChart'));
  chart.draw(data, options);
}
  </script>
</html>
`
