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

// Package rest exposes bundle adjustment over HTTP.
package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mlnoga/jigsaw/internal/bundle"
	"github.com/mlnoga/jigsaw/internal/camera"
	"github.com/mlnoga/jigsaw/internal/project"
	"github.com/mlnoga/jigsaw/web"
)

// Separates the streamed log from the trailing result JSON in bundle responses
const ResultMarker = "=== RESULT ===\n"

type server struct {
	reg *camera.Registry
}

// Creates the HTTP router. Sensor models are resolved through the given registry.
func NewRouter(reg *camera.Registry) *gin.Engine {
	s := &server{reg: reg}
	r := gin.Default()
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/models", s.getModels)
			v1.POST("/simulate", postSimulate)
			v1.POST("/bundle", s.postBundle)
		}
	}
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func Serve(addr string, reg *camera.Registry) error {
	return NewRouter(reg).Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func (s *server) getModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models": s.reg.Models(),
	})
}

func printJSON(logWriter io.Writer, prefix, suffix string, v interface{}) error {
	m, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return err
}

// Generates a simulated project from the posted options, with defaults for missing entries
func postSimulate(c *gin.Context) {
	opt := project.NewSimulateOptionsDefault()
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(opt); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	doc, err := project.Simulate(opt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

// Flushes after every write, so the client sees the log as it happens
type flushWriter struct {
	w gin.ResponseWriter
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.w.Flush()
	return n, err
}

// Runs the posted project. Streams the log as plain text, then the result marker and the result JSON.
func (s *server) postBundle(c *gin.Context) {
	var doc project.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := project.FromDocument(&doc, s.reg)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := p.Settings.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/plain; charset=utf-8")
	c.Writer.WriteHeader(http.StatusOK)
	logWriter := flushWriter{c.Writer}

	ctx := bundle.NewContext(logWriter)
	engine, err := bundle.NewEngine(ctx, p.Settings, p.Net, p.Serials, p.Sensors)
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}
	fmt.Fprintf(logWriter, "%s\n", p)

	res, err := engine.Solve(c.Request.Context())
	if err != nil {
		fmt.Fprintf(logWriter, "error: %s\n", err.Error())
		return
	}
	if err := printJSON(logWriter, ResultMarker, "\n", res); err != nil {
		fmt.Fprintf(logWriter, "error printing result: %s\n", err.Error())
	}
}
