// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ph2-daq starts a TDAQ server reading out the boards of a setup.
//
// Example:
//
//	$> ph2-daq -setup ./setup.yaml -metrics :9100 -id ph2-daq -rc-addr :44000
package main // import "github.com/go-lpc/ph2/cmd/ph2-daq"

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sbinet/pmon"

	"github.com/go-lpc/ph2"
	"github.com/go-lpc/ph2/daq"
)

var (
	setup   = flag.String("setup", "setup.yaml", "path to the hardware description of the setup")
	dryRun  = flag.Bool("dry-run", false, "run against an in-memory emulation of the setup")
	metrics = flag.String("metrics", "", "[ip]:port where to serve Prometheus metrics")
	doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
	doFreq  = flag.Duration("freq", 1*time.Second, "pmon frequency")
)

func main() {
	cmd := flags.New()

	log.SetPrefix("ph2-daq: ")
	log.SetFlags(0)

	if v, _ := ph2.Version(); v != "" {
		log.Printf("version: %s", v)
	}

	if *doMon {
		stop, err := monitor("ph2-daq-pmon.log", *doFreq)
		if err != nil {
			log.Fatalf("could not start pmon: %+v", err)
		}
		defer stop()
	}

	if *metrics != "" {
		go serveMetrics(*metrics)
	}

	dev := daq.New(*setup, options(*dryRun)...)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/events", dev.Events)

	srv.RunHandle(dev.Run)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

func options(dry bool) []daq.Option {
	if !dry {
		return nil
	}
	return []daq.Option{daq.WithLinkOpener(daq.DryRunLink)}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Printf("serving metrics on %q...", addr)
	err := http.ListenAndServe(addr, mux)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("could not serve metrics: %+v", err)
	}
}

// monitor starts monitoring the resources of the current process.
// The returned function stops the monitoring.
func monitor(fname string, freq time.Duration) (func(), error) {
	p, err := pmon.Monitor(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("could not monitor process: %w", err)
	}
	f, err := os.Create(fname)
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run pmon: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop monitoring: %+v", err)
		}
		f.Close()
	}, nil
}
