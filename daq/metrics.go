// Copyright 2024 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package daq

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	blocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ph2_daq_blocks_total",
			Help: "Number of data blocks read out from the boards",
		},
		[]string{"board"},
	)

	wordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ph2_daq_words_total",
			Help: "Number of 32-bit words read out from the boards",
		},
		[]string{"board"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ph2_daq_events_total",
			Help: "Number of events successfully decoded",
		},
		[]string{"board"},
	)

	decodeErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ph2_daq_decode_errors_total",
			Help: "Number of frames dropped because of framing errors",
		},
		[]string{"board"},
	)

	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ph2_daq_anomalies_total",
			Help: "Number of sub-block header anomalies seen while decoding",
		},
		[]string{"board"},
	)
)

func init() {
	prometheus.MustRegister(blocksTotal)
	prometheus.MustRegister(wordsTotal)
	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(decodeErrorsTotal)
	prometheus.MustRegister(anomaliesTotal)
}
