/*
	wows-replays: World of Warships replay parsing library (golang)
	Copyright (C) 2026 lkolbly

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	uploadsActive   prometheus.Gauge
	uploadsFinished prometheus.Counter
	subscribers     prometheus.Gauge
	fragments       prometheus.Counter
	bytesRelayed    prometheus.Counter
	packetsDecoded  prometheus.Counter
	decodeErrors    prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		uploadsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamserver",
			Name:      "uploads_active",
			Help:      "Upload connections currently open.",
		}),
		uploadsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "streamserver",
			Name:      "uploads_finished_total",
			Help:      "Uploads that reached game over.",
		}),
		subscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamserver",
			Name:      "subscribers",
			Help:      "Subscriber connections currently open.",
		}),
		fragments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "streamserver",
			Name:      "fragments_total",
			Help:      "Replay fragments relayed.",
		}),
		bytesRelayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "streamserver",
			Name:      "bytes_relayed_total",
			Help:      "Decompressed replay bytes relayed.",
		}),
		packetsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "streamserver",
			Name:      "packets_decoded_total",
			Help:      "Packets decoded from live uploads.",
		}),
		decodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "streamserver",
			Name:      "decode_errors_total",
			Help:      "Packets that failed to decode from live uploads.",
		}),
	}
}
