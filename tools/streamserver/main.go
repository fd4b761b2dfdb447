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

// Command streamserver relays in-progress replay uploads to live
// subscribers. Uploaders connect to /upload, viewers to /subscribe; both
// speak websockets. Finished uploads are recorded in a SQLite index.
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lkolbly/wows-replays-sub000/broker"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:3000", "address to listen on")
	dbPath := flag.String("db", "replays.db", "path to the replay index database")
	logPath := flag.String("log", "", "log file (rotated); empty for console only")
	assets := flag.String("assets", "streamserver/assets", "static assets directory")
	flag.Parse()

	console := zerolog.ConsoleWriter{Out: os.Stderr}
	if *logPath != "" {
		rotated := &lumberjack.Logger{
			Filename:   *logPath,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
		}
		log.Logger = log.Output(zerolog.MultiLevelWriter(console, rotated))
	} else {
		log.Logger = log.Output(console)
	}

	index, err := openIndex(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dbPath).Msg("opening replay index")
	}
	defer index.Close()

	srv := &server{
		broker:  broker.New(),
		index:   index,
		metrics: newMetrics(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/upload", srv.handleUpload)
	r.Get("/subscribe", srv.handleSubscribe)
	r.Get("/replays", srv.handleReplays)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/*", http.FileServer(http.Dir(*assets)))

	log.Info().Str("listen", *listen).Msg("listening")
	if err := http.ListenAndServe(*listen, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
