package main

import (
	"flag"
	"net/http"

	"github.com/fatih/color"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cowrite/scribe/hub"
)

func main() {
	// Parse flags.
	addr := flag.String("addr", ":9000", "Server's network address")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	metrics := hub.NewMetrics(prometheus.DefaultRegisterer)
	registry := hub.NewRegistry(logger, metrics)

	r := mux.NewRouter()
	r.HandleFunc("/ws/{doc}", registry.Handler())
	r.Handle("/metrics", promhttp.Handler())

	// Start the server.
	color.Green("Starting scribe server on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Fatalf("Error starting server, exiting: %v", err)
	}
}
