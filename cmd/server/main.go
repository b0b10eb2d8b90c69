// Command server exposes the fork engine's operation table over a thin
// gin-based REST API, using a verb/path registration table so each
// operation is declared once and dispatched generically.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sheetforge/sheetforge"
	"github.com/sheetforge/sheetforge/internal/recalculator"
)

func main() {
	configPath := flag.String("config", "sheetforge.json", "path to the JSON configuration file")
	recalcBinary := flag.String("recalc-binary", "", "path to the external recalculation binary")
	addr := flag.String("addr", "localhost:8080", "address to listen on")
	flag.Parse()

	sheetforge.ConfigureLogging()

	cfg, err := sheetforge.LoadConfiguration(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sheetforge: loading configuration: %v\n", err)
		os.Exit(1)
	}

	registry := sheetforge.NewForkRegistry(cfg)
	gate := registry.NewRecalcGate(int64(cfg.Limits.MaxConcurrentRecalcs))

	var rc recalculator.Recalculator
	if *recalcBinary != "" {
		rc = recalculator.NewExecRecalculator(*recalcBinary, "external")
	} else {
		rc = recalculator.NewExecRecalculator("true", "noop")
	}

	s := &server{registry: registry, gate: gate, recalculator: rc}
	s.registerRoutes()

	go runTTLSweep(registry, cfg.Limits.TTLCheckPeriod)

	router := gin.Default()
	v1 := router.Group("/api/v1")
	for _, rm := range RestMethods() {
		switch rm.Verb {
		case GET:
			v1.GET(rm.Path, rm.Handler)
		case POST:
			v1.POST(rm.Path, rm.Handler)
		case DELETE:
			v1.DELETE(rm.Path, rm.Handler)
		default:
			panic(fmt.Sprintf("HTTP verb %d not supported", rm.Verb))
		}
	}

	if err := router.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "sheetforge: server exited: %v\n", err)
		os.Exit(1)
	}
}

// runTTLSweep periodically evicts expired forks. A zero period disables the sweep.
func runTTLSweep(registry *sheetforge.ForkRegistry, period time.Duration) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for range ticker.C {
		registry.EvictExpired(context.Background())
	}
}
