// killswitch is the operator tool for the circuit breaker sentinel. It is
// the cross-process path: engaging here halts every engine watching the
// same sentinel file on its next gate check.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mt5crs/gateway/internal/breaker"
)

func main() {
	var (
		sentinel  = flag.String("sentinel", filepath.Join(os.TempDir(), "mt5_circuit_breaker.lock"), "sentinel file path")
		engage    = flag.Bool("engage", false, "engage the breaker (halt trading)")
		disengage = flag.Bool("disengage", false, "disengage the breaker (resume trading)")
		status    = flag.Bool("status", false, "print breaker status")
		reason    = flag.String("reason", "manual_killswitch", "engagement reason")
		meta      = flag.String("meta", "", "engagement metadata as comma-separated k=v pairs")
	)
	flag.Parse()

	if !*engage && !*disengage && !*status {
		flag.Usage()
		os.Exit(2)
	}

	b := breaker.New(*sentinel)

	switch {
	case *engage:
		if b.Engage(*reason, parseMeta(*meta)) {
			fmt.Println("engaged")
		} else {
			fmt.Println("already engaged")
		}
	case *disengage:
		if b.Disengage() {
			fmt.Println("disengaged")
		} else {
			fmt.Println("already safe")
		}
	}

	out, _ := json.MarshalIndent(b.Status(), "", "  ")
	fmt.Println(string(out))
}

func parseMeta(s string) map[string]any {
	if s == "" {
		return nil
	}
	m := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}
