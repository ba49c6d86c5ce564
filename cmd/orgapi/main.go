// @title           Organization API
// @version         0.1.0
// @description     Organization records behind JWT authentication.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                        Authorization
// @description                 "Access token: 'Bearer {access}'"
//
// @tag.name         System
// @tag.description  Health, readiness and version probes.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated port (default: 9090), separate from the API listener. Configure it with ORGAPI_TELEMETRY_METRICS_PROMETHEUS_PORT. The path is always GET /metrics.

// Package main is the entry point for the orgapi binary.
package main

import (
	"log"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}
