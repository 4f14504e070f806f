// Package main provides a CLI tool to generate the OpenAPI specification for
// the Live Search API. Routes are registered against empty handlers, so no
// database or external service is needed to produce the spec.
//
// Usage:
//
//	go run ./cmd/livesearch-openapi > openapi.json
//	go run ./cmd/livesearch-openapi -yaml > openapi.yaml
//	go run ./cmd/livesearch-openapi -output openapi.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/livesearch-api/internal/http/handlers"
	"github.com/jmylchreest/livesearch-api/internal/http/routes"
	"github.com/jmylchreest/livesearch-api/internal/version"
)

func main() {
	outputFile := flag.String("output", "", "Output file path (default: stdout)")
	outputYAML := flag.Bool("yaml", false, "Output as YAML instead of JSON")
	baseURL := flag.String("base-url", "http://localhost:8001", "Base URL for the API server")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get().Short())
		return
	}

	router := chi.NewRouter()

	cfg := huma.DefaultConfig("Live Search API", "1.0.0")
	cfg.Info.Description = "Web research orchestration API: multi-provider search, scraping, vector retrieval, and LLM report synthesis with live progress streaming."
	cfg.Servers = []*huma.Server{{URL: *baseURL, Description: "API Server"}}
	api := humachi.New(router, cfg)

	// Handlers are never invoked; registration only reads their signatures.
	routes.Register(api, &handlers.Handlers{
		Research: &handlers.ResearchHandler{},
		Vector:   &handlers.VectorHandler{},
	})

	spec := api.OpenAPI()

	var data []byte
	var err error
	if *outputYAML {
		data, err = yaml.Marshal(spec)
	} else {
		data, err = json.MarshalIndent(spec, "", "  ")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling OpenAPI spec: %v\n", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing to file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "OpenAPI spec written to %s\n", *outputFile)
	} else {
		fmt.Print(string(data))
	}
}
