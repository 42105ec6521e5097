package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gpu-resource-cache/internal/app"
	"gpu-resource-cache/internal/config"
	"gpu-resource-cache/internal/export"
	"gpu-resource-cache/internal/logging"
)

func main() {
	// CLI flags
	configFile := flag.String("config", "", "Path to config file (.json or .yaml)")
	assetDir := flag.String("assets", "", "Asset directory (default: .)")
	atlasList := flag.String("atlases", "", "Atlas list file")
	outputDir := flag.String("output", "", "Output directory (default: <assets>/export)")
	size := flag.Int("size", 0, "Longest side of exported images (default: entry size)")
	workers := flag.Int("workers", 0, "Number of worker goroutines (default: NumCPU)")
	verbose := flag.Bool("v", false, "Debug logging")

	flag.Parse()

	// Load config
	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI flags override config file
	cfg.Resolve(config.Flags{
		AssetDir:  *assetDir,
		AtlasList: *atlasList,
		OutputDir: *outputDir,
		Size:      *size,
		Workers:   *workers,
	})
	// Export reads pixels on the CPU; no device is needed.
	cfg.Backend = config.BackendSoft
	cfg.AsyncLoading = false

	if cfg.AtlasList == "" {
		fmt.Fprintln(os.Stderr, "Error: no atlas list. Use -atlases or atlas_list in the config.")
		os.Exit(1)
	}

	a, err := app.Open(cfg, logging.New(os.Stderr, *verbose))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.LoadAtlases(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: atlas load: %v\n", err)
	}
	entries := export.Collect(a.Textures)
	if len(entries) == 0 {
		fmt.Println("No atlas entries to export.")
		return
	}

	fmt.Printf("Atlas entries → WebP\n")
	fmt.Printf("Entries: %d, Workers: %d\n", len(entries), cfg.Workers)
	fmt.Printf("Output: %s\n", cfg.OutputDir)
	fmt.Println("------------------------------------------------------------")

	start := time.Now()
	results := export.Run(export.Config{
		OutputDir: cfg.OutputDir,
		Size:      cfg.ExportSize,
		Workers:   cfg.Workers,
		Progress: func(done, total int, rate float64) {
			fmt.Printf("  [%d/%d] %.1f entries/sec\n", done, total, rate)
		},
	}, export.NewImages(a.Index), entries)

	elapsed := time.Since(start)
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Done in %.1fs\n", elapsed.Seconds())

	// Count results
	success, failed := 0, 0
	var errors []export.Result
	for _, r := range results {
		if r.Success {
			success++
		} else {
			failed++
			errors = append(errors, r)
		}
	}

	fmt.Printf("Exported: %d/%d\n", success, len(entries))

	if len(errors) > 0 {
		fmt.Printf("\nFailed (%d):\n", failed)
		for _, e := range errors[:min(20, len(errors))] {
			fmt.Printf("  %s: %s\n", e.Name, e.Error)
		}
	}

	// Write manifest
	manifestPath := filepath.Join(cfg.OutputDir, "manifest.json")
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if err := export.WriteManifest(manifestPath, results); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: manifest write failed: %v\n", err)
	} else {
		fmt.Printf("Manifest: %s\n", manifestPath)
	}

	if failed > 0 {
		a.Close()
		os.Exit(1)
	}
}
