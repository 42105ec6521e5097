package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pkg/profile"

	"gpu-resource-cache/internal/app"
	"gpu-resource-cache/internal/config"
	"gpu-resource-cache/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	// CLI flags
	configFile := flag.String("config", "", "Path to config file (.json or .yaml)")
	assetDir := flag.String("assets", "", "Asset directory (default: .)")
	atlasList := flag.String("atlases", "", "Atlas list file")
	backendName := flag.String("backend", "", "Native backend: soft or wgpu (default: soft)")
	async := flag.Bool("async", false, "Decode textures on a background goroutine")
	watchFiles := flag.Bool("watch", false, "Reload textures when files change (until interrupted)")
	load := flag.String("load", "", "Comma-separated texture names to load")
	dump := flag.Bool("dump", false, "Print every cached texture")
	filter := flag.String("filter", "", "Only dump textures whose name contains this")
	reset := flag.Bool("reset", false, "Simulate a device reset and verify identities survive")
	prof := flag.String("profile", "", "Write a cpu or mem profile to the output directory")
	verbose := flag.Bool("v", false, "Debug logging")

	flag.Parse()

	// Load config
	var cfg config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			return 1
		}
	}

	// CLI flags override config file
	cfg.Resolve(config.Flags{
		AssetDir:  *assetDir,
		AtlasList: *atlasList,
		Backend:   *backendName,
		Async:     *async,
		Watch:     *watchFiles,
	})

	switch *prof {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.OutputDir), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile, profile.ProfilePath(cfg.OutputDir), profile.NoShutdownHook).Stop()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown profile %q (want cpu or mem)\n", *prof)
		return 1
	}

	log := logging.New(os.Stderr, *verbose)
	a, err := app.Open(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer a.Close()

	fmt.Printf("Assets: %s (%d files), backend: %s, format: %s, async: %v\n",
		cfg.AssetDir, a.Index.Len(), cfg.Backend, cfg.PixelFormat, cfg.AsyncLoading)

	start := time.Now()
	if err := a.LoadAtlases(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: atlas load: %v\n", err)
	}
	for _, name := range strings.Split(*load, ",") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		if _, err := a.Textures.GetByName(name); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if err := settle(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	st := a.Textures.Stats()
	fmt.Printf("Loaded in %.2fs: %d textures (%d loaded, %d unloaded, %d atlas-derived) from %d atlases\n",
		time.Since(start).Seconds(), st.Total, st.Loaded, st.Unloaded, st.Derived, st.Atlases)

	if *reset {
		if err := a.VerifyReset(); err != nil {
			fmt.Fprintf(os.Stderr, "Reset FAILED: %v\n", err)
			return 1
		}
		fmt.Printf("Reset OK: %d textures kept their ids, sizes and coordinates\n", st.Total)
	}

	if *dump {
		if err := a.Textures.Dump(os.Stdout, *filter); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if cfg.Watch {
		if err := watchLoop(a); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	return 0
}

// settle runs Update until background loads are applied.
func settle(a *app.App) error {
	for {
		if err := a.Update(); err != nil {
			return err
		}
		if a.Textures.Pending() == 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// watchLoop applies reloads once per frame until interrupted.
func watchLoop(a *app.App) error {
	if err := a.Watch(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Watching for changes, Ctrl-C to stop")
	frame := time.NewTicker(16 * time.Millisecond)
	defer frame.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-frame.C:
			if err := a.Update(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
	}
}
