package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/mapalign/internal/cloud"
	"github.com/banshee-data/mapalign/internal/localizer"
	"github.com/banshee-data/mapalign/internal/poselog"
	"github.com/banshee-data/mapalign/internal/version"
)

var (
	configPath = flag.String("config", "", "Path to JSON config file (defaults used when empty)")
	mapPath    = flag.String("map", "", "Path to the reference map PCD file (required)")
	scanDir    = flag.String("scans", "", "Directory of scan PCD files, replayed in name order (required)")
	fixPath    = flag.String("fixes", "", "CSV of position fixes (x,y,z per line; first row seeds the search)")
	outPath    = flag.String("out", "", "Pose log CSV path (overrides config result_path)")
	dbFile     = flag.String("db", "", "Optional SQLite file to persist poses alongside the CSV")
	listen     = flag.String("listen", ":8082", "HTTP status listen address (empty disables)")
	rate       = flag.Float64("rate", 10, "Scan replay rate in Hz")
	verbose    = flag.Bool("verbose", false, "Enable diagnostic logging")
	trace      = flag.Bool("trace", false, "Enable per-scan trace logging")
	dumpDir    = flag.String("dump-aligned", "", "Directory to write each scan re-expressed in the map frame (PCD)")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

// readFixes parses a CSV of position fixes. A header row is tolerated;
// blank lines and comment lines are skipped.
func readFixes(path string) ([]localizer.Fix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixes file: %v", err)
	}

	var fixes []localizer.Fix
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			return nil, fmt.Errorf("fixes line %d: need x,y,z, got %q", i+1, line)
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		z, errZ := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if errX != nil || errY != nil || errZ != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("fixes line %d: malformed %q", i+1, line)
		}
		fixes = append(fixes, localizer.Fix{X: x, Y: y, Z: z, Stamp: time.Now()})
	}
	if len(fixes) == 0 {
		return nil, fmt.Errorf("no fixes found in %s", path)
	}
	return fixes, nil
}

// listScans returns the scan PCD files of a replay directory in name
// order, which is the capture order for numbered dumps.
func listScans(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scan directory: %v", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pcd") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .pcd files in %s", dir)
	}
	return paths, nil
}

// poseTracker keeps the latest published pose for the status endpoint.
type poseTracker struct {
	mu   sync.Mutex
	last localizer.PoseStamped
	set  bool
}

func (p *poseTracker) PublishPose(ps localizer.PoseStamped) {
	p.mu.Lock()
	p.last = ps
	p.set = true
	p.mu.Unlock()
	if *trace {
		log.Printf("pose: frame=%s (%.3f, %.3f, %.3f)", ps.Frame, ps.X, ps.Y, ps.Z)
	}
}

func (p *poseTracker) snapshot() (localizer.PoseStamped, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.set
}

// cloudDumper writes map-frame scans to numbered PCD files.
type cloudDumper struct {
	dir string
	n   int
}

func (d *cloudDumper) PublishCloud(_ time.Time, _ string, c cloud.Cloud) {
	d.n++
	path := filepath.Join(d.dir, fmt.Sprintf("aligned_%06d.pcd", d.n))
	f, err := os.Create(path)
	if err != nil {
		log.Printf("Failed to create %s: %v", path, err)
		return
	}
	defer f.Close()
	if err := cloud.WritePCD(f, c); err != nil {
		log.Printf("Failed to write %s: %v", path, err)
	}
}

// replayScans feeds scan files to the engine at the configured rate.
// It returns once every scan has been accepted or ctx is done.
func replayScans(ctx context.Context, eng *localizer.Engine, paths []string) error {
	interval := time.Duration(float64(time.Second) / *rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i, path := range paths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		points, err := cloud.ReadPCDFile(path)
		if err != nil {
			log.Printf("Skipping unreadable scan %s: %v", path, err)
			continue
		}
		if err := eng.SubmitScan(ctx, localizer.Scan{Stamp: time.Now(), Points: points}); err != nil {
			return err
		}
		if *trace {
			log.Printf("Replayed scan %d/%d (%s, %d points)", i+1, len(paths), filepath.Base(path), len(points))
		}
	}
	return nil
}

func statusServer(ctx context.Context, wg *sync.WaitGroup, eng *localizer.Engine, poses *poseTracker) {
	defer wg.Done()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status": "ok", "service": "localizer", "version": "%s", "timestamp": "%s"}`,
			version.Version, time.Now().UTC().Format(time.RFC3339))
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(eng.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/api/pose", func(w http.ResponseWriter, r *http.Request) {
		pose, ok := poses.snapshot()
		if !ok {
			http.Error(w, "no pose yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(pose); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	server := &http.Server{Addr: *listen, Handler: mux}
	go func() {
		log.Printf("Starting status server on %s", *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start status server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Status server shutdown error: %v", err)
	}
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("localizer %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *mapPath == "" || *scanDir == "" {
		flag.Usage()
		log.Fatal("both -map and -scans are required")
	}
	if *rate <= 0 {
		log.Fatal("-rate must be positive")
	}

	var diagWriter, traceWriter io.Writer
	if *verbose || *trace {
		diagWriter = os.Stderr
	}
	if *trace {
		traceWriter = os.Stderr
	}
	localizer.SetLogWriters(os.Stderr, diagWriter, traceWriter)

	cfg := localizer.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = localizer.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *outPath != "" {
		cfg.ResultPath = *outPath
	}

	// Pose log sinks: CSV always, SQLite when requested.
	csvLog, err := poselog.NewWriter(cfg.ResultPath)
	if err != nil {
		log.Fatalf("Failed to open pose log: %v", err)
	}
	defer csvLog.Close()

	records := poselog.Multi{csvLog}
	if *dbFile != "" {
		store, err := poselog.OpenStore(*dbFile, cfg.MapFrame, cfg.SensorFrame, filepath.Base(*scanDir))
		if err != nil {
			log.Fatalf("Failed to open pose store: %v", err)
		}
		defer store.Close()
		records = append(records, store)
		log.Printf("Persisting poses to %s (session %s)", *dbFile, store.SessionID())
	}

	poses := &poseTracker{}
	outputs := localizer.Outputs{Poses: poses, Records: records}
	if *dumpDir != "" {
		if err := os.MkdirAll(*dumpDir, 0755); err != nil {
			log.Fatalf("Failed to create dump directory: %v", err)
		}
		outputs.Clouds = &cloudDumper{dir: *dumpDir}
	}
	eng, err := localizer.New(cfg, outputs)
	if err != nil {
		log.Fatalf("Failed to construct engine: %v", err)
	}

	mapCloud, err := cloud.ReadPCDFile(*mapPath)
	if err != nil {
		log.Fatalf("Failed to load reference map: %v", err)
	}
	log.Printf("Loaded reference map %s (%d points)", *mapPath, len(mapCloud))

	scans, err := listScans(*scanDir)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Replaying %d scans from %s at %.1f Hz", len(scans), *scanDir, *rate)

	var fixes []localizer.Fix
	if *fixPath != "" {
		fixes, err = readFixes(*fixPath)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Loaded %d position fixes from %s", len(fixes), *fixPath)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Engine error: %v", err)
		}
	}()

	if *listen != "" {
		wg.Add(1)
		go statusServer(ctx, &wg, eng, poses)
	}

	eng.SetMap(mapCloud)
	if len(fixes) > 0 {
		eng.SetFix(fixes[0])
	}

	// Later fixes replay on their own cadence so tracking and fix
	// delivery interleave the way a live feed would.
	if len(fixes) > 1 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			interval := time.Duration(float64(time.Second) / *rate)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for _, f := range fixes[1:] {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					eng.SetFix(f)
				}
			}
		}()
	}

	if err := replayScans(ctx, eng, scans); err != nil && err != context.Canceled {
		log.Printf("Replay error: %v", err)
	}

	// Replay finished (or interrupted): shut the engine down so it
	// reports the cumulative fitness, then wait for everything.
	stop()
	wg.Wait()

	log.Printf("Wrote %d poses to %s", csvLog.Rows(), cfg.ResultPath)
}
