// Command scantrack builds a scan-and-track pipeline from a configuration
// file and runs it, either as fast as possible for a fixed number of
// frames or paced in real time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/banshee-data/scantrack/internal/api"
	"github.com/banshee-data/scantrack/internal/config"
	"github.com/banshee-data/scantrack/internal/monitoring"
	"github.com/banshee-data/scantrack/internal/shootlist"
	"github.com/banshee-data/scantrack/internal/storage/sqlite"
	"github.com/banshee-data/scantrack/internal/system"
	"github.com/banshee-data/scantrack/internal/tracking"
	"github.com/banshee-data/scantrack/internal/units"
	"github.com/banshee-data/scantrack/internal/version"
)

var (
	configPath = flag.String("config", "", "Pipeline config (.json or .toml); "+config.DefaultConfigPath+" or built-in defaults when empty")
	frames     = flag.Int("frames", -1, "Frames to run; -1 uses the config, 0 runs until interrupted")
	realTime   = flag.Bool("real-time", false, "Pace frames in wall-clock time (overrides frame.real_time)")
	record     = flag.String("record", "", "Record detections and track events to this sqlite file")
	label      = flag.String("label", "", "Run label stored with the recording")
	listen     = flag.String("debug-listen", "", "Serve the debug HTTP API on this address (e.g. localhost:8080)")
	grpcListen = flag.String("grpc-listen", "", "Serve gRPC health on this address")
	logDir     = flag.String("log-dir", "", "Write rotating ops/diag/trace logs under this directory")
	trace      = flag.Bool("trace", false, "Enable the diag and trace log streams")
	summaryMax = flag.Int("summary", 10, "Shoot-list entries printed at the end of the run")
	speedUnits = flag.String("speed-units", units.MPS, "Speed units for the summary: "+units.GetValidUnitsString())
	showVer    = flag.Bool("version", false, "Print the version and exit")
)

func main() {
	flag.Parse()
	if *showVer {
		fmt.Println(version.String())
		return
	}
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("scantrack: %v", err)
	}
}

func loadConfig() (*config.PipelineConfig, error) {
	if *configPath == "" {
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			return config.LoadPipelineConfig(config.DefaultConfigPath)
		}
		return config.DefaultPipelineConfig(), nil
	}
	return config.LoadPipelineConfig(*configPath)
}

func run() (err error) {
	streams, err := openLogStreams(*logDir, *trace)
	if err != nil {
		return fmt.Errorf("open logs: %w", err)
	}
	defer func() {
		if cerr := streams.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close logs: %w", cerr)
		}
	}()
	streams.install()

	log.Print(version.String())
	unit, err := units.Parse(*speedUnits)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if *frames >= 0 {
		cfg.Frame.Frames = frames
	}
	if *realTime {
		cfg.Frame.RealTime = realTime
	}

	runID := uuid.New()
	runLabel := *label
	if runLabel == "" {
		runLabel = runID.String()
	}

	metrics := monitoring.NewMetrics()
	events := monitoring.NewRecorder(256)
	reporter := monitoring.Tee(monitoring.LogReporter{}, events)

	opts := buildOptions{
		reporter: reporter,
		metrics:  metrics,
		actions: shootlist.ActionHandlerFunc(func(a shootlist.Action, tr tracking.Track) {
			log.Printf("action %s: track %d range=%.0fm gs=%.0fm/s", a, tr.ID, tr.Range, tr.GroundSpeed)
		}),
	}

	var rec *sqlite.Recorder
	if *record != "" {
		rec, err = sqlite.Open(*record, runLabel, reporter)
		if err != nil {
			return fmt.Errorf("open recorder: %w", err)
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("close recorder: %v", err)
			}
		}()
		opts.detection = rec
		opts.tracks = rec.Tracks
		opts.background = append(opts.background, rec)
	}

	p, err := buildPipeline(cfg, opts)
	if err != nil {
		return err
	}
	log.Printf("run %s: %d frames of %.3fs, real-time=%v", runLabel, cfg.GetFrames(), cfg.GetDT(), cfg.GetRealTime())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	runCtx, finish := context.WithCancel(ctx)
	defer finish()

	if *listen != "" {
		srv := api.NewServer(p.onboard)
		for _, m := range p.managers {
			srv.AddTrackManager(m)
		}
		srv.SetMetrics(metrics)
		srv.SetEvents(events)
		srv.SetStats(p.scheduler.Stats)

		mux := srv.ServeMux()
		if rec != nil {
			err = srv.AttachDebugRoutes(mux, rec.DB())
		} else {
			err = srv.AttachDebugRoutes(mux, nil)
		}
		if err != nil {
			return err
		}
		g.Go(func() error { return serveHTTP(runCtx, *listen, api.LoggingMiddleware(mux)) })
	}

	if *grpcListen != "" {
		health := api.NewHealthServer(p.onboard)
		g.Go(func() error { return serveGRPC(runCtx, *grpcListen, health) })
		g.Go(func() error {
			err := health.Run(runCtx, nil, time.Second)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		defer finish()
		return runPipeline(ctx, p)
	})

	err = g.Wait()
	printSummary(os.Stdout, p, *summaryMax, unit)
	if rec != nil {
		if ferr := rec.Flush(); ferr != nil {
			log.Printf("flush recorder: %v", ferr)
		}
		written, dropped := rec.Stats()
		log.Printf("recorded run %s: %d rows written, %d dropped", rec.RunID(), written, dropped)
	}
	return err
}

// runPipeline runs the configured number of frames, in real time or as
// fast as possible. Zero frames runs until ctx is done; a finite run also
// stops early when ctx is done.
func runPipeline(ctx context.Context, p *pipeline) error {
	cfg := p.cfg
	dt := cfg.GetDT()
	n := cfg.GetFrames()
	if cfg.GetRealTime() {
		return p.scheduler.RunRealTime(ctx, system.RealTimeOptions{
			Period:        time.Duration(dt * float64(time.Second)),
			Frames:        n,
			FailOnOverrun: cfg.GetFailOnOverrun(),
		})
	}
	for i := 0; (n == 0 || i < n) && ctx.Err() == nil; i++ {
		p.scheduler.Step(dt)
	}
	return nil
}

func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	server := &http.Server{
		Addr:    addr,
		Handler: h,
	}
	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errc)
	}()
	log.Printf("debug HTTP API listening on %s", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	return nil
}

func serveGRPC(ctx context.Context, addr string, health *api.HealthServer) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	s := grpc.NewServer()
	health.Register(s)
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	log.Printf("gRPC health listening on %s", lis.Addr())
	return s.Serve(lis)
}

func printSummary(w io.Writer, p *pipeline, max int, unit string) {
	st := p.scheduler.Stats()
	fmt.Fprintf(w, "frames=%d updates=%d sim_time=%.2fs\n", st.Frames, st.Updates, st.SimTime)
	for _, m := range p.managers {
		fmt.Fprintf(w, "manager %s: %d tracks\n", m.Name(), m.NumTracks())
	}
	if !p.onboard.Tracking() {
		fmt.Fprintf(w, "onboard %s: not tracking\n", p.onboard.Name())
		return
	}
	next, ok := p.onboard.NextToShoot()
	for _, t := range p.onboard.ShootList(nil, max) {
		mark := " "
		if ok && t.ID == next.ID {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %2d  track %3d  %-12s range=%8.0fm gs=%6.1f%s az=%6.1f el=%5.1f q=%.2f\n",
			mark, t.ShootListIndex, t.ID, t.Type, t.Range, units.ConvertSpeed(t.GroundSpeed, unit), unit, t.Az, t.El, t.Quality)
	}
}
