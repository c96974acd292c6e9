package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/jab.report/internal/api"
	"github.com/banshee-data/jab.report/internal/capture"
	"github.com/banshee-data/jab.report/internal/config"
	"github.com/banshee-data/jab.report/internal/db"
	"github.com/banshee-data/jab.report/internal/guidance"
	"github.com/banshee-data/jab.report/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC watch stream listen address (empty disables)")
	dbPath      = flag.String("db-path", "jab_report.db", "Path to the SQLite database")
	configPath  = flag.String("config", "", "Guidance tuning JSON file (built-in defaults when empty)")
	outputDir   = flag.String("output-dir", "", "Directory for recordings (overrides output_dir)")
	autoStart   = flag.Bool("start", true, "Arm the guidance machine at startup")
	timezone    = flag.String("timezone", "", "IANA timezone for training day boundaries (host zone when empty)")
	showVersion = flag.Bool("version", false, "Print version and exit")

	sourceKind = flag.String("source", "synthetic", "Pose source: serial, replay or synthetic")
	port       = flag.String("port", "/dev/ttyUSB0", "Serial port of the pose detector (source=serial)")
	baudRate   = flag.Int("baud", 0, "Serial baud rate (default 115200)")
	parity     = flag.String("parity", "N", "Serial parity: N, E or O")
	stopBits   = flag.Int("stop-bits", 1, "Serial stop bits: 1 or 2")
	replayPath = flag.String("replay", "", "Keypoint file to replay, - for stdin (source=replay)")
	fps        = flag.Float64("fps", 30, "Frame rate for replay and synthetic sources")
	loop       = flag.Bool("loop", false, "Loop the replay or synthetic script")

	recorderKind = flag.String("recorder", "poselog", "Recorder: ffmpeg or poselog")
	ffmpegBinary = flag.String("ffmpeg", "ffmpeg", "ffmpeg binary (recorder=ffmpeg)")
	ffmpegFormat = flag.String("ffmpeg-format", "", "ffmpeg input format, e.g. v4l2 or avfoundation")
	ffmpegDevice = flag.String("ffmpeg-device", "", "ffmpeg capture device, e.g. /dev/video0")

	cueDir    = flag.String("cue-dir", "", "Directory of <cue>.wav files (cues are logged when empty)")
	cuePlayer = flag.String("cue-player", "aplay", "Audio player binary used with -cue-dir")
	cueExt    = flag.String("cue-ext", ".wav", "Sound file extension used with -cue-dir")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.SetFlags(0)
		log.Print(version.String())
		return
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Print(version.String())

	cfg, err := loadGuidanceConfig(*configPath, *outputDir, *recorderKind)
	if err != nil {
		log.Fatalf("failed to load guidance config: %v", err)
	}

	store, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	src, err := openSource(sourceFlags{
		kind:       *sourceKind,
		port:       *port,
		baudRate:   *baudRate,
		parity:     *parity,
		stopBits:   *stopBits,
		replayPath: *replayPath,
		fps:        *fps,
		loop:       *loop,
	})
	if err != nil {
		log.Fatalf("failed to open pose source: %v", err)
	}
	defer src.Close()

	recorder, err := newRecorder(recorderFlags{
		kind:         *recorderKind,
		ffmpegBinary: *ffmpegBinary,
		ffmpegFormat: *ffmpegFormat,
		ffmpegDevice: *ffmpegDevice,
		sourceName:   *sourceKind,
	}, src)
	if err != nil {
		log.Fatalf("failed to create recorder: %v", err)
	}

	cues, err := newCuePlayer(*cueDir, *cuePlayer, *cueExt)
	if err != nil {
		log.Fatalf("failed to create cue player: %v", err)
	}

	machine := guidance.NewMachine(cfg, guidance.Deps{Recorder: recorder, Cues: cues})
	sampleID, samples := src.SubscribeSamples(8)
	defer src.UnsubscribeSamples(sampleID)
	runner := guidance.NewRunner(machine, samples, store)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to read the pose source
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := src.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor pose source: %v", err)
		}
		log.Print("monitor routine terminated")
	}()

	// the guidance loop owns the machine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("guidance loop error: %v", err)
		}
		log.Print("guidance routine terminated")
	}()

	if *autoStart {
		if err := runner.Start(ctx); err != nil {
			log.Fatalf("failed to start guidance: %v", err)
		}
	}

	var watch *api.WatchServer
	if *grpcListen != "" {
		watch = api.NewWatchServer(runner)
		if err := watch.Start(*grpcListen); err != nil {
			log.Fatalf("failed to start gRPC watch server: %v", err)
		}
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(runner, store)
		if err := apiServer.SetTimezone(*timezone); err != nil {
			log.Fatalf("invalid -timezone: %v", err)
		}
		apiServer.SetRecordingsDir(cfg.OutputDir)
		mux := apiServer.ServeMux()
		src.AttachAdminRoutes(mux)
		if err := store.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach database admin routes: %v", err)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if watch != nil {
		// Watch streams end once the runner has closed its subscribers.
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		watch.Stop(stopCtx)
		cancel()
	}
	log.Printf("Graceful shutdown complete")
}

// loadGuidanceConfig reads the tuning file, falling back to built-in
// defaults when path is empty. dir overrides the output directory. A pose
// log recorder writes .poselog files unless the tuning file names an
// extension.
func loadGuidanceConfig(path, dir, recorder string) (guidance.Config, error) {
	tuning := config.EmptyGuidanceConfig()
	if path != "" {
		var err error
		if tuning, err = config.LoadGuidanceConfig(path); err != nil {
			return guidance.Config{}, err
		}
	}
	cfg := guidance.ConfigFromTuning(tuning)
	if dir != "" {
		cfg.OutputDir = dir
	}
	if isPoseLogRecorder(recorder) && (tuning.OutputExt == nil || *tuning.OutputExt == "") {
		cfg.OutputExt = capture.PoseLogExtension
	}
	return cfg, nil
}
