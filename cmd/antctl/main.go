// Command antctl is the closed-loop ant-tracking laser controller: it
// reads frames from a camera or a recorded source, tracks the ant and
// the laser spot in each one, and drives the two-mirror galvanometer
// through the motor mailbox to keep the laser on the selected ant.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rgbond/antctl/internal/backlash"
	"github.com/rgbond/antctl/internal/blobs"
	"github.com/rgbond/antctl/internal/classify"
	"github.com/rgbond/antctl/internal/config"
	"github.com/rgbond/antctl/internal/controller"
	"github.com/rgbond/antctl/internal/frame"
	"github.com/rgbond/antctl/internal/geometry"
	"github.com/rgbond/antctl/internal/laser"
	"github.com/rgbond/antctl/internal/mailbox"
	"github.com/rgbond/antctl/internal/monitoring"
	"github.com/rgbond/antctl/internal/replay"
	"github.com/rgbond/antctl/internal/snapshot"
	"github.com/rgbond/antctl/internal/tracker"
)

var (
	alternateFrame  = flag.Bool("a", false, "alternate-frame display (no-op: headless build)")
	accurate        = flag.Bool("c", false, "repeat corrections until loop closed")
	dontCorrect     = flag.Bool("d", false, "don't do closed loop corrections")
	fakeLaser       = flag.Bool("f", false, "fake the laser mailbox handshake (no firmware attached)")
	drawLaser       = flag.Bool("l", false, "draw the laser on the screen (no-op: headless build)")
	overlayLaser    = flag.Bool("O", false, "overlay the laser on a movie (no-op: headless build)")
	showMog         = flag.Bool("o", false, "show mog window (no-op: headless build)")
	movie           = flag.String("m", "", "read frames from this directory instead of a live camera")
	noAnts          = flag.Bool("n", false, "no ants: never issue a move")
	neuralClass     = flag.Bool("N", false, "use a neural classifier (none is wired in: falls back to heuristic scoring)")
	playAnts        = flag.String("p", "", "replay ants from this recorded ants.pos file")
	plotPredictions = flag.Bool("P", false, "plot predictions for ant movement (no-op: headless build)")
	randomMoves     = flag.Bool("r", false, "do random moves")
	sqlBacklash     = flag.Bool("s", false, "log backlash data to SQL")
	takeSnapshots   = flag.Bool("S", false, "take snapshots of the ants and laser")
	verbose         = flag.Bool("v", false, "verbose logging")

	configFile   = flag.String("config", "", "path to a JSON tuning configuration file (defaults built in)")
	mailboxPath  = flag.String("mailbox", "/tmp/antctl.shmem", "path to the shared-memory motor mailbox file")
	backlashPath = flag.String("backlash-db", "backlash.db", "path to the backlash SQLite log (when -s is set)")
	snapshotDir  = flag.String("snapshot-dir", "images", "root directory for -S snapshot patches")
	frameCount   = flag.Int("frames", 0, "stop after this many frames (0 = run until EOF or signal)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	if !*verbose {
		monitoring.SetLogger(func(string, ...interface{}) {})
	}

	tuningCfg := config.EmptyTuningConfig()
	if *configFile != "" {
		loaded, err := config.LoadTuningConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load tuning config from %s: %v", *configFile, err)
		}
		tuningCfg = loaded
		log.Printf("loaded tuning configuration from %s", *configFile)
	}

	geom := applyTuning(geometry.DefaultConfig(), tuningCfg)
	sizes := geometry.BuildAntSizeTable(geom)

	box, err := openMailbox(geom)
	if err != nil {
		log.Fatalf("failed to open motor mailbox: %v", err)
	}
	defer box.Close()

	bl, err := backlash.Open(backlashLogPath())
	if err != nil {
		log.Fatalf("failed to open backlash log: %v", err)
	}
	defer bl.Close()

	var classifier classify.Classifier
	if *neuralClass {
		log.Printf("warning: -N requested but no neural classifier is wired in; falling back to heuristic scoring")
	}

	trk := tracker.New()
	applyTrackerTuning(trk, tuningCfg)
	las := &laser.Locator{Classifier: classifier}
	applyLaserTuning(las, tuningCfg)

	var writer snapshot.Writer = snapshot.NewPNGWriter(*snapshotDir)
	snaps := snapshot.New(writer)
	if *takeSnapshots {
		snaps.Enable()
	}

	src, err := openSource(geom)
	if err != nil {
		log.Fatalf("failed to open frame source: %v", err)
	}
	defer src.Close()

	var player *replay.Player
	if *playAnts != "" {
		player, err = replay.Open(*playAnts, sizes)
		if err != nil {
			log.Fatalf("failed to open replay file %s: %v", *playAnts, err)
		}
	}

	drv := controller.NewDriver(geom, box, bl)
	ctrl := controller.NewController(drv, trk, las, controller.Options{
		Accurate:    *accurate,
		DontCorrect: *dontCorrect,
		RandomMoves: *randomMoves,
		NoAnts:      *noAnts,
	})
	if *randomMoves {
		ctrl.RandomMove = randomMoveFunc(drv, geom)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runLoop(ctx, runConfig{
			src:    src,
			drv:    drv,
			ctrl:   ctrl,
			las:    las,
			snaps:  snaps,
			player: player,
			sizes:  sizes,
			geom:   geom,
			limit:  *frameCount,
		})
	}()
	wg.Wait()
	log.Printf("graceful shutdown complete")
}

// applyTuning overlays any fields tuningCfg has set onto the
// calibration baseline, leaving the rest at their rig defaults.
func applyTuning(geom geometry.Config, t *config.TuningConfig) geometry.Config {
	if t.FrameW != nil {
		geom.W = *t.FrameW
	}
	if t.FrameH != nil {
		geom.H = *t.FrameH
	}
	if t.LensFocalLen != nil {
		geom.LensFocalLen = *t.LensFocalLen
	}
	if t.K1 != nil {
		geom.K1 = *t.K1
	}
	if t.K2 != nil {
		geom.K2 = *t.K2
	}
	if t.K3 != nil {
		geom.K3 = *t.K3
	}
	if t.P1 != nil {
		geom.P1 = *t.P1
	}
	if t.P2 != nil {
		geom.P2 = *t.P2
	}
	if t.P3 != nil {
		geom.P3 = *t.P3
	}
	if t.InPerPixel != nil {
		geom.InPerPixel = *t.InPerPixel
	}
	if t.CameraHeight != nil {
		geom.CameraHeight = *t.CameraHeight
	}
	if t.M1X != nil {
		geom.M1X = *t.M1X
	}
	if t.M1Y != nil {
		geom.M1Y = *t.M1Y
	}
	if t.M1Z != nil {
		geom.M1Z = *t.M1Z
	}
	if t.M2Z != nil {
		geom.M2Z = *t.M2Z
	}
	if t.M1Min != nil {
		geom.M1Min = *t.M1Min
	}
	if t.M1Max != nil {
		geom.M1Max = *t.M1Max
	}
	if t.M2Min != nil {
		geom.M2Min = *t.M2Min
	}
	if t.M2Max != nil {
		geom.M2Max = *t.M2Max
	}
	if t.Accel != nil {
		geom.Accel = *t.Accel
	}
	if t.MaxV != nil {
		geom.MaxV = *t.MaxV
	}
	return geom
}

// applyTrackerTuning overlays the tracker's association and selection
// thresholds from t, leaving any unset field at the tracker's default.
func applyTrackerTuning(trk *tracker.Tracker, t *config.TuningConfig) {
	if t.CloseBlob != nil {
		trk.CloseBlob = *t.CloseBlob
	}
	if t.MaxScore != nil {
		trk.MaxScore = *t.MaxScore
	}
	if t.ScoreFloor != nil {
		trk.ScoreFloor = *t.ScoreFloor
	}
	if t.MaxIdleAge != nil {
		trk.MaxIdleAge = *t.MaxIdleAge
	}
}

// applyLaserTuning overlays the laser locator's confirmation
// thresholds from t, leaving any unset field at the locator's default.
func applyLaserTuning(las *laser.Locator, t *config.TuningConfig) {
	if t.MinBlobPixels != nil {
		las.MinBlobPixels = *t.MinBlobPixels
	}
	if t.MinBrightPixels != nil {
		las.MinBrightPixels = *t.MinBrightPixels
	}
	if t.NeuralThreshold != nil {
		las.NeuralThreshold = *t.NeuralThreshold
	}
}

func backlashLogPath() string {
	if *sqlBacklash {
		return *backlashPath
	}
	return ":memory:"
}

func openMailbox(geom geometry.Config) (*mailbox.Mailbox, error) {
	limits := mailbox.StepLimits{M1Min: geom.M1Min, M1Max: geom.M1Max, M2Min: geom.M2Min, M2Max: geom.M2Max}
	if *fakeLaser {
		return mailbox.OpenWithoutHandshake(mailbox.NewMemRegion(), limits)
	}
	region, err := mailbox.OpenFileRegion(*mailboxPath)
	if err != nil {
		return nil, err
	}
	return mailbox.Open(region, limits)
}

func openSource(geom geometry.Config) (frame.Source, error) {
	if *movie == "" {
		return nil, fmt.Errorf("no live camera grabber is wired into this build; pass -m <dir> to read a recorded capture")
	}
	return frame.NewDirSource(*movie)
}

// randomMoveFunc returns a RandomMove callback that drives the laser
// to uniformly random in-bounds pixel targets, matching the "-r" mode.
func randomMoveFunc(drv *controller.Driver, geom geometry.Config) func(frameIndex int) bool {
	return func(frameIndex int) bool {
		px := int(math.Round(pseudoRandom(frameIndex, 0) * float64(geom.W-1)))
		py := int(math.Round(pseudoRandom(frameIndex, 1) * float64(geom.H-1)))
		drv.DoMove(px, py, "random")
		return false
	}
}

// pseudoRandom derives a deterministic, repeatable pseudo-random value
// in [0,1) from the frame index and a stream selector, so random-move
// mode is reproducible across runs of the same recorded capture.
func pseudoRandom(frameIndex, stream int) float64 {
	x := uint64(frameIndex)*2654435761 + uint64(stream)*40503
	x ^= x >> 13
	x *= 1274126177
	x ^= x >> 16
	return float64(x%1_000_000) / 1_000_000.0
}

type runConfig struct {
	src    frame.Source
	drv    *controller.Driver
	ctrl   *controller.Controller
	las    *laser.Locator
	snaps  *snapshot.Snapshots
	player *replay.Player
	sizes  *geometry.AntSizeTable
	geom   geometry.Config
	limit  int
}

// runLoop drives the per-frame timing-budget loop: warm up, find the
// laser at startup, then step the controller FSM once per frame until
// the source is exhausted, ctx is canceled, or limit frames have run.
func runLoop(ctx context.Context, rc runConfig) {
	scorer := &tracker.Scorer{Sizes: rc.sizes, Classifier: rc.las.Classifier}

	warmupFrames := 0
	for warmupFrames < 5 || !rc.drv.HwIdle() {
		img, mask, ok := rc.src.Next()
		if !ok {
			log.Printf("source exhausted during warmup")
			rc.drv.Shutdown()
			return
		}
		if warmupFrames == 3 {
			rc.drv.SwitchLaser(true)
		}
		warmupFrames++
		_ = img
		_ = mask
	}

	var lcenter laser.Point
	var lbox blobs.Rect
	foundLaser := false
	for tries := 0; tries < 20 && !foundLaser; tries++ {
		img, mask, ok := rc.src.Next()
		if !ok {
			break
		}
		lcenter, lbox, foundLaser = rc.las.Find(mask, img, rc.geom.W/2, rc.geom.H/2, rc.geom.W, rc.geom.Keepout)
	}
	if !foundLaser {
		log.Printf("no laser on startup")
		for !rc.drv.HwIdle() {
		}
		rc.drv.Shutdown()
		os.Exit(1)
	}
	rc.drv.CurLoc = rc.geom.PxyToLoc(lcenter.X, lcenter.Y)
	rc.drv.DoMove(rc.geom.W/2, rc.geom.H/2, "Start")
	rc.drv.SetHome()
	rc.drv.SwitchLaser(false)
	for !rc.drv.HwIdle() {
	}
	_ = lbox

	const tps = float64(time.Second)
	var totalFrameTime, averageFrameTime float64
	frameIndex := 0

	for {
		select {
		case <-ctx.Done():
			log.Printf("shutting down on signal")
			drainAndShutdown(rc.drv)
			return
		default:
		}

		tstart := float64(time.Now().UnixNano())
		img, mask, ok := rc.src.Next()
		if !ok {
			log.Printf("source exhausted")
			drainAndShutdown(rc.drv)
			return
		}
		frameIndex++
		frameTicks := uint64(time.Now().UnixNano())

		if rc.player != nil {
			rc.player.AddAnt(img, frameIndex)
		}

		roi := blobs.ROI{X: 0, Y: 0, W: rc.geom.W, H: rc.geom.H}
		found, ok := blobs.Extract(mask, roi, 100, blobs.AntVariant, rc.geom.Keepout, 1)
		if !ok {
			monitoring.Framef(frameIndex, "blob extraction overflow, discarding frame")
			found = nil
		}
		scored := scorer.ScoreAll(found, mask, img, 1)

		target := rc.drv.Target
		lcenter, lbox, laserVisible := rc.las.Find(mask, img, target.Px, target.Py, 100, rc.geom.Keepout)

		in := controller.FrameInputs{
			Scored:       scored,
			FrameIndex:   frameIndex,
			FrameTicks:   frameTicks,
			TPS:          tps,
			AvgFrameTime: averageFrameTime,
			Image:        img,
			Snaps:        rc.snaps,
			LaserVisible: laserVisible,
			LaserCenter:  lcenter,
			LaserBox:     lbox,
		}
		done := rc.ctrl.Step(in)
		rc.snaps.Tick(img, frameIndex)

		tend := float64(time.Now().UnixNano())
		loopTotal := (tend - tstart) / tps
		totalFrameTime += loopTotal
		averageFrameTime = totalFrameTime / float64(frameIndex)
		monitoring.Logf("frame %d: loop %dms avg %dms state %s",
			frameIndex, int(math.Round(loopTotal*1000)), int(math.Round(averageFrameTime*1000)), rc.ctrl.State())

		if done || (rc.limit > 0 && frameIndex >= rc.limit) {
			drainAndShutdown(rc.drv)
			return
		}
	}
}

func drainAndShutdown(drv *controller.Driver) {
	for !drv.HwIdle() {
	}
	if err := drv.Shutdown(); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
