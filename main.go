package main

import (
	"log/slog"
	"math"
	"os"

	"github.com/mkrall/spherecal/config"
	"github.com/mkrall/spherecal/domain/calib"
	"github.com/mkrall/spherecal/geom"
	"github.com/mkrall/spherecal/render"
	"github.com/mkrall/spherecal/ui"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("SPHERECAL_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := NewLogger(level)

	if len(os.Args) < 2 {
		logger.Error("usage: spherecal <config.json>")
		os.Exit(2)
	}
	cfgPath := os.Args[1]

	store, err := config.Open(cfgPath)
	if err != nil {
		logger.Error("could not open configuration", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	input, err := store.String(config.KeySrcFn)
	if err != nil {
		logger.Error("configuration must provide src_fn", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	base, err := render.LoadReferenceFrame(input, logger)
	if err != nil {
		logger.Error("could not load a reference frame", "input", input, "error", err)
		os.Exit(1)
	}
	vfovDeg, err := store.Float(config.KeyVFOV)
	if err != nil {
		logger.Error("configuration must provide vfov in degrees", "error", err)
		os.Exit(1)
	}
	cam, err := geom.NewRectilinear(base.Cols(), base.Rows(), vfovDeg*math.Pi/180)
	if err != nil {
		logger.Error("invalid camera model", "vfov_deg", vfovDeg, "error", err)
		os.Exit(1)
	}

	annot := render.NewAnnotator(base, cam)
	win, err := ui.NewWindow("Sphere calibration", annot, logger)
	if err != nil {
		logger.Error("could not build the calibration window", "error", err)
		os.Exit(1)
	}
	session := calib.NewSession(calib.Deps{
		Store:    store,
		Geom:     cam,
		Display:  win,
		Prompter: ui.NewConsolePrompter(os.Stdin, os.Stdout),
		Events:   win,
		Logger:   logger,
	})

	if !win.Run(session.Run) {
		os.Exit(1)
	}
}
