package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/edwinhayes/orb-slam2-ros/bridge"
	"github.com/edwinhayes/orb-slam2-ros/ros"
	"github.com/edwinhayes/orb-slam2-ros/slam"
	"github.com/edwinhayes/orb-slam2-ros/slam/fake"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

func run() error {
	node, err := ros.NewNode("orb_slam2_ros", os.Args)
	if err != nil {
		return err
	}
	defer node.Shutdown()

	cfg, err := bridge.ConfigFromParams(node)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		node.SetLogSeverity(logrus.DebugLevel)
	}
	logger := *node.Logger()

	opts := cfg.SlamOptions()
	if err := opts.Validate(); err != nil {
		return err
	}

	engine, err := newEngine(cfg)
	if err != nil {
		return err
	}
	logger.Infof("tracking with the %s engine in %s mode", cfg.Engine, cfg.Sensor)

	b := bridge.New(node, engine, cfg)

	var g errgroup.Group
	g.Go(b.RunTrajectoryPublisher)
	g.Go(b.RunTFPublisher)
	spinDone := make(chan struct{})
	g.Go(func() error {
		node.Spin()
		close(spinDone)
		return nil
	})
	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Infof("received %v, shutting down", sig)
		case <-spinDone:
			// The master asked the node to shut down.
			logger.Info("node stopped, shutting down")
		}

		// The engine goes down first so no more callbacks reach the
		// bridge, then the bridge drains and exports, then the node
		// unblocks Spin.
		if err := engine.Shutdown(); err != nil {
			logger.Warnf("engine shutdown: %v", err)
		}
		err := b.Shutdown()
		node.Shutdown()
		return err
	})
	return g.Wait()
}

// newEngine builds the tracking engine the config asks for. The simulated
// engine free runs at the settings file's camera rate, so the node produces
// poses and trajectories without a camera attached.
func newEngine(cfg bridge.Config) (slam.System, error) {
	switch cfg.Engine {
	case "sim":
		settings, err := slam.LoadSettings(cfg.SettingsFilePath)
		if err != nil {
			return nil, err
		}
		return fake.New(fake.Config{FrameRate: settings.Fps}), nil
	}
	return nil, errors.Errorf("unknown tracking engine %q", cfg.Engine)
}
