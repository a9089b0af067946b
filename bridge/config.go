package bridge

import (
	"strconv"

	"github.com/edwinhayes/orb-slam2-ros/ros"
	"github.com/edwinhayes/orb-slam2-ros/slam"
	"github.com/pkg/errors"
)

// Config collects everything the bridge reads from the parameter server.
// All parameters live in the node's private namespace, so a launch file
// sets them as e.g. orb_slam2_ros/settings_file_path.
type Config struct {
	// VocabularyFilePath and SettingsFilePath locate the engine inputs.
	// Both are required; there is no sensible default for either.
	VocabularyFilePath string
	SettingsFilePath   string

	// UseViewer enables the engine's own visualization window.
	UseViewer bool
	// Verbose lowers the log severity to debug.
	Verbose bool

	// FrameId and ChildFrameId name the fixed world frame and the moving
	// camera frame on every published transform.
	FrameId      string
	ChildFrameId string

	// Sensor selects the camera setup the engine is fed from.
	Sensor slam.SensorMode

	// Engine selects the tracking engine implementation.
	Engine string

	// TrajectoryOutputPath, when set, is where the final keyframe
	// trajectory is saved on shutdown, one "stamp tx ty tz qx qy qz qw"
	// line per keyframe.
	TrajectoryOutputPath string
}

// DefaultConfig returns the configuration used when no parameters are set,
// except for the required file paths which have no default.
func DefaultConfig() Config {
	return Config{
		FrameId:      "world",
		ChildFrameId: "cam0",
		Sensor:       slam.Monocular,
		Engine:       "sim",
	}
}

// ConfigFromParams reads the node's private parameters into a Config.
// Missing optional parameters keep their defaults; a missing required
// parameter is an error.
func ConfigFromParams(node ros.Node) (Config, error) {
	cfg := DefaultConfig()

	var err error
	if cfg.VocabularyFilePath, err = requiredParam(node, "vocabulary_file_path"); err != nil {
		return cfg, err
	}
	if cfg.SettingsFilePath, err = requiredParam(node, "settings_file_path"); err != nil {
		return cfg, err
	}

	cfg.UseViewer = boolParam(node, "use_viewer", cfg.UseViewer)
	cfg.Verbose = boolParam(node, "verbose", cfg.Verbose)
	cfg.FrameId = stringParam(node, "frame_id", cfg.FrameId)
	cfg.ChildFrameId = stringParam(node, "child_frame_id", cfg.ChildFrameId)
	cfg.Engine = stringParam(node, "engine", cfg.Engine)
	cfg.TrajectoryOutputPath = stringParam(node, "trajectory_output_path", cfg.TrajectoryOutputPath)

	if mode := stringParam(node, "sensor", ""); mode != "" {
		if cfg.Sensor, err = slam.ParseSensorMode(mode); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// SlamOptions maps the config onto the engine options.
func (c Config) SlamOptions() slam.Options {
	return slam.Options{
		VocabularyPath: c.VocabularyFilePath,
		SettingsPath:   c.SettingsFilePath,
		Sensor:         c.Sensor,
		UseViewer:      c.UseViewer,
		Verbose:        c.Verbose,
	}
}

func requiredParam(node ros.Node, name string) (string, error) {
	value, err := node.GetParam("~" + name)
	if err != nil {
		return "", errors.Errorf("Please provide the %s as a ros param.", name)
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", errors.Errorf("Please provide the %s as a ros param.", name)
	}
	return s, nil
}

func stringParam(node ros.Node, name string, fallback string) string {
	value, err := node.GetParam("~" + name)
	if err != nil {
		return fallback
	}
	if s, ok := value.(string); ok && s != "" {
		return s
	}
	return fallback
}

// boolParam accepts both real booleans and string parameters like "true",
// since rosparam set from the command line often produces the latter.
func boolParam(node ros.Node, name string, fallback bool) bool {
	value, err := node.GetParam("~" + name)
	if err != nil {
		return fallback
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}
