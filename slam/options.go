package slam

import (
	"os"

	"github.com/pkg/errors"
)

// SensorMode selects which tracking front end an engine runs.
type SensorMode int

const (
	Monocular SensorMode = iota
	Stereo
)

func (m SensorMode) String() string {
	switch m {
	case Monocular:
		return "monocular"
	case Stereo:
		return "stereo"
	}
	return "unknown"
}

// ParseSensorMode maps the value of the sensor ros param to a mode.
func ParseSensorMode(name string) (SensorMode, error) {
	switch name {
	case "mono", "monocular":
		return Monocular, nil
	case "stereo":
		return Stereo, nil
	}
	return Monocular, errors.Errorf("unknown sensor mode %q", name)
}

// Options carries everything an engine needs to start tracking.
type Options struct {
	VocabularyPath string
	SettingsPath   string
	Sensor         SensorMode
	UseViewer      bool
	Verbose        bool
}

// Validate checks that the vocabulary file is readable and that the
// settings file parses with sane camera and extractor values.
func (o Options) Validate() error {
	f, err := os.Open(o.VocabularyPath)
	if err != nil {
		return errors.Wrap(err, "vocabulary file is not readable")
	}
	f.Close()
	if _, err := LoadSettings(o.SettingsPath); err != nil {
		return err
	}
	return nil
}
