package slam

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Settings is the subset of an ORB_SLAM2 settings file the node validates
// before handing the path to an engine. Anything else in the file is left
// for the engine itself to interpret.
type Settings struct {
	Fx  float64 `yaml:"Camera.fx"`
	Fy  float64 `yaml:"Camera.fy"`
	Cx  float64 `yaml:"Camera.cx"`
	Cy  float64 `yaml:"Camera.cy"`
	Fps float64 `yaml:"Camera.fps"`

	NFeatures   int     `yaml:"ORBextractor.nFeatures"`
	ScaleFactor float64 `yaml:"ORBextractor.scaleFactor"`
	NLevels     int     `yaml:"ORBextractor.nLevels"`
}

// LoadSettings reads an ORB_SLAM2 settings file. The files come out of
// OpenCV's FileStorage, whose "%YAML:1.0" directive is not valid YAML, so
// the directive line is stripped before parsing.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read settings file")
	}
	settings := new(Settings)
	if err := yaml.Unmarshal(stripDirective(data), settings); err != nil {
		return nil, errors.Wrap(err, "failed to parse settings file")
	}
	if err := settings.validate(); err != nil {
		return nil, errors.Wrapf(err, "settings file %s", path)
	}
	return settings, nil
}

func stripDirective(data []byte) []byte {
	if !bytes.HasPrefix(data, []byte("%YAML")) {
		return data
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[i+1:]
	}
	return nil
}

func (s *Settings) validate() error {
	if s.Fx <= 0 || s.Fy <= 0 {
		return errors.Errorf("camera focal length must be positive, got fx=%v fy=%v", s.Fx, s.Fy)
	}
	if s.Cx <= 0 || s.Cy <= 0 {
		return errors.Errorf("camera principal point must be positive, got cx=%v cy=%v", s.Cx, s.Cy)
	}
	if s.Fps <= 0 {
		return errors.Errorf("camera fps must be positive, got %v", s.Fps)
	}
	if s.NFeatures <= 0 {
		return errors.Errorf("extractor needs a positive feature count, got %d", s.NFeatures)
	}
	if s.ScaleFactor <= 1.0 {
		return errors.Errorf("extractor scale factor must exceed 1.0, got %v", s.ScaleFactor)
	}
	if s.NLevels < 1 {
		return errors.Errorf("extractor needs at least one pyramid level, got %d", s.NLevels)
	}
	return nil
}
