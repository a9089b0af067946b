package ros

import (
	modular "github.com/edwinhayes/logrus-modular"
	"github.com/sirupsen/logrus"
)

// newNodeLogger builds the logrus root and the module logger everything a
// node owns shares. Components hold a *modular.ModuleLogger and dereference
// it at call sites, so a severity change on the root applies everywhere at
// once.
func newNodeLogger() (modular.ModuleLogger, *logrus.Logger) {
	root := logrus.New()
	root.SetLevel(logrus.InfoLevel)
	return modular.NewRootLogger(root), root
}
