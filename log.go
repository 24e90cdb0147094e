package ku

import (
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// NewLogger maps -v counts to levels: <0 warn, 0 info, 1 debug, 2+ trace.
func NewLogger(verbosity int, w io.Writer) *logrus.Logger {
	if w == nil {
		w = os.Stderr
	}
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	switch {
	case verbosity < 0:
		logger.SetLevel(logrus.WarnLevel)
	case verbosity == 0:
		logger.SetLevel(logrus.InfoLevel)
	case verbosity == 1:
		logger.SetLevel(logrus.DebugLevel)
	default:
		logger.SetLevel(logrus.TraceLevel)
	}
	return logger
}

var (
	colBanner  = color.New(color.FgCyan, color.Bold)
	colSuccess = color.New(color.FgGreen, color.Bold)
	colFailure = color.New(color.FgRed, color.Bold)
)

// PrintBanner writes a colored one-line heading.
func PrintBanner(w io.Writer, msg string) {
	colBanner.Fprintf(w, "==> %s\n", msg)
}
