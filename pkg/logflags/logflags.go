// Package logflags turns component debug logging on and off from the
// command line and hands out configured loggers to the rest of the
// module.
package logflags

import (
	"errors"
	"io"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var scanner = false
var patch = false
var sigconfig = false

// logOut is where component loggers write. On a Windows terminal it
// is wrapped so ANSI color sequences render correctly.
var logOut io.Writer = os.Stderr

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	logger := logrus.New().WithFields(fields)
	logger.Logger.Out = logOut
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logger.Logger.Formatter = &logrus.TextFormatter{ForceColors: true}
	}
	logger.Logger.Level = logrus.DebugLevel
	if !flag {
		logger.Logger.Level = logrus.PanicLevel
	}
	return logger
}

// Scanner returns true if the scan orchestrator should log regions
// and matches.
func Scanner() bool {
	return scanner
}

// ScannerLogger returns a logger for the scan orchestrator.
func ScannerLogger() *logrus.Entry {
	return makeLogger(scanner, logrus.Fields{"layer": "scanner"})
}

// Patch returns true if patch apply/restore should be logged.
func Patch() bool {
	return patch
}

// PatchLogger returns a logger for the patch primitive.
func PatchLogger() *logrus.Entry {
	return makeLogger(patch, logrus.Fields{"layer": "patch"})
}

// Config returns true if signature file loading should be logged.
func Config() bool {
	return sigconfig
}

// ConfigLogger returns a logger for signature file loading.
func ConfigLogger() *logrus.Entry {
	return makeLogger(sigconfig, logrus.Fields{"layer": "config"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets component flags based on the contents of logstr.
func Setup(logFlag bool, logstr string) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logOut = colorable.NewColorableStderr()
	}
	if !logFlag {
		log.SetOutput(ioutil.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "scanner"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		switch logcmd {
		case "scanner":
			scanner = true
		case "patch":
			patch = true
		case "config":
			sigconfig = true
		}
	}
	return nil
}
