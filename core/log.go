// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"io"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewLogger creates the process logger, it writes to stderr unless out is
// given.
func NewLogger(cfg LogConfiguration, out ...io.Writer) (*log.Logger, error) {
	level := log.InfoLevel
	if cfg.Level != "" {
		l, err := log.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrap(err, "log level")
		}
		level = l
	}

	logger := log.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)
	if len(out) > 0 {
		logger.SetOutput(io.MultiWriter(out...))
	}
	if cfg.JSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
