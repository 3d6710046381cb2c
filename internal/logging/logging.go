package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"

	"pertforest/internal/config"
)

// Logging holds the formatter, level and sink used by logrus.
type Logging struct {
	Format *logrus.TextFormatter
	Level  logrus.Level
	Writer io.Writer
}

const (
	TimeFormat   = "2006-01-02 15:04:05"
	DefaultLevel = logrus.InfoLevel
)

// InitLog builds a Logging from conf. With an empty path records go to
// stderr, otherwise to fileName under the path, rotated hourly and kept
// for 30 days.
func InitLog(conf config.Log, fileName string) (*Logging, error) {
	level, err := logrus.ParseLevel(conf.Level)
	if err != nil {
		level = DefaultLevel
	}

	logging := &Logging{
		Level: level,
		Format: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: TimeFormat,
		},
		Writer: os.Stderr,
	}

	if conf.Path == "" {
		return logging, nil
	}

	if err := os.MkdirAll(conf.Path, 0755); err != nil {
		return nil, fmt.Errorf("mkdir logs error: %w", err)
	}

	logFileName := filepath.Join(conf.Path, fileName)
	writer, err := rotatelogs.New(
		logFileName+".%Y%m%d%H",
		rotatelogs.WithLinkName(logFileName),
		rotatelogs.WithMaxAge(720*time.Hour),
		rotatelogs.WithRotationTime(time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("new rotatelogs error: %w", err)
	}
	logging.Writer = writer

	return logging, nil
}

// Apply installs l as the logrus standard logger configuration.
func (l *Logging) Apply() {
	logrus.SetOutput(l.Writer)
	logrus.SetLevel(l.Level)
	logrus.SetFormatter(l.Format)
}
