package configs

import (
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const logLevelKey = "log-level"

// WatchRuntimeConfig loads settings that may change while the process runs
// (currently the log level) from file and re-applies them on every write.
func WatchRuntimeConfig(file string, logger *logrus.Logger) error {
	v := viper.New()
	v.SetConfigFile(file)
	err := v.ReadInConfig()
	if err != nil {
		return errors.Wrap(err, "error reading in runtime config")
	}

	err = applyRuntimeConfig(v, logger)
	if err != nil {
		return errors.Wrap(err, "runtime config is invalid")
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Infof("runtime config changed: %s", e.Name)
		if err := applyRuntimeConfig(v, logger); err != nil {
			logger.Warnf("ignoring runtime config change: %v", err)
		}
	})

	return nil
}

func applyRuntimeConfig(v *viper.Viper, logger *logrus.Logger) error {
	raw := v.GetString(logLevelKey)
	if raw == "" {
		return nil
	}

	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return err
	}

	if level != logger.GetLevel() {
		logger.Infof("setting log level to %v", level)
		logger.SetLevel(level)
	}
	return nil
}
