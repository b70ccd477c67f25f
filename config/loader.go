package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Loader owns one viper instance and watches its backing file for changes,
// grounded on cmd/gominer/main.go's viper.SetConfigName/AddConfigPath/
// WatchConfig/OnConfigChange sequence. Unlike the teacher, which reaches
// into a package-level viper global from inside Miner.Reload, Loader hands
// a fully parsed *Config to onChange so the miner package never touches
// viper directly.
type Loader struct {
	v      *viper.Viper
	logger *zap.Logger
}

// NewLoader builds a Loader that looks for name (without extension) in
// configPaths, in order, falling back to built-in defaults if no file is
// found anywhere.
func NewLoader(name string, configPaths []string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := viper.New()
	SetDefaults(v)
	v.SetConfigName(name)
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	return &Loader{v: v, logger: logger.With(zap.String("component", "config"))}
}

// Load reads the config file, if any, and returns the parsed Config. A
// missing file is not an error — the built-in defaults still apply.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		l.logger.Warn("no config file found, using built-in defaults", zap.Error(err))
	}
	return FromViper(l.v)
}

// Watch starts watching the config file for changes, invoking onChange with
// the freshly reparsed Config every time it fires. Decode failures are
// logged and skipped — a bad edit should not tear down a running miner.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.logger.Info("config file changed", zap.String("file", e.Name))
		cfg, err := FromViper(l.v)
		if err != nil {
			l.logger.Error("new config is invalid, keeping the previous one", zap.Error(err))
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Viper exposes the underlying instance for callers that need a raw
// key (e.g. cmd binding a --config flag before the first Load).
func (l *Loader) Viper() *viper.Viper { return l.v }
