// Package config turns viper's key/value view of a config file (or its
// defaults) into a validated Config the miner package can act on, grounded
// on cmd/gominer/main.go's viper wiring but moved out of cmd so Miner.Reload
// never has to reach into a package-level viper singleton directly.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/AGPFMiner/vertminer/strategy"
	"github.com/AGPFMiner/vertminer/types"
)

// poolConfig is the on-disk shape of one pool entry, decoded with
// mapstructure's default case-insensitive field matching via viper.
type poolConfig struct {
	Host      string
	Port      int
	User      string
	Pass      string
	Secret    string
	TLS       bool
	Keepalive bool
	Mode      string // "stratum" (default) or "auto_eth"
}

func (p poolConfig) toPool() (types.Pool, error) {
	if p.Host == "" {
		return types.Pool{}, fmt.Errorf("pool entry is missing host")
	}
	if p.Port <= 0 {
		return types.Pool{}, fmt.Errorf("pool %s: port must be positive, got %d", p.Host, p.Port)
	}
	mode := types.ProtocolStratum
	switch p.Mode {
	case "", "stratum":
		mode = types.ProtocolStratum
	case "auto_eth":
		mode = types.ProtocolAutoETH
	default:
		return types.Pool{}, fmt.Errorf("pool %s: unknown mode %q", p.Host, p.Mode)
	}
	return types.Pool{
		Host:      p.Host,
		Port:      p.Port,
		User:      p.User,
		Pass:      p.Pass,
		Secret:    p.Secret,
		TLS:       p.TLS,
		Keepalive: p.Keepalive,
		Mode:      mode,
	}, nil
}

// Config is the fully parsed, validated configuration for one miner
// instance — everything Miner.Reload needs to rebuild its strategy,
// dataset and status API.
type Config struct {
	Pools []types.Pool
	Algo  types.Algorithm

	Donate strategy.DonateConfig

	DataFile    string
	GenDataFile bool

	WebEnable bool
	WebListen string

	LogLevel string
}

// SetDefaults installs every default cmd/vertminer relies on being present
// even with no config file at all, mirroring the teacher's init()-time
// viper.SetDefault calls.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("algo", "verthash")
	v.SetDefault("donatelevel", 1)
	v.SetDefault("proxydonate", "auto")
	v.SetDefault("retries", 5)
	v.SetDefault("retrypause", "5s")
	v.SetDefault("datafile", "verthash.dat")
	v.SetDefault("gendatafile", false)
	v.SetDefault("api-service", true)
	v.SetDefault("api-listen", "0.0.0.0:8000")
	v.SetDefault("debug", "info")
}

// FromViper decodes and validates v's current state into a Config. Every
// malformed pool entry is collected via multierr rather than returning on
// the first one, so a typo in pool 3 of 5 doesn't hide a typo in pool 1.
func FromViper(v *viper.Viper) (*Config, error) {
	var raw []poolConfig
	if err := v.UnmarshalKey("pools", &raw); err != nil {
		return nil, fmt.Errorf("config: decoding pools: %w", err)
	}

	var pools []types.Pool
	var errs error
	for _, p := range raw {
		pool, err := p.toPool()
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		pools = append(pools, pool)
	}
	if len(pools) == 0 {
		errs = multierr.Append(errs, fmt.Errorf("config: at least one pool is required"))
	}
	if errs != nil {
		return nil, errs
	}

	retryPause := v.GetDuration("retrypause")
	if retryPause <= 0 {
		retryPause = 5 * time.Second
	}

	return &Config{
		Pools: pools,
		Algo:  types.Algorithm(v.GetString("algo")),
		Donate: strategy.DonateConfig{
			DonateLevel:  v.GetInt("donatelevel"),
			ProxyDonate:  parseProxyDonate(v.GetString("proxydonate")),
			Wallet:       v.GetString("wallet"),
			TLSSupported: v.GetBool("donate.tlssupported"),
			TLSHost:      v.GetString("donate.tlshost"),
			TLSPort:      v.GetInt("donate.tlsport"),
			PlainHost:    v.GetString("donate.plainhost"),
			PlainPort:    v.GetInt("donate.plainport"),
			BackupHost:   v.GetString("donate.backuphost"),
			BackupPort:   v.GetInt("donate.backupport"),
			Retries:      v.GetInt("retries"),
			RetryPause:   retryPause,
		},
		DataFile:    v.GetString("datafile"),
		GenDataFile: v.GetBool("gendatafile"),
		WebEnable:   v.GetBool("api-service"),
		WebListen:   v.GetString("api-listen"),
		LogLevel:    v.GetString("debug"),
	}, nil
}

func parseProxyDonate(s string) strategy.ProxyDonateMode {
	if s == "auto" {
		return strategy.ProxyDonateAuto
	}
	return strategy.ProxyDonateNone
}
