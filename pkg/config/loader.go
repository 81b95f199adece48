package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения: GBS_SIP_SERVER_ID, GBS_SESSION_WAIT_TIMEOUT ...
const EnvPrefix = "GBS"

// Load читает конфигурацию из файла path (yaml, json, toml) и переменных
// окружения. Пустой path - только значения по умолчанию и окружение.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if path != "" {
		dir := filepath.Dir(path)
		filename := filepath.Base(path)
		ext := filepath.Ext(filename)

		v.SetConfigName(strings.TrimSuffix(filename, ext))
		v.SetConfigType(strings.TrimPrefix(ext, "."))
		v.AddConfigPath(dir)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации: %w", err)
	}
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}
	return &cfg, nil
}

// setDefaults регистрирует ключи в viper, иначе AutomaticEnv их не увидит
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("sip.server_id", d.SIP.ServerID)
	v.SetDefault("sip.realm", d.SIP.Realm)
	v.SetDefault("sip.host", d.SIP.Host)
	v.SetDefault("sip.port", d.SIP.Port)
	v.SetDefault("sip.transport", d.SIP.Transport)
	v.SetDefault("sip.user_agent", d.SIP.UserAgent)
	v.SetDefault("sip.subscribe_expires", d.SIP.SubscribeExpires)

	v.SetDefault("session.wait_timeout", d.Session.WaitTimeout)
	v.SetDefault("session.lazy_delay", d.Session.LazyDelay)
	v.SetDefault("session.channel_capacity", d.Session.ChannelCapacity)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file.enabled", d.Log.File.Enabled)
	v.SetDefault("log.file.path", d.Log.File.Path)
	v.SetDefault("log.file.max_size_mb", d.Log.File.MaxSizeMB)
	v.SetDefault("log.file.max_backups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.max_age_days", d.Log.File.MaxAgeDays)
	v.SetDefault("log.file.compress", d.Log.File.Compress)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
}

// applyDefaults дополняет значения, которые зависят от других полей
func applyDefaults(cfg *Config) {
	if cfg.SIP.Realm == "" && len(cfg.SIP.ServerID) >= 10 {
		cfg.SIP.Realm = cfg.SIP.ServerID[:10]
	}
	cfg.SIP.Transport = strings.ToUpper(cfg.SIP.Transport)
	for i := range cfg.SIP.Listen {
		cfg.SIP.Listen[i].Type = strings.ToUpper(cfg.SIP.Listen[i].Type)
	}
	for i := range cfg.Devices {
		if cfg.Devices[i].Transport == "" {
			cfg.Devices[i].Transport = cfg.SIP.Transport
		}
	}
}
