package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config конфигурация сервиса сессий GB28181
type Config struct {
	SIP     SIPConfig      `mapstructure:"sip"`
	Session SessionConfig  `mapstructure:"session"`
	Log     LogConfig      `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Devices []DeviceConfig `mapstructure:"devices"`
}

// SIPConfig локальная идентичность и транспорты
type SIPConfig struct {
	// ServerID 20-значный код сервера
	ServerID string `mapstructure:"server_id"`
	// Realm домен, по умолчанию первые 10 цифр ServerID
	Realm     string `mapstructure:"realm"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Transport string `mapstructure:"transport"`
	UserAgent string `mapstructure:"user_agent"`
	// SubscribeExpires срок подписки на каталог, секунды
	SubscribeExpires uint32 `mapstructure:"subscribe_expires"`
	// Listen адреса прослушивания, по умолчанию Host:Port по Transport
	Listen []ListenConfig `mapstructure:"listen"`
}

// ListenConfig один слушатель
type ListenConfig struct {
	Type string `mapstructure:"type"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// SessionConfig параметры слоя команд
type SessionConfig struct {
	// WaitTimeout срок ожидания ответа на один обмен
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
	// LazyDelay задержка отложенных запросов после регистрации
	LazyDelay time.Duration `mapstructure:"lazy_delay"`
	// ChannelCapacity емкость канала ответов
	ChannelCapacity int `mapstructure:"channel_capacity"`
}

// LogConfig настройки логирования
type LogConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	File   FileConfig `mapstructure:"file"`
}

// FileConfig вывод в файл с ротацией
type FileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig экспорт метрик Prometheus
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// DeviceConfig статически известное устройство
type DeviceConfig struct {
	ID        string `mapstructure:"id"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Transport string `mapstructure:"transport"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		SIP: SIPConfig{
			ServerID:         "34020000002000000001",
			Host:             "127.0.0.1",
			Port:             5060,
			Transport:        "UDP",
			UserAgent:        "gb-session",
			SubscribeExpires: 3600,
		},
		Session: SessionConfig{
			WaitTimeout:     8 * time.Second,
			LazyDelay:       2 * time.Second,
			ChannelCapacity: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File: FileConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
			},
		},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Path:      "/metrics",
			Namespace: "gb",
		},
	}
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	var errs []error

	if len(c.SIP.ServerID) != 20 {
		errs = append(errs, fmt.Errorf("sip.server_id должен содержать 20 цифр: %q", c.SIP.ServerID))
	}
	if c.SIP.Port <= 0 || c.SIP.Port > 65535 {
		errs = append(errs, fmt.Errorf("некорректный sip.port %d", c.SIP.Port))
	}
	if !validTransport(c.SIP.Transport) {
		errs = append(errs, fmt.Errorf("неподдерживаемый sip.transport %q", c.SIP.Transport))
	}
	for i, l := range c.SIP.Listen {
		if !validTransport(l.Type) {
			errs = append(errs, fmt.Errorf("sip.listen[%d]: неподдерживаемый тип %q", i, l.Type))
		}
		if l.Port <= 0 || l.Port > 65535 {
			errs = append(errs, fmt.Errorf("sip.listen[%d]: некорректный порт %d", i, l.Port))
		}
	}

	if c.Session.WaitTimeout <= 0 {
		errs = append(errs, errors.New("session.wait_timeout должен быть положительным"))
	}
	if c.Session.LazyDelay <= 0 {
		errs = append(errs, errors.New("session.lazy_delay должен быть положительным"))
	}
	if c.Session.ChannelCapacity <= 0 {
		errs = append(errs, errors.New("session.channel_capacity должен быть положительным"))
	}

	if c.Log.File.Enabled && c.Log.File.Path == "" {
		errs = append(errs, errors.New("log.file.path обязателен при включенном выводе в файл"))
	}

	for i, d := range c.Devices {
		if d.ID == "" || d.Host == "" || d.Port <= 0 {
			errs = append(errs, fmt.Errorf("devices[%d]: нужны id, host и port", i))
		}
	}

	return errors.Join(errs...)
}

// ListenAddrs слушатели с учетом значения по умолчанию
func (c *SIPConfig) ListenAddrs() []ListenConfig {
	if len(c.Listen) > 0 {
		return c.Listen
	}
	return []ListenConfig{{Type: c.Transport, Host: c.Host, Port: c.Port}}
}

func validTransport(t string) bool {
	switch strings.ToUpper(t) {
	case "UDP", "TCP":
		return true
	default:
		return false
	}
}
