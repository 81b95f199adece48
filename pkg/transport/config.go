package transport

import (
	"fmt"
	"strings"
)

// Type тип транспортного протокола
type Type string

const (
	// UDP - UDP транспорт
	UDP Type = "UDP"
	// TCP - TCP транспорт
	TCP Type = "TCP"
)

// ListenConfig адрес прослушивания одного транспорта
type ListenConfig struct {
	Type Type
	Host string
	Port int
}

// Network имя сети для sipgo (udp, tcp)
func (lc ListenConfig) Network() string {
	return strings.ToLower(string(lc.Type))
}

// Addr адрес host:port
func (lc ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", lc.Host, lc.Port)
}

// Validate проверяет корректность конфигурации транспорта
func (lc ListenConfig) Validate() error {
	switch lc.Type {
	case UDP, TCP:
	default:
		return fmt.Errorf("неподдерживаемый тип транспорта: %s", lc.Type)
	}
	if lc.Port <= 0 || lc.Port > 65535 {
		return fmt.Errorf("некорректный порт %d", lc.Port)
	}
	return nil
}

// Config конфигурация SIP транспорта
type Config struct {
	// UserAgent строка User-Agent
	UserAgent string
	// Hostname для Via и Contact
	Hostname string
	// Listen транспорты для приема запросов устройств
	Listen []ListenConfig
}

// DefaultConfig возвращает конфигурацию по умолчанию: UDP на 0.0.0.0:5060
func DefaultConfig() Config {
	return Config{
		UserAgent: "gb-session",
		Listen:    []ListenConfig{{Type: UDP, Host: "0.0.0.0", Port: 5060}},
	}
}
