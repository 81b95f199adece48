package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/arzzra/gb_session/pkg/command"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

// ErrUnknownDevice устройство не найдено в реестре
var ErrUnknownDevice = errors.New("устройство не зарегистрировано")

// Device сетевой адрес зарегистрированного устройства
type Device struct {
	ID        string
	Host      string
	Port      int
	Transport string
}

// Addr адрес назначения host:port
func (d Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// DeviceLookup источник адресов устройств (регистрации хранятся вне этого модуля)
type DeviceLookup interface {
	Lookup(ctx context.Context, deviceID string) (Device, error)
}

// StaticDevices реестр устройств в памяти
type StaticDevices struct {
	mu      sync.RWMutex
	devices map[string]Device
}

// NewStaticDevices создает реестр из списка устройств
func NewStaticDevices(devices ...Device) *StaticDevices {
	s := &StaticDevices{devices: make(map[string]Device, len(devices))}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	return s
}

// Put добавляет или обновляет устройство
func (s *StaticDevices) Put(d Device) {
	s.mu.Lock()
	s.devices[d.ID] = d
	s.mu.Unlock()
}

// Lookup реализует DeviceLookup
func (s *StaticDevices) Lookup(_ context.Context, deviceID string) (Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return Device{}, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return d, nil
}

// Config локальная идентичность SIP сервера
type Config struct {
	// ServerID 20-значный код сервера GB28181
	ServerID string
	// Realm домен SIP (обычно первые 10 цифр ServerID)
	Realm     string
	Host      string
	Port      int
	Transport string
	UserAgent string
	// SubscribeExpires срок подписки на каталог, секунды
	SubscribeExpires uint32
}

// RequestBuilder строит запросы GB28181 для слоя команд
type RequestBuilder struct {
	cfg     Config
	devices DeviceLookup

	sn   atomic.Uint32
	cseq atomic.Uint32
}

var _ command.Builder = (*RequestBuilder)(nil)

// New создает билдер
func New(cfg Config, devices DeviceLookup) *RequestBuilder {
	if cfg.Realm == "" && len(cfg.ServerID) >= 10 {
		cfg.Realm = cfg.ServerID[:10]
	}
	if cfg.Transport == "" {
		cfg.Transport = "UDP"
	}
	if cfg.SubscribeExpires == 0 {
		cfg.SubscribeExpires = 3600
	}
	return &RequestBuilder{cfg: cfg, devices: devices}
}

func (b *RequestBuilder) localURI() sip.Uri {
	return sip.Uri{Scheme: "sip", User: b.cfg.ServerID, Host: b.cfg.Realm}
}

func (b *RequestBuilder) contactURI() sip.Uri {
	return sip.Uri{Scheme: "sip", User: b.cfg.ServerID, Host: b.cfg.Host, Port: b.cfg.Port}
}

func (b *RequestBuilder) remoteURI(target string) sip.Uri {
	return sip.Uri{Scheme: "sip", User: target, Host: b.cfg.Realm}
}

func (b *RequestBuilder) lookup(ctx context.Context, deviceID string) (Device, error) {
	if deviceID == "" {
		return Device{}, errors.New("пустой идентификатор устройства")
	}
	return b.devices.Lookup(ctx, deviceID)
}

func (b *RequestBuilder) nextSN() uint32 {
	return b.sn.Add(1)
}

// nextCSeq следующий CSeq. Внутри диалога значение больше последнего
// известного номера dlgSeq.
func (b *RequestBuilder) nextCSeq(dlgSeq uint32) uint32 {
	seq := b.cseq.Add(1)
	if seq <= dlgSeq {
		seq = dlgSeq + 1
	}
	return seq
}

// newRequest собирает запрос к target (устройство или канал) по адресу dev
func (b *RequestBuilder) newRequest(method sip.RequestMethod, dev Device, target string, opts ...RequestOpt) *sip.Request {
	recipient := sip.Uri{Scheme: "sip", User: target, Host: dev.Host, Port: dev.Port}
	req := sip.NewRequest(method, recipient)

	base := []RequestOpt{
		WithContact(b.contactURI()),
		WithMaxForwards(70),
		WithUserAgent(b.cfg.UserAgent),
		WithTransport(transportOf(dev, b.cfg.Transport)),
	}
	for _, opt := range append(base, opts...) {
		opt(req)
	}
	return req
}

// outOfDialog запрос вне диалога: новый Call-ID и тег From
func (b *RequestBuilder) outOfDialog(method sip.RequestMethod, dev Device, target string, opts ...RequestOpt) (string, uint32, *sip.Request) {
	callID := newCallID()
	seq := b.nextCSeq(0)
	head := []RequestOpt{
		WithFrom(b.localURI(), newTag()),
		WithTo(b.remoteURI(target), ""),
		WithCallID(callID),
		WithCSeq(seq, method),
	}
	return callID, seq, b.newRequest(method, dev, target, append(head, opts...)...)
}

func transportOf(dev Device, fallback string) string {
	if dev.Transport != "" {
		return strings.ToUpper(dev.Transport)
	}
	return strings.ToUpper(fallback)
}

func newCallID() string {
	return uuid.New().String()
}

func newTag() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// targetOf канал, если задан, иначе само устройство
func targetOf(deviceID, channelID string) string {
	if channelID != "" {
		return channelID
	}
	return deviceID
}
