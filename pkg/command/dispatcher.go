package command

import (
	"context"
	"fmt"
	"time"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/sirupsen/logrus"
)

// Config конфигурация диспетчера команд
type Config struct {
	// LazyDelay - задержка отложенных запросов (после регистрации устройства)
	LazyDelay time.Duration
	// ChannelCapacity - емкость канала ответов одного обмена
	ChannelCapacity int
	// Logger для команд
	Logger *logrus.Entry
	// Metrics может быть nil
	Metrics *session.Metrics
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LazyDelay:       2 * time.Second,
		ChannelCapacity: 10,
		Logger:          logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Dispatcher общий путь отправки для всех команд: регистрация обмена в
// таблице корреляции, передача транспорту и ожидание ответа.
type Dispatcher struct {
	table     *session.Table
	transport Transport
	builder   Builder

	lazyDelay time.Duration
	capacity  int
	log       *logrus.Entry
	metrics   *session.Metrics
}

// NewDispatcher создает диспетчер
func NewDispatcher(table *session.Table, builder Builder, transport Transport, config *Config) *Dispatcher {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	config = &cfg
	if config.LazyDelay <= 0 {
		config.LazyDelay = defaults.LazyDelay
	}
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = defaults.ChannelCapacity
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Dispatcher{
		table:     table,
		transport: transport,
		builder:   builder,
		lazyDelay: config.LazyDelay,
		capacity:  config.ChannelCapacity,
		log:       config.Logger.WithField("component", "command"),
		metrics:   config.Metrics,
	}
}

// send регистрирует обмен и передает запрос транспорту.
// ch == nil - ответ никто не читает. При ошибке транспорта регистрация снимается.
func (d *Dispatcher) send(id session.Ident, req *sip.Request, ch chan session.Envelope) error {
	if err := d.table.Register(id, ch); err != nil {
		return err
	}
	if err := d.transport.Send(id, req); err != nil {
		d.table.Remove(id)
		d.log.WithError(err).WithField("ident", id.String()).Error("не удалось отправить запрос")
		return fmt.Errorf("отправка %s: %w", req.Method, err)
	}
	return nil
}

// sendLazy откладывает отправку на lazyDelay. Отложенное действие идет
// тем же путем send, что и немедленная отправка.
func (d *Dispatcher) sendLazy(op string, id session.Ident, req *sip.Request) error {
	fireAt := time.Now().Add(d.lazyDelay)
	return d.table.Schedule(id, func() {
		err := d.send(id, req, nil)
		if err != nil {
			d.log.WithError(err).WithFields(logrus.Fields{
				"op":    op,
				"ident": id.String(),
			}).Warn("отложенный запрос не отправлен")
		}
		d.metrics.ObserveCommand(op, err)
	}, fireAt)
}

// fire отправляет запрос без ожидания ответа
func (d *Dispatcher) fire(op string, id session.Ident, req *sip.Request) error {
	err := d.send(id, req, nil)
	d.metrics.ObserveCommand(op, err)
	return err
}

// roundTrip отправляет запрос и ждет один терминальный ответ.
// Успех только при коде 200, регистрация снимается на любом пути выхода.
func (d *Dispatcher) roundTrip(ctx context.Context, op string, id session.Ident, req *sip.Request) (err error) {
	defer func() { d.metrics.ObserveCommand(op, err) }()

	ch := make(chan session.Envelope, d.capacity)
	if err := d.send(id, req, ch); err != nil {
		return err
	}
	defer d.table.Remove(id)

	log := d.log.WithFields(logrus.Fields{"op": op, "ident": id.String()})
	for {
		select {
		case env, ok := <-ch:
			if !ok || env.IsClosed() {
				log.Error("устройство не ответило или истек таймаут")
				return session.ErrNoResponse(op, id, env.Err)
			}
			code := env.StatusCode()
			if code < 200 {
				log.WithField("status", code).Debug("предварительный ответ")
				continue
			}
			if code == 200 {
				return nil
			}
			log.WithField("status", code).Error("устройство отклонило запрос")
			return session.ErrRejected(op, id, code, env.Response.Reason)
		case <-ctx.Done():
			log.WithError(ctx.Err()).Error("ожидание ответа прервано")
			return session.ErrNoResponse(op, id, ctx.Err())
		}
	}
}

type buildFunc func() (session.Ident, *sip.Request, error)

func (d *Dispatcher) build(op string, fn buildFunc) (session.Ident, *sip.Request, error) {
	id, req, err := fn()
	if err != nil {
		d.log.WithError(err).WithField("op", op).Warn("не удалось построить запрос")
		d.metrics.ObserveCommand(op, err)
		return session.Ident{}, nil, fmt.Errorf("%s: %w", op, err)
	}
	return id, req, nil
}

// dispatch строит запрос и отправляет без ожидания
func (d *Dispatcher) dispatch(op string, fn buildFunc) error {
	id, req, err := d.build(op, fn)
	if err != nil {
		return err
	}
	return d.fire(op, id, req)
}

// dispatchLazy строит запрос сейчас, а отправляет через LazyDelay
func (d *Dispatcher) dispatchLazy(op string, fn buildFunc) error {
	id, req, err := d.build(op, fn)
	if err != nil {
		return err
	}
	return d.sendLazy(op, id, req)
}
