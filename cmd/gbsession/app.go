package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/arzzra/gb_session/pkg/builder"
	"github.com/arzzra/gb_session/pkg/command"
	"github.com/arzzra/gb_session/pkg/config"
	"github.com/arzzra/gb_session/pkg/logger"
	"github.com/arzzra/gb_session/pkg/session"
	"github.com/arzzra/gb_session/pkg/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// app собранный сервис: таблица, билдер, транспорт и слой команд
type app struct {
	cfg *config.Config
	log *logger.Logger

	registry  *prometheus.Registry
	table     *session.Table
	devices   *builder.StaticDevices
	transport *transport.Transport
	service   *command.Service
}

func newApp(cfg *config.Config, log *logger.Logger) (*app, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := session.NewMetrics(&session.MetricsConfig{
		Namespace:  cfg.Metrics.Namespace,
		Subsystem:  "session",
		Registerer: registry,
	})

	table := session.NewTable(&session.TableConfig{
		WaitTimeout: cfg.Session.WaitTimeout,
		Logger:      log.Component("table"),
		Metrics:     metrics,
	})

	devices := builder.NewStaticDevices()
	for _, d := range cfg.Devices {
		devices.Put(builder.Device{ID: d.ID, Host: d.Host, Port: d.Port, Transport: d.Transport})
	}

	b := builder.New(builder.Config{
		ServerID:         cfg.SIP.ServerID,
		Realm:            cfg.SIP.Realm,
		Host:             cfg.SIP.Host,
		Port:             cfg.SIP.Port,
		Transport:        cfg.SIP.Transport,
		UserAgent:        cfg.SIP.UserAgent,
		SubscribeExpires: cfg.SIP.SubscribeExpires,
	}, devices)

	listen := make([]transport.ListenConfig, 0, len(cfg.SIP.Listen))
	for _, l := range cfg.SIP.ListenAddrs() {
		listen = append(listen, transport.ListenConfig{Type: transport.Type(l.Type), Host: l.Host, Port: l.Port})
	}
	tr, err := transport.New(transport.Config{
		UserAgent: cfg.SIP.UserAgent,
		Hostname:  cfg.SIP.Host,
		Listen:    listen,
	}, table, devices, log.Component("sip"))
	if err != nil {
		table.Close()
		return nil, err
	}

	service := command.NewService(table, b, tr, &command.Config{
		LazyDelay:       cfg.Session.LazyDelay,
		ChannelCapacity: cfg.Session.ChannelCapacity,
		Logger:          log.Component("command"),
		Metrics:         metrics,
	})

	return &app{
		cfg:       cfg,
		log:       log,
		registry:  registry,
		table:     table,
		devices:   devices,
		transport: tr,
		service:   service,
	}, nil
}

// run запускает SIP транспорт и сервер метрик, блокирует до отмены ctx
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.transport.Listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	if a.cfg.Metrics.Enabled {
		srv := &http.Server{
			Addr:         a.cfg.Metrics.Addr,
			Handler:      a.metricsHandler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			a.log.WithFields(logrus.Fields{
				"addr": a.cfg.Metrics.Addr,
				"path": a.cfg.Metrics.Path,
			}).Info("сервер метрик запущен")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("сервер метрик: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func (a *app) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	return mux
}

func (a *app) Close() {
	if err := a.transport.Close(); err != nil {
		a.log.WithError(err).Warn("закрытие транспорта")
	}
	a.table.Close()
	_ = a.log.Close()
}

// start собирает сервис из конфигурации и запускает прием в фоне.
// Используется командами, которым нужен один обмен с устройством.
// setup вызывается до запуска приема.
func start(ctx context.Context, setup func(a *app)) (*app, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	a, err := newApp(cfg, log)
	if err != nil {
		_ = log.Close()
		return nil, nil, err
	}

	if setup != nil {
		setup(a)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.run(ctx); err != nil {
			a.log.WithError(err).Error("сервис остановлен с ошибкой")
		}
	}()

	return a, func() {
		cancel()
		<-done
		a.Close()
	}, nil
}

// announce ставит отложенные запросы для устройства, как после его регистрации
func (a *app) announce(ctx context.Context, deviceID string) {
	log := a.log.Component("device").WithField("device", deviceID)
	q := a.service.Query
	for _, send := range []func(context.Context, string) error{
		q.LazyQueryDeviceInfo,
		q.LazyQueryDeviceCatalog,
		q.LazySubscribeDeviceCatalog,
	} {
		if err := send(ctx, deviceID); err != nil {
			log.WithError(err).Warn("не удалось поставить отложенный запрос")
		}
	}
}
