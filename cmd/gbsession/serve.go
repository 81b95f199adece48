package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/arzzra/gb_session/pkg/config"
	"github.com/arzzra/gb_session/pkg/logger"
	"github.com/emiago/sipgo/sip"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить SIP транспорт и сервер метрик",
	Long: `Запускает прием запросов устройств и экспорт метрик Prometheus.

Для каждого устройства из конфигурации отправляются отложенные запросы
DeviceInfo, Catalog и подписка на каталог.

Примеры:
  gbsession serve -c gbs.yaml
  GBS_METRICS_ENABLED=true gbsession serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log, err := logger.New(cfg.Log)
		if err != nil {
			return err
		}

		a, err := newApp(cfg, log)
		if err != nil {
			_ = log.Close()
			return err
		}
		defer a.Close()

		a.transport.OnMessage(func(req *sip.Request) {
			a.log.Component("device").WithField("body", string(req.Body())).Info("MESSAGE устройства")
		})
		a.transport.OnNotify(func(req *sip.Request) {
			a.log.Component("device").WithField("body", string(req.Body())).Info("NOTIFY каталога")
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		for _, d := range cfg.Devices {
			a.announce(ctx, d.ID)
		}

		a.log.WithField("server_id", cfg.SIP.ServerID).Info("сервис запущен")
		err = a.run(ctx)
		a.log.Info("сервис остановлен")
		return err
	},
}
