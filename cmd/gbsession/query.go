package main

import (
	"context"
	"fmt"
	"time"

	"github.com/arzzra/gb_session/pkg/command"
	"github.com/emiago/sipgo/sip"
	"github.com/spf13/cobra"
)

var (
	queryWait    time.Duration
	queryChannel string
	ptzFlags     command.PTZControl
)

var queryCmd = &cobra.Command{
	Use:   "query <info|status|catalog|preset|subscribe|ptz> <device-id>",
	Short: "Отправить запрос устройству и показать его ответные MESSAGE",
	Long: `Отправляет запрос MANSCDP устройству из конфигурации и в течение --wait
печатает MESSAGE и NOTIFY, которые устройство присылает в ответ.

Примеры:
  gbsession query info 34020000001320000001 -c gbs.yaml
  gbsession query preset 34020000001320000001 --channel 34020000001310000001
  gbsession query ptz 34020000001320000001 --channel 34020000001310000001 --lr 2 --hs 129`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, deviceID := args[0], args[1]

		show := func(req *sip.Request) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s от %s:\n%s\n", req.Method, req.Source(), req.Body())
		}
		a, stop, err := start(cmd.Context(), func(a *app) {
			a.transport.OnMessage(show)
			a.transport.OnNotify(show)
		})
		if err != nil {
			return err
		}
		defer stop()

		if err := sendQuery(cmd.Context(), a.service, kind, deviceID); err != nil {
			return err
		}

		select {
		case <-time.After(queryWait):
		case <-cmd.Context().Done():
		}
		return nil
	},
}

func sendQuery(ctx context.Context, s *command.Service, kind, deviceID string) error {
	switch kind {
	case "info":
		return s.Query.QueryDeviceInfo(ctx, deviceID)
	case "status":
		return s.Query.QueryDeviceStatus(ctx, deviceID)
	case "catalog":
		return s.Query.QueryDeviceCatalog(ctx, deviceID)
	case "subscribe":
		return s.Query.SubscribeDeviceCatalog(ctx, deviceID)
	case "preset":
		return s.Query.QueryPreset(ctx, deviceID, queryChannel)
	case "ptz":
		ptz := ptzFlags
		ptz.DeviceID = deviceID
		ptz.ChannelID = queryChannel
		return s.Control.ControlPTZ(ctx, ptz)
	default:
		return fmt.Errorf("неизвестный запрос %q", kind)
	}
}

func init() {
	queryCmd.Flags().DurationVarP(&queryWait, "wait", "w", 5*time.Second, "сколько ждать ответных MESSAGE")
	queryCmd.Flags().StringVar(&queryChannel, "channel", "", "id канала (preset, ptz)")
	queryCmd.Flags().Uint8Var(&ptzFlags.LeftRight, "lr", 0, "ptz: 0 стоп, 1 влево, 2 вправо")
	queryCmd.Flags().Uint8Var(&ptzFlags.UpDown, "ud", 0, "ptz: 0 стоп, 1 вверх, 2 вниз")
	queryCmd.Flags().Uint8Var(&ptzFlags.InOut, "io", 0, "ptz: 0 стоп, 1 приближение, 2 удаление")
	queryCmd.Flags().Uint8Var(&ptzFlags.HorizonSpeed, "hs", 0, "ptz: горизонтальная скорость")
	queryCmd.Flags().Uint8Var(&ptzFlags.VerticalSpeed, "vs", 0, "ptz: вертикальная скорость")
	queryCmd.Flags().Uint8Var(&ptzFlags.ZoomSpeed, "zs", 0, "ptz: скорость зума 0-15")
}
