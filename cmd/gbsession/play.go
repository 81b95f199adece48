package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/arzzra/gb_session/pkg/command"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	playParams   command.StreamParams
	playMode     string
	playKind     string
	playDuration time.Duration
	playSpeed    float32
	playSeek     uint32
)

var playCmd = &cobra.Command{
	Use:   "play <device-id> <channel-id>",
	Short: "Согласовать медиапоток, удержать его и завершить BYE",
	Long: `Отправляет INVITE (live, playback или download), подтверждает 200 OK
через ACK, держит сессию --duration или до Ctrl+C и завершает ее BYE.
Для playback можно сменить скорость (--speed) и перемотать (--seek).

Примеры:
  gbsession play 34020000001320000001 34020000001310000001 --dst-ip 10.0.0.1 --dst-port 30000
  gbsession play 34020000001320000001 34020000001310000001 --kind playback \
      --start 1700000000 --end 1700003600 --speed 2 --dst-ip 10.0.0.1 --dst-port 30000`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := playParams
		params.DeviceID, params.ChannelID = args[0], args[1]

		mode, err := parseMode(playMode)
		if err != nil {
			return err
		}
		params.Mode = mode

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, shutdown, err := start(ctx, nil)
		if err != nil {
			return err
		}
		defer shutdown()

		return runPlay(ctx, a.service, a.log.Component("play"), params)
	},
}

func runPlay(ctx context.Context, s *command.Service, log *logrus.Entry, params command.StreamParams) error {
	var (
		neg *command.Negotiated
		err error
	)
	switch playKind {
	case "live":
		neg, err = s.Stream.PlayLiveInvite(ctx, params)
	case "playback":
		neg, err = s.Stream.PlaybackInvite(ctx, params)
	case "download":
		neg, err = s.Stream.DownloadInvite(ctx, params)
	default:
		return fmt.Errorf("неизвестный вид потока %q", playKind)
	}
	if err != nil {
		return err
	}

	callID, seq, err := s.Stream.InviteAck(params.DeviceID, neg.Response)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"call_id": callID,
		"codecs":  neg.Codecs,
		"ssrc":    neg.SSRC,
	}).Info("медиасессия установлена")

	dlg := command.DialogParams{
		DeviceID:  params.DeviceID,
		ChannelID: params.ChannelID,
		CallID:    callID,
		Seq:       seq,
		FromTag:   neg.FromTag,
		ToTag:     neg.ToTag,
	}

	if playSpeed > 0 {
		if err := s.Stream.PlaySpeed(ctx, dlg, playSpeed); err != nil {
			log.WithError(err).Warn("смена скорости")
		}
	}
	if playSeek > 0 {
		if err := s.Stream.PlaySeek(ctx, dlg, playSeek); err != nil {
			log.WithError(err).Warn("перемотка")
		}
	}

	select {
	case <-time.After(playDuration):
	case <-ctx.Done():
	}

	// BYE отправляется и после отмены ctx
	byeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Stream.PlayBye(byeCtx, dlg); err != nil {
		return fmt.Errorf("завершение сессии: %w", err)
	}
	log.Info("медиасессия завершена")
	return nil
}

func parseMode(s string) (command.StreamMode, error) {
	switch strings.ToLower(s) {
	case "", "udp":
		return command.StreamModeUDP, nil
	case "tcp-active":
		return command.StreamModeTCPActive, nil
	case "tcp-passive":
		return command.StreamModeTCPPassive, nil
	default:
		return 0, fmt.Errorf("неизвестный режим %q (udp, tcp-active, tcp-passive)", s)
	}
}

func init() {
	f := playCmd.Flags()
	f.StringVar(&playKind, "kind", "live", "live, playback или download")
	f.StringVar(&playParams.DstIP, "dst-ip", "", "адрес приема RTP")
	f.Uint16Var(&playParams.DstPort, "dst-port", 0, "порт приема RTP")
	f.StringVar(&playMode, "mode", "udp", "udp, tcp-active или tcp-passive")
	f.StringVar(&playParams.SSRC, "ssrc", "", "SSRC потока (10 цифр)")
	f.Uint32Var(&playParams.Start, "start", 0, "начало архива, unix-время")
	f.Uint32Var(&playParams.End, "end", 0, "конец архива, unix-время")
	f.Uint8Var(&playParams.Speed, "download-speed", 1, "скорость скачивания")
	f.DurationVar(&playDuration, "duration", 30*time.Second, "сколько держать сессию")
	f.Float32Var(&playSpeed, "speed", 0, "скорость воспроизведения после ACK")
	f.Uint32Var(&playSeek, "seek", 0, "перемотка в секундах от начала")
}
