package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gbsession",
	Short: "Сервис сессий GB28181",
	Long: `Сервис сессий GB28181: запросы к устройствам (DeviceInfo, Catalog, DeviceStatus,
PresetQuery), управление PTZ и снимками, согласование медиапотоков (live, playback,
download) с ACK, скоростью, перемоткой и BYE.

Конфигурация читается из файла (-c) и переменных окружения GBS_*,
например GBS_SIP_SERVER_ID, GBS_SESSION_WAIT_TIMEOUT.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"файл конфигурации (yaml, json, toml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(playCmd)
}
