// gbsession - сервис сессий GB28181: запросы к устройствам, управление и
// согласование медиапотоков поверх SIP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}
