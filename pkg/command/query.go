package command

import (
	"context"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
)

// Query запросы к устройству. Ответы устройство присылает отдельными
// MESSAGE/NOTIFY, поэтому все запросы здесь отправляются без ожидания.
type Query struct {
	d *Dispatcher
}

// QueryPreset запрашивает список предустановок, channelID может быть пустым
func (q *Query) QueryPreset(ctx context.Context, deviceID, channelID string) error {
	return q.d.dispatch("query_preset", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.QueryPreset(ctx, deviceID, channelID)
	})
}

// QueryDeviceInfo запрашивает информацию об устройстве
func (q *Query) QueryDeviceInfo(ctx context.Context, deviceID string) error {
	return q.d.dispatch("query_device_info", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.QueryDeviceInfo(ctx, deviceID)
	})
}

// QueryDeviceStatus запрашивает состояние устройства
func (q *Query) QueryDeviceStatus(ctx context.Context, deviceID string) error {
	return q.d.dispatch("query_device_status", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.QueryDeviceStatus(ctx, deviceID)
	})
}

// QueryDeviceCatalog запрашивает каталог каналов
func (q *Query) QueryDeviceCatalog(ctx context.Context, deviceID string) error {
	return q.d.dispatch("query_device_catalog", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.QueryDeviceCatalog(ctx, deviceID)
	})
}

// SubscribeDeviceCatalog подписывается на изменения каталога
func (q *Query) SubscribeDeviceCatalog(ctx context.Context, deviceID string) error {
	return q.d.dispatch("subscribe_device_catalog", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.SubscribeDeviceCatalog(ctx, deviceID)
	})
}

// LazyQueryDeviceInfo то же, что QueryDeviceInfo, но с задержкой LazyDelay.
// Используется сразу после регистрации, пока устройство не готово.
func (q *Query) LazyQueryDeviceInfo(ctx context.Context, deviceID string) error {
	return q.d.dispatchLazy("lazy_query_device_info", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.QueryDeviceInfo(ctx, deviceID)
	})
}

// LazyQueryDeviceCatalog отложенный запрос каталога
func (q *Query) LazyQueryDeviceCatalog(ctx context.Context, deviceID string) error {
	return q.d.dispatchLazy("lazy_query_device_catalog", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.QueryDeviceCatalog(ctx, deviceID)
	})
}

// LazySubscribeDeviceCatalog отложенная подписка на каталог
func (q *Query) LazySubscribeDeviceCatalog(ctx context.Context, deviceID string) error {
	return q.d.dispatchLazy("lazy_subscribe_device_catalog", func() (session.Ident, *sip.Request, error) {
		return q.d.builder.SubscribeDeviceCatalog(ctx, deviceID)
	})
}
