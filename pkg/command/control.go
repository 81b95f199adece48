package command

import (
	"context"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
)

// Control команды управления устройством, отправляются без ожидания ответа
type Control struct {
	d *Dispatcher
}

// ControlPTZ отправляет команду поворота/зума
func (c *Control) ControlPTZ(ctx context.Context, ptz PTZControl) error {
	return c.d.dispatch("control_ptz", func() (session.Ident, *sip.Request, error) {
		return c.d.builder.ControlPTZ(ctx, ptz)
	})
}

// SnapshotImage запрашивает снимки с загрузкой на uri
func (c *Control) SnapshotImage(ctx context.Context, params SnapshotParams) error {
	return c.d.dispatch("snapshot_image", func() (session.Ident, *sip.Request, error) {
		return c.d.builder.SnapshotImage(ctx, params)
	})
}
