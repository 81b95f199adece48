package command

import (
	"context"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
)

// StreamMode режим доставки медиапотока от устройства
type StreamMode int

const (
	// StreamModeUDP - RTP over UDP
	StreamModeUDP StreamMode = iota
	// StreamModeTCPActive - мы подключаемся к устройству (a=setup:active)
	StreamModeTCPActive
	// StreamModeTCPPassive - устройство подключается к нам (a=setup:passive)
	StreamModeTCPPassive
)

// String возвращает строковое представление режима
func (m StreamMode) String() string {
	switch m {
	case StreamModeTCPActive:
		return "TCP_ACTIVE"
	case StreamModeTCPPassive:
		return "TCP_PASSIVE"
	default:
		return "UDP"
	}
}

// StreamParams параметры запроса медиасессии.
// Start/End - unix-время начала и конца для playback/download, для live не используются.
type StreamParams struct {
	DeviceID  string
	ChannelID string
	DstIP     string
	DstPort   uint16
	Mode      StreamMode
	SSRC      string
	Start     uint32
	End       uint32
	// Speed - скорость скачивания, только для download
	Speed uint8
}

// DialogParams адресация запроса внутри установленного диалога
type DialogParams struct {
	DeviceID  string
	ChannelID string
	CallID    string
	Seq       uint32
	FromTag   string
	ToTag     string
}

// PTZControl команда управления поворотной камерой.
// Направления: 0 - стоп, 1 - влево/вверх/приближение, 2 - вправо/вниз/удаление.
type PTZControl struct {
	DeviceID      string
	ChannelID     string
	LeftRight     uint8
	UpDown        uint8
	InOut         uint8
	HorizonSpeed  uint8
	VerticalSpeed uint8
	ZoomSpeed     uint8
}

// SnapshotParams параметры снимка (SnapShotConfig)
type SnapshotParams struct {
	DeviceID  string
	ChannelID string
	Num       uint8
	Interval  uint8
	URI       string
	SessionID string
}

// Builder строит SIP запросы для команд.
// Возвращает идентификатор обмена вместе с запросом, ошибка если параметры
// невалидны или нет данных устройства.
type Builder interface {
	QueryPreset(ctx context.Context, deviceID, channelID string) (session.Ident, *sip.Request, error)
	QueryDeviceInfo(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error)
	QueryDeviceStatus(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error)
	QueryDeviceCatalog(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error)
	SubscribeDeviceCatalog(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error)

	ControlPTZ(ctx context.Context, ptz PTZControl) (session.Ident, *sip.Request, error)
	SnapshotImage(ctx context.Context, params SnapshotParams) (session.Ident, *sip.Request, error)

	PlayLive(ctx context.Context, params StreamParams) (session.Ident, *sip.Request, error)
	Playback(ctx context.Context, params StreamParams) (session.Ident, *sip.Request, error)
	Download(ctx context.Context, params StreamParams) (session.Ident, *sip.Request, error)

	Ack(res *sip.Response) (*sip.Request, error)
	Speed(ctx context.Context, dlg DialogParams, speed float32) (session.Ident, *sip.Request, error)
	Seek(ctx context.Context, dlg DialogParams, seek uint32) (session.Ident, *sip.Request, error)
	Bye(ctx context.Context, dlg DialogParams) (session.Ident, *sip.Request, error)
}

// Transport отправляет запросы устройству.
//
// Send передает запрос и обязуется доставлять все ответы на него в таблицу
// корреляции через Table.Fulfill(id, ...). SendNoWait используется для ACK,
// ответа на который не бывает.
type Transport interface {
	Send(id session.Ident, req *sip.Request) error
	SendNoWait(deviceID string, req *sip.Request) error
}
