package builder

import (
	"context"
	"fmt"

	"github.com/arzzra/gb_session/pkg/command"
	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
)

// message строит MESSAGE с телом MANSCDP
func (b *RequestBuilder) message(ctx context.Context, deviceID, channelID string, body func(sn uint32) any) (session.Ident, *sip.Request, error) {
	dev, err := b.lookup(ctx, deviceID)
	if err != nil {
		return session.Ident{}, nil, err
	}
	payload, err := marshalMANSCDP(body(b.nextSN()))
	if err != nil {
		return session.Ident{}, nil, err
	}

	callID, seq, req := b.outOfDialog(sip.MESSAGE, dev, targetOf(deviceID, channelID),
		WithBody(ContentTypeMANSCDP, payload),
	)
	return session.NewIdent(deviceID, channelID, callID, seq), req, nil
}

func (b *RequestBuilder) query(ctx context.Context, cmdType, deviceID, channelID string) (session.Ident, *sip.Request, error) {
	target := targetOf(deviceID, channelID)
	return b.message(ctx, deviceID, channelID, func(sn uint32) any {
		return &mansQuery{CmdType: cmdType, SN: sn, DeviceID: target}
	})
}

// QueryPreset запрос предустановок канала
func (b *RequestBuilder) QueryPreset(ctx context.Context, deviceID, channelID string) (session.Ident, *sip.Request, error) {
	return b.query(ctx, CmdPresetQuery, deviceID, channelID)
}

// QueryDeviceInfo запрос информации об устройстве
func (b *RequestBuilder) QueryDeviceInfo(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	return b.query(ctx, CmdDeviceInfo, deviceID, "")
}

// QueryDeviceStatus запрос состояния устройства
func (b *RequestBuilder) QueryDeviceStatus(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	return b.query(ctx, CmdDeviceStatus, deviceID, "")
}

// QueryDeviceCatalog запрос каталога
func (b *RequestBuilder) QueryDeviceCatalog(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	return b.query(ctx, CmdCatalog, deviceID, "")
}

// SubscribeDeviceCatalog SUBSCRIBE на изменения каталога
func (b *RequestBuilder) SubscribeDeviceCatalog(ctx context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	dev, err := b.lookup(ctx, deviceID)
	if err != nil {
		return session.Ident{}, nil, err
	}
	sn := b.nextSN()
	payload, err := marshalMANSCDP(&mansQuery{CmdType: CmdCatalog, SN: sn, DeviceID: deviceID})
	if err != nil {
		return session.Ident{}, nil, err
	}

	callID, seq, req := b.outOfDialog(sip.SUBSCRIBE, dev, deviceID,
		WithHeaderString("Event", fmt.Sprintf("Catalog;id=%d", sn)),
		WithExpires(b.cfg.SubscribeExpires),
		WithBody(ContentTypeMANSCDP, payload),
	)
	return session.NewIdent(deviceID, "", callID, seq), req, nil
}

// ControlPTZ команда PTZ (DeviceControl/PTZCmd)
func (b *RequestBuilder) ControlPTZ(ctx context.Context, ptz command.PTZControl) (session.Ident, *sip.Request, error) {
	ptzCmd, err := EncodePTZ(ptz)
	if err != nil {
		return session.Ident{}, nil, err
	}
	target := targetOf(ptz.DeviceID, ptz.ChannelID)
	return b.message(ctx, ptz.DeviceID, ptz.ChannelID, func(sn uint32) any {
		return &mansControl{
			CmdType:  CmdDeviceControl,
			SN:       sn,
			DeviceID: target,
			PTZCmd:   ptzCmd,
			Info:     &ptzInfo{ControlPriority: 5},
		}
	})
}

// SnapshotImage настройка снимков (DeviceConfig/SnapShotConfig)
func (b *RequestBuilder) SnapshotImage(ctx context.Context, params command.SnapshotParams) (session.Ident, *sip.Request, error) {
	if params.Num == 0 || params.URI == "" {
		return session.Ident{}, nil, fmt.Errorf("снимок: нужны количество и адрес загрузки")
	}
	target := targetOf(params.DeviceID, params.ChannelID)
	return b.message(ctx, params.DeviceID, params.ChannelID, func(sn uint32) any {
		return &mansConfig{
			CmdType:  CmdDeviceConfig,
			SN:       sn,
			DeviceID: target,
			SnapShotConfig: &snapShotConfig{
				SnapNum:   params.Num,
				Interval:  params.Interval,
				UploadURL: params.URI,
				SessionID: params.SessionID,
			},
		}
	})
}
