package builder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/arzzra/gb_session/pkg/command"
	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/pion/sdp/v3"
)

// ContentTypeMANSRTSP тип тела управления воспроизведением
const ContentTypeMANSRTSP = "Application/MANSRTSP"

const contentTypeSDP = "application/sdp"

// Имена сессий SDP по GB28181
const (
	sessionPlay     = "Play"
	sessionPlayback = "Playback"
	sessionDownload = "Download"
)

// PlayLive INVITE живого потока
func (b *RequestBuilder) PlayLive(ctx context.Context, params command.StreamParams) (session.Ident, *sip.Request, error) {
	return b.invite(ctx, sessionPlay, params)
}

// Playback INVITE воспроизведения архива
func (b *RequestBuilder) Playback(ctx context.Context, params command.StreamParams) (session.Ident, *sip.Request, error) {
	if params.End <= params.Start {
		return session.Ident{}, nil, fmt.Errorf("интервал архива пуст: %d-%d", params.Start, params.End)
	}
	return b.invite(ctx, sessionPlayback, params)
}

// Download INVITE скачивания архива
func (b *RequestBuilder) Download(ctx context.Context, params command.StreamParams) (session.Ident, *sip.Request, error) {
	if params.End <= params.Start {
		return session.Ident{}, nil, fmt.Errorf("интервал архива пуст: %d-%d", params.Start, params.End)
	}
	if params.Speed == 0 {
		return session.Ident{}, nil, errors.New("скорость скачивания должна быть положительной")
	}
	return b.invite(ctx, sessionDownload, params)
}

func (b *RequestBuilder) invite(ctx context.Context, name string, params command.StreamParams) (session.Ident, *sip.Request, error) {
	if params.ChannelID == "" || params.DstIP == "" || params.DstPort == 0 {
		return session.Ident{}, nil, errors.New("INVITE: нужны канал и адрес приема")
	}
	dev, err := b.lookup(ctx, params.DeviceID)
	if err != nil {
		return session.Ident{}, nil, err
	}
	offer, err := b.offer(name, params)
	if err != nil {
		return session.Ident{}, nil, err
	}

	subject := fmt.Sprintf("%s:%s,%s:0", params.ChannelID, params.SSRC, b.cfg.ServerID)
	callID, seq, req := b.outOfDialog(sip.INVITE, dev, params.ChannelID,
		WithHeaderString("Subject", subject),
		WithBody(contentTypeSDP, offer),
	)
	return session.NewIdent(params.DeviceID, params.ChannelID, callID, seq), req, nil
}

// offer SDP предложение приема потока на DstIP:DstPort.
// Строка y= (SSRC) не входит в стандарт SDP и дописывается после сериализации.
func (b *RequestBuilder) offer(name string, params command.StreamParams) ([]byte, error) {
	protos := []string{"RTP", "AVP"}
	if params.Mode != command.StreamModeUDP {
		protos = []string{"TCP", "RTP", "AVP"}
	}

	attrs := []sdp.Attribute{
		sdp.NewPropertyAttribute("recvonly"),
		sdp.NewAttribute("rtpmap", "96 PS/90000"),
		sdp.NewAttribute("rtpmap", "98 H264/90000"),
		sdp.NewAttribute("rtpmap", "97 MPEG4/90000"),
	}
	switch params.Mode {
	case command.StreamModeTCPActive:
		attrs = append(attrs, sdp.NewAttribute("setup", "active"), sdp.NewAttribute("connection", "new"))
	case command.StreamModeTCPPassive:
		attrs = append(attrs, sdp.NewAttribute("setup", "passive"), sdp.NewAttribute("connection", "new"))
	}
	if name == sessionDownload {
		attrs = append(attrs, sdp.NewAttribute("downloadspeed", strconv.Itoa(int(params.Speed))))
	}

	timing := sdp.Timing{}
	if name != sessionPlay {
		timing.StartTime = uint64(params.Start)
		timing.StopTime = uint64(params.End)
	}

	sd := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       b.cfg.ServerID,
			SessionID:      0,
			SessionVersion: 0,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: params.DstIP,
		},
		SessionName: sdp.SessionName(name),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: params.DstIP},
		},
		TimeDescriptions: []sdp.TimeDescription{{Timing: timing}},
		MediaDescriptions: []*sdp.MediaDescription{{
			MediaName: sdp.MediaName{
				Media:   "video",
				Port:    sdp.RangedPort{Value: int(params.DstPort)},
				Protos:  protos,
				Formats: []string{"96", "98", "97"},
			},
			Attributes: attrs,
		}},
	}
	if name != sessionPlay {
		// u=канал:0, без схемы
		sd.URI = &url.URL{Opaque: params.ChannelID + ":0"}
	}

	raw, err := sd.Marshal()
	if err != nil {
		return nil, fmt.Errorf("SDP: %w", err)
	}
	if params.SSRC != "" {
		raw = append(raw, []byte("y="+params.SSRC+"\r\n")...)
	}
	return raw, nil
}

// Ack строит ACK на 2xx INVITE: Call-ID, From, To с тегами из ответа и
// CSeq с тем же номером.
func (b *RequestBuilder) Ack(res *sip.Response) (*sip.Request, error) {
	if res == nil {
		return nil, errors.New("нет ответа")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("ACK строится только на 2xx, получен %d", res.StatusCode)
	}
	from, to, callID, cseq := res.From(), res.To(), res.CallID(), res.CSeq()
	if from == nil || to == nil || callID == nil || cseq == nil {
		return nil, errors.New("в ответе нет From, To, Call-ID или CSeq")
	}

	recipient := to.Address
	if contact := res.Contact(); contact != nil {
		recipient = contact.Address
	}

	req := sip.NewRequest(sip.ACK, *recipient.Clone())
	req.AppendHeader(sip.HeaderClone(from))
	req.AppendHeader(sip.HeaderClone(to))
	req.AppendHeader(sip.HeaderClone(callID))
	for _, opt := range []RequestOpt{
		WithCSeq(cseq.SeqNo, sip.ACK),
		WithContact(b.contactURI()),
		WithMaxForwards(70),
		WithUserAgent(b.cfg.UserAgent),
		WithTransport(strings.ToUpper(b.cfg.Transport)),
	} {
		opt(req)
	}
	return req, nil
}

// inDialog запрос внутри установленного диалога
func (b *RequestBuilder) inDialog(ctx context.Context, method sip.RequestMethod, dlg command.DialogParams, opts ...RequestOpt) (session.Ident, *sip.Request, error) {
	if dlg.CallID == "" || dlg.FromTag == "" || dlg.ToTag == "" {
		return session.Ident{}, nil, errors.New("неполные параметры диалога")
	}
	dev, err := b.lookup(ctx, dlg.DeviceID)
	if err != nil {
		return session.Ident{}, nil, err
	}

	target := targetOf(dlg.DeviceID, dlg.ChannelID)
	seq := b.nextCSeq(dlg.Seq)
	head := []RequestOpt{
		WithFrom(b.localURI(), dlg.FromTag),
		WithTo(b.remoteURI(target), dlg.ToTag),
		WithCallID(dlg.CallID),
		WithCSeq(seq, method),
	}
	req := b.newRequest(method, dev, target, append(head, opts...)...)
	return session.NewIdent(dlg.DeviceID, dlg.ChannelID, dlg.CallID, seq), req, nil
}

// Speed INFO со сменой скорости (MANSRTSP Scale)
func (b *RequestBuilder) Speed(ctx context.Context, dlg command.DialogParams, speed float32) (session.Ident, *sip.Request, error) {
	if speed <= 0 {
		return session.Ident{}, nil, fmt.Errorf("некорректная скорость %v", speed)
	}
	body := fmt.Sprintf("PLAY RTSP/1.0\r\nCSeq: %d\r\nScale: %s\r\n\r\n", b.nextSN(), formatScale(speed))
	return b.inDialog(ctx, sip.INFO, dlg, WithBody(ContentTypeMANSRTSP, []byte(body)))
}

// Seek INFO с перемоткой (MANSRTSP Range: npt=)
func (b *RequestBuilder) Seek(ctx context.Context, dlg command.DialogParams, seek uint32) (session.Ident, *sip.Request, error) {
	body := fmt.Sprintf("PLAY RTSP/1.0\r\nCSeq: %d\r\nRange: npt=%d-\r\n\r\n", b.nextSN(), seek)
	return b.inDialog(ctx, sip.INFO, dlg, WithBody(ContentTypeMANSRTSP, []byte(body)))
}

// Bye завершение медиасессии
func (b *RequestBuilder) Bye(ctx context.Context, dlg command.DialogParams) (session.Ident, *sip.Request, error) {
	return b.inDialog(ctx, sip.BYE, dlg)
}

// formatScale 2 -> "2.0", 0.5 -> "0.5"
func formatScale(speed float32) string {
	s := strconv.FormatFloat(float64(speed), 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
