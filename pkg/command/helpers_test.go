package command

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const testAnswerSDP = "v=0\r\n" +
	"o=34020000001320000001 0 0 IN IP4 192.168.1.64\r\n" +
	"s=Play\r\n" +
	"c=IN IP4 192.168.1.64\r\n" +
	"t=0 0\r\n" +
	"m=video 15060 RTP/AVP 96 97\r\n" +
	"a=sendonly\r\n" +
	"a=rtpmap:96 PS/90000\r\n" +
	"a=rtpmap:97 H264/90000\r\n" +
	"y=0100000001\r\n" +
	"f=\r\n"

// fakeBuilder строит минимальные запросы без обращения к реестру устройств
type fakeBuilder struct {
	seq atomic.Uint32
	err error
}

func (b *fakeBuilder) request(method sip.RequestMethod, deviceID, channelID, callID string, seq uint32) (session.Ident, *sip.Request, error) {
	if b.err != nil {
		return session.Ident{}, nil, b.err
	}
	if seq == 0 {
		seq = b.seq.Add(1)
	}
	if callID == "" {
		callID = fmt.Sprintf("call-%d", seq)
	}
	target := channelID
	if target == "" {
		target = deviceID
	}

	req := sip.NewRequest(method, sip.Uri{Scheme: "sip", User: target, Host: "192.168.1.64", Port: 5060})
	req.AppendHeader(&sip.FromHeader{
		Address: sip.Uri{Scheme: "sip", User: "34020000002000000001", Host: "3402000000"},
		Params:  sip.NewParams().Add("tag", "server-tag"),
	})
	req.AppendHeader(&sip.ToHeader{
		Address: sip.Uri{Scheme: "sip", User: target, Host: "3402000000"},
		Params:  sip.NewParams(),
	})
	callIDHeader := sip.CallIDHeader(callID)
	req.AppendHeader(&callIDHeader)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})

	return session.NewIdent(deviceID, channelID, callID, seq), req, nil
}

func (b *fakeBuilder) QueryPreset(_ context.Context, deviceID, channelID string) (session.Ident, *sip.Request, error) {
	return b.request(sip.MESSAGE, deviceID, channelID, "", 0)
}

func (b *fakeBuilder) QueryDeviceInfo(_ context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	return b.request(sip.MESSAGE, deviceID, "", "", 0)
}

func (b *fakeBuilder) QueryDeviceStatus(_ context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	return b.request(sip.MESSAGE, deviceID, "", "", 0)
}

func (b *fakeBuilder) QueryDeviceCatalog(_ context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	return b.request(sip.MESSAGE, deviceID, "", "", 0)
}

func (b *fakeBuilder) SubscribeDeviceCatalog(_ context.Context, deviceID string) (session.Ident, *sip.Request, error) {
	return b.request(sip.SUBSCRIBE, deviceID, "", "", 0)
}

func (b *fakeBuilder) ControlPTZ(_ context.Context, ptz PTZControl) (session.Ident, *sip.Request, error) {
	return b.request(sip.MESSAGE, ptz.DeviceID, ptz.ChannelID, "", 0)
}

func (b *fakeBuilder) SnapshotImage(_ context.Context, params SnapshotParams) (session.Ident, *sip.Request, error) {
	return b.request(sip.MESSAGE, params.DeviceID, params.ChannelID, "", 0)
}

func (b *fakeBuilder) PlayLive(_ context.Context, params StreamParams) (session.Ident, *sip.Request, error) {
	return b.request(sip.INVITE, params.DeviceID, params.ChannelID, "", 0)
}

func (b *fakeBuilder) Playback(_ context.Context, params StreamParams) (session.Ident, *sip.Request, error) {
	return b.request(sip.INVITE, params.DeviceID, params.ChannelID, "", 0)
}

func (b *fakeBuilder) Download(_ context.Context, params StreamParams) (session.Ident, *sip.Request, error) {
	return b.request(sip.INVITE, params.DeviceID, params.ChannelID, "", 0)
}

func (b *fakeBuilder) Ack(res *sip.Response) (*sip.Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	callID := res.CallID()
	cseq := res.CSeq()
	if callID == nil || cseq == nil {
		return nil, fmt.Errorf("ответ без Call-ID или CSeq")
	}
	_, req, err := b.request(sip.ACK, "", "ack", callID.Value(), cseq.SeqNo)
	return req, err
}

func (b *fakeBuilder) Speed(_ context.Context, dlg DialogParams, _ float32) (session.Ident, *sip.Request, error) {
	return b.request(sip.INFO, dlg.DeviceID, dlg.ChannelID, dlg.CallID, dlg.Seq+1)
}

func (b *fakeBuilder) Seek(_ context.Context, dlg DialogParams, _ uint32) (session.Ident, *sip.Request, error) {
	return b.request(sip.INFO, dlg.DeviceID, dlg.ChannelID, dlg.CallID, dlg.Seq+1)
}

func (b *fakeBuilder) Bye(_ context.Context, dlg DialogParams) (session.Ident, *sip.Request, error) {
	return b.request(sip.BYE, dlg.DeviceID, dlg.ChannelID, dlg.CallID, dlg.Seq+1)
}

// scriptFunc возвращает ответы устройства на запрос
type scriptFunc func(req *sip.Request) []*sip.Response

// fakeTransport записывает отправленные запросы и доставляет ответы
// сценария в таблицу так же, как это делает настоящий транспорт.
type fakeTransport struct {
	table *session.Table

	mu      sync.Mutex
	sent    []*sip.Request
	noWait  []*sip.Request
	script  scriptFunc
	sendErr error
	// extra вызывается после доставки сценария, например для ретрансмиссий
	extra func(id session.Ident, req *sip.Request)
}

func (f *fakeTransport) Send(id session.Ident, req *sip.Request) error {
	f.mu.Lock()
	if f.sendErr != nil {
		err := f.sendErr
		f.mu.Unlock()
		return err
	}
	f.sent = append(f.sent, req)
	script := f.script
	extra := f.extra
	f.mu.Unlock()

	if script == nil {
		return nil
	}
	go func() {
		for _, res := range script(req) {
			f.table.Fulfill(id, session.Respond(res, ""))
		}
		if extra != nil {
			extra(id, req)
		}
	}()
	return nil
}

func (f *fakeTransport) SendNoWait(_ string, req *sip.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.noWait = append(f.noWait, req)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) setScript(script scriptFunc) {
	f.mu.Lock()
	f.script = script
	f.mu.Unlock()
}

type testEnv struct {
	table     *session.Table
	transport *fakeTransport
	builder   *fakeBuilder
	service   *Service
}

func newTestEnv(t *testing.T, ttl time.Duration) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)

	metrics := session.NewMetrics(&session.MetricsConfig{
		Namespace:  "test",
		Subsystem:  "command",
		Registerer: prometheus.NewRegistry(),
	})

	tableCfg := session.DefaultTableConfig()
	tableCfg.WaitTimeout = ttl
	tableCfg.Logger = logrus.NewEntry(logger)
	tableCfg.Metrics = metrics
	table := session.NewTable(tableCfg)
	t.Cleanup(table.Close)

	transport := &fakeTransport{table: table}
	builder := &fakeBuilder{}

	cfg := DefaultConfig()
	cfg.LazyDelay = 100 * time.Millisecond
	cfg.Logger = logrus.NewEntry(logger)
	cfg.Metrics = metrics

	return &testEnv{
		table:     table,
		transport: transport,
		builder:   builder,
		service:   NewService(table, builder, transport, cfg),
	}
}

func reply(req *sip.Request, code int, reason string, body []byte, toTag string) *sip.Response {
	res := sip.NewResponseFromRequest(req, code, reason, body)
	if toTag != "" {
		res.ReplaceHeader(&sip.ToHeader{
			Address: req.To().Address,
			Params:  sip.NewParams().Add("tag", toTag),
		})
	}
	return res
}

func inviteScript(codes ...int) scriptFunc {
	return func(req *sip.Request) []*sip.Response {
		out := make([]*sip.Response, 0, len(codes))
		for _, code := range codes {
			switch {
			case code == 200:
				out = append(out, reply(req, 200, "OK", []byte(testAnswerSDP), "device-tag"))
			case code < 200:
				out = append(out, reply(req, code, "Session Progress", nil, ""))
			default:
				out = append(out, reply(req, code, "Busy Here", nil, "device-tag"))
			}
		}
		return out
	}
}
