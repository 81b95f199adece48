package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStreamParams() StreamParams {
	return StreamParams{
		DeviceID:  "34020000001320000001",
		ChannelID: "34020000001310000001",
		DstIP:     "192.168.1.10",
		DstPort:   30000,
		Mode:      StreamModeUDP,
		SSRC:      "0100000001",
	}
}

func testDialog() DialogParams {
	return DialogParams{
		DeviceID:  "34020000001320000001",
		ChannelID: "34020000001310000001",
		CallID:    "dialog-call",
		Seq:       1,
		FromTag:   "server-tag",
		ToTag:     "device-tag",
	}
}

func identOf(req *sip.Request, deviceID, channelID string) session.Ident {
	return session.NewIdent(deviceID, channelID, req.CallID().Value(), req.CSeq().SeqNo)
}

func TestInviteProvisionalThenOK(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.setScript(inviteScript(100, 183, 200))

	neg, err := env.service.Stream.PlayLiveInvite(context.Background(), testStreamParams())
	require.NoError(t, err)
	require.NotNil(t, neg)

	assert.Equal(t, map[uint8]string{96: "PS", 97: "H264"}, neg.Codecs)
	assert.Equal(t, "server-tag", neg.FromTag)
	assert.Equal(t, "device-tag", neg.ToTag)
	assert.Equal(t, "0100000001", neg.SSRC)
	assert.Equal(t, 200, int(neg.Response.StatusCode))

	assert.Equal(t, 1, env.transport.sentCount())
	assert.Equal(t, 0, env.table.Len(), "регистрация должна быть снята")
}

func TestInviteRetransmittedOKDropped(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.setScript(inviteScript(200))

	params := testStreamParams()
	neg, err := env.service.Stream.PlaybackInvite(context.Background(), params)
	require.NoError(t, err)

	// Ретрансмиссия 200 после завершения согласования никому не доставляется
	req := env.transport.sent[0]
	id := identOf(req, params.DeviceID, params.ChannelID)
	assert.False(t, env.table.Fulfill(id, session.Respond(neg.Response, "")))
	assert.Equal(t, 0, env.table.Len())
}

func TestInviteRejected(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.setScript(inviteScript(100, 486))

	neg, err := env.service.Stream.PlayLiveInvite(context.Background(), testStreamParams())
	require.Error(t, err)
	assert.Nil(t, neg)

	assert.ErrorIs(t, err, session.ErrProtocolRejected)
	assert.Contains(t, err.Error(), "486")

	var sessErr *session.Error
	require.True(t, errors.As(err, &sessErr))
	assert.Equal(t, 486, sessErr.StatusCode)
	assert.Equal(t, "play_live", sessErr.Op)

	assert.Equal(t, 0, env.table.Len())
}

func TestInviteNoResponse(t *testing.T) {
	env := newTestEnv(t, 100*time.Millisecond)

	start := time.Now()
	_, err := env.service.Stream.DownloadInvite(context.Background(), testStreamParams())
	require.Error(t, err)

	assert.True(t, session.IsKind(err, session.KindUnresponsive))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 0, env.table.Len())
}

func TestInviteTransportClosed(t *testing.T) {
	env := newTestEnv(t, time.Second)
	cause := errors.New("transaction terminated")
	env.transport.extra = func(id session.Ident, _ *sip.Request) {
		env.table.Fulfill(id, session.Closed(cause))
	}
	env.transport.setScript(inviteScript(100))

	_, err := env.service.Stream.PlayLiveInvite(context.Background(), testStreamParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrUnresponsive)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 0, env.table.Len())
}

func TestInviteContextCanceled(t *testing.T) {
	env := newTestEnv(t, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := env.service.Stream.PlayLiveInvite(ctx, testStreamParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrUnresponsive)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, env.table.Len())
}

func TestInviteMalformedAnswer(t *testing.T) {
	badPT := "v=0\r\n" +
		"o=- 0 0 IN IP4 10.0.0.1\r\n" +
		"s=Play\r\n" +
		"t=0 0\r\n" +
		"m=video 30000 RTP/AVP 96\r\n" +
		"a=rtpmap:300 PS/90000\r\n"

	tests := []struct {
		name   string
		script scriptFunc
		reason string
	}{
		{
			name: "payload type вне диапазона",
			script: func(req *sip.Request) []*sip.Response {
				return []*sip.Response{reply(req, 200, "OK", []byte(badPT), "device-tag")}
			},
			reason: "payload type",
		},
		{
			name: "пустое тело",
			script: func(req *sip.Request) []*sip.Response {
				return []*sip.Response{reply(req, 200, "OK", nil, "device-tag")}
			},
			reason: "sdp",
		},
		{
			name: "нет тега To",
			script: func(req *sip.Request) []*sip.Response {
				return []*sip.Response{reply(req, 200, "OK", []byte(testAnswerSDP), "")}
			},
			reason: "to tag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, time.Second)
			env.transport.setScript(tt.script)

			_, err := env.service.Stream.PlayLiveInvite(context.Background(), testStreamParams())
			require.Error(t, err)
			assert.True(t, session.IsKind(err, session.KindMalformedNegotiation))

			var sessErr *session.Error
			require.True(t, errors.As(err, &sessErr))
			assert.Equal(t, tt.reason, sessErr.Reason)
			assert.Equal(t, 0, env.table.Len())
		})
	}
}

func TestInviteTransportError(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.sendErr = errors.New("connection refused")

	_, err := env.service.Stream.PlayLiveInvite(context.Background(), testStreamParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, env.table.Len())
}

func TestInviteBuilderError(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.builder.err = errors.New("unknown device")

	_, err := env.service.Stream.PlayLiveInvite(context.Background(), testStreamParams())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "play_live")
	assert.Equal(t, 0, env.transport.sentCount())
}

func TestInviteAck(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.setScript(inviteScript(200))

	params := testStreamParams()
	neg, err := env.service.Stream.PlayLiveInvite(context.Background(), params)
	require.NoError(t, err)

	callID, seq, err := env.service.Stream.InviteAck(params.DeviceID, neg.Response)
	require.NoError(t, err)

	invite := env.transport.sent[0]
	assert.Equal(t, invite.CallID().Value(), callID)
	assert.Equal(t, invite.CSeq().SeqNo, seq)

	require.Len(t, env.transport.noWait, 1)
	assert.Equal(t, sip.ACK, env.transport.noWait[0].Method)
	assert.Equal(t, 0, env.table.Len(), "ACK не регистрируется в таблице")
}

func TestInDialogRequests(t *testing.T) {
	tests := []struct {
		name string
		call func(s *Stream) error
	}{
		{name: "speed", call: func(s *Stream) error {
			return s.PlaySpeed(context.Background(), testDialog(), 2.0)
		}},
		{name: "seek", call: func(s *Stream) error {
			return s.PlaySeek(context.Background(), testDialog(), 120)
		}},
		{name: "bye", call: func(s *Stream) error {
			return s.PlayBye(context.Background(), testDialog())
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name+" успех", func(t *testing.T) {
			env := newTestEnv(t, time.Second)
			env.transport.setScript(func(req *sip.Request) []*sip.Response {
				return []*sip.Response{
					reply(req, 100, "Trying", nil, ""),
					reply(req, 200, "OK", nil, "device-tag"),
				}
			})
			require.NoError(t, tt.call(env.service.Stream))
			assert.Equal(t, 0, env.table.Len())
		})

		t.Run(tt.name+" отказ", func(t *testing.T) {
			env := newTestEnv(t, time.Second)
			env.transport.setScript(func(req *sip.Request) []*sip.Response {
				return []*sip.Response{reply(req, 481, "Call/Transaction Does Not Exist", nil, "device-tag")}
			})
			err := tt.call(env.service.Stream)
			require.Error(t, err)
			assert.ErrorIs(t, err, session.ErrProtocolRejected)
			assert.Contains(t, err.Error(), "481")
			assert.Equal(t, 0, env.table.Len())
		})

		t.Run(tt.name+" таймаут", func(t *testing.T) {
			env := newTestEnv(t, 100*time.Millisecond)
			err := tt.call(env.service.Stream)
			require.Error(t, err)
			assert.True(t, session.IsKind(err, session.KindUnresponsive))
			assert.Equal(t, 0, env.table.Len())
		})
	}
}

func TestInDialogNon200SuccessRejected(t *testing.T) {
	env := newTestEnv(t, time.Second)
	env.transport.setScript(func(req *sip.Request) []*sip.Response {
		return []*sip.Response{reply(req, 202, "Accepted", nil, "device-tag")}
	})

	err := env.service.Stream.PlayBye(context.Background(), testDialog())
	require.Error(t, err)
	assert.ErrorIs(t, err, session.ErrProtocolRejected)
}
