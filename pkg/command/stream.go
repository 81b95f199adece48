package command

import (
	"context"
	"fmt"
	"time"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/sirupsen/logrus"
)

// Negotiated результат успешного согласования медиасессии
type Negotiated struct {
	// Response принятый ответ 200 OK, из него строится ACK
	Response *sip.Response
	// Codecs payload type -> имя кодека в верхнем регистре (PS, H264, ...)
	Codecs map[uint8]string
	// FromTag тег нашей стороны, ToTag тег устройства
	FromTag string
	ToTag   string
	// SSRC из строки y= ответа, пусто если устройство ее не прислало
	SSRC string
}

// Stream медиасессии: INVITE, ACK и запросы внутри диалога
type Stream struct {
	d *Dispatcher
}

// PlayLiveInvite запрашивает живой поток канала
func (s *Stream) PlayLiveInvite(ctx context.Context, params StreamParams) (*Negotiated, error) {
	return s.inviteWith(ctx, "play_live", func() (session.Ident, *sip.Request, error) {
		return s.d.builder.PlayLive(ctx, params)
	})
}

// PlaybackInvite запрашивает воспроизведение архива за [Start, End]
func (s *Stream) PlaybackInvite(ctx context.Context, params StreamParams) (*Negotiated, error) {
	return s.inviteWith(ctx, "play_back", func() (session.Ident, *sip.Request, error) {
		return s.d.builder.Playback(ctx, params)
	})
}

// DownloadInvite запрашивает скачивание архива со скоростью Speed
func (s *Stream) DownloadInvite(ctx context.Context, params StreamParams) (*Negotiated, error) {
	return s.inviteWith(ctx, "download", func() (session.Ident, *sip.Request, error) {
		return s.d.builder.Download(ctx, params)
	})
}

// InviteAck отправляет ACK на принятый 200 OK без ожидания ответа и
// возвращает Call-ID и CSeq для последующих запросов в диалоге.
func (s *Stream) InviteAck(deviceID string, res *sip.Response) (string, uint32, error) {
	ack, err := s.d.builder.Ack(res)
	if err != nil {
		s.d.log.WithError(err).Warn("не удалось построить ACK")
		return "", 0, fmt.Errorf("ack: %w", err)
	}

	callID := ack.CallID()
	if callID == nil {
		return "", 0, fmt.Errorf("ack: нет заголовка Call-ID")
	}
	cseq := ack.CSeq()
	if cseq == nil {
		return "", 0, fmt.Errorf("ack: нет заголовка CSeq")
	}

	if err := s.d.transport.SendNoWait(deviceID, ack); err != nil {
		s.d.log.WithError(err).WithField("device", deviceID).Warn("не удалось отправить ACK")
		return "", 0, fmt.Errorf("ack: %w", err)
	}
	return callID.Value(), cseq.SeqNo, nil
}

// PlaySpeed меняет скорость воспроизведения архива
func (s *Stream) PlaySpeed(ctx context.Context, dlg DialogParams, speed float32) error {
	id, req, err := s.d.build("play_speed", func() (session.Ident, *sip.Request, error) {
		return s.d.builder.Speed(ctx, dlg, speed)
	})
	if err != nil {
		return err
	}
	return s.d.roundTrip(ctx, "play_speed", id, req)
}

// PlaySeek перематывает архив на seek секунд от начала
func (s *Stream) PlaySeek(ctx context.Context, dlg DialogParams, seek uint32) error {
	id, req, err := s.d.build("play_seek", func() (session.Ident, *sip.Request, error) {
		return s.d.builder.Seek(ctx, dlg, seek)
	})
	if err != nil {
		return err
	}
	return s.d.roundTrip(ctx, "play_seek", id, req)
}

// PlayBye завершает медиасессию
func (s *Stream) PlayBye(ctx context.Context, dlg DialogParams) error {
	id, req, err := s.d.build("play_bye", func() (session.Ident, *sip.Request, error) {
		return s.d.builder.Bye(ctx, dlg)
	})
	if err != nil {
		return err
	}
	return s.d.roundTrip(ctx, "play_bye", id, req)
}

func (s *Stream) inviteWith(ctx context.Context, op string, fn buildFunc) (*Negotiated, error) {
	id, req, err := s.d.build(op, fn)
	if err != nil {
		return nil, err
	}
	return s.invite(ctx, op, id, req)
}

// invite проводит согласование INVITE.
//
// Ответы ведут автомат negotiation: предварительные не завершают
// ожидание, >= 300 - отказ, 200 - разбор SDP и тегов, закрытие канала
// или отмена ctx - нет ответа. Регистрация снимается на любом пути
// выхода, поэтому ретрансмиссия 200 после завершения не найдет
// ожидающего и будет отброшена таблицей.
func (s *Stream) invite(ctx context.Context, op string, id session.Ident, req *sip.Request) (neg *Negotiated, err error) {
	started := time.Now()
	defer func() { s.d.metrics.ObserveNegotiation(op, started, err) }()

	machine := newNegotiation(op, id, s.d.log.WithFields(logrus.Fields{"op": op, "ident": id.String()}))

	ch := make(chan session.Envelope, s.d.capacity)
	if err := s.d.send(id, req, ch); err != nil {
		return nil, err
	}
	defer s.d.table.Remove(id)

	return machine.run(ctx, ch)
}

// negotiate извлекает из 200 OK кодеки и теги диалога
func negotiate(op string, id session.Ident, res *sip.Response) (*Negotiated, error) {
	answer, err := parseAnswer(res.Body())
	if err != nil {
		return nil, session.ErrMalformed(op, id, "sdp", err)
	}
	codecs, err := payloadCodecs(answer.Session)
	if err != nil {
		return nil, session.ErrMalformed(op, id, "payload type", err)
	}

	from := res.From()
	if from == nil {
		return nil, session.ErrMalformed(op, id, "from tag", fmt.Errorf("нет заголовка From"))
	}
	fromTag, ok := from.Params.Get("tag")
	if !ok || fromTag == "" {
		return nil, session.ErrMalformed(op, id, "from tag", nil)
	}
	to := res.To()
	if to == nil {
		return nil, session.ErrMalformed(op, id, "to tag", fmt.Errorf("нет заголовка To"))
	}
	toTag, ok := to.Params.Get("tag")
	if !ok || toTag == "" {
		return nil, session.ErrMalformed(op, id, "to tag", nil)
	}

	return &Negotiated{
		Response: res,
		Codecs:   codecs,
		FromTag:  fromTag,
		ToTag:    toTag,
		SSRC:     answer.SSRC,
	}, nil
}
