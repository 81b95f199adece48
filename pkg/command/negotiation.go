package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// Состояния согласования INVITE
const (
	NegotiationSent       = "sent"
	NegotiationProceeding = "proceeding"
	NegotiationAccepted   = "accepted"
	NegotiationRejected   = "rejected"
	NegotiationTimedOut   = "timed_out"
	NegotiationMalformed  = "malformed"
)

// События согласования
const (
	eventProvisional = "provisional"
	eventAccept      = "accept"
	eventReject      = "reject"
	eventTimeout     = "timeout"
	eventMalformed   = "malformed"
)

// negotiation конечный автомат одного INVITE обмена:
// sent -> proceeding* -> accepted | rejected | timed_out | malformed.
// Терминальные состояния не имеют исходящих переходов.
//
// Результат обмена фиксируется при входе в терминальное состояние и
// читается через outcome.
type negotiation struct {
	fsm *fsm.FSM
	log *logrus.Entry

	op string
	id session.Ident

	result *Negotiated
	err    error
}

func newNegotiation(op string, id session.Ident, log *logrus.Entry) *negotiation {
	n := &negotiation{op: op, id: id, log: log}
	waiting := []string{NegotiationSent, NegotiationProceeding}

	n.fsm = fsm.NewFSM(
		NegotiationSent,
		fsm.Events{
			{Name: eventProvisional, Src: waiting, Dst: NegotiationProceeding},
			{Name: eventAccept, Src: waiting, Dst: NegotiationAccepted},
			{Name: eventReject, Src: waiting, Dst: NegotiationRejected},
			{Name: eventTimeout, Src: waiting, Dst: NegotiationTimedOut},
			{Name: eventMalformed, Src: waiting, Dst: NegotiationMalformed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				n.log.WithFields(logrus.Fields{
					"from":  e.Src,
					"to":    e.Dst,
					"event": e.Event,
				}).Debug("переход согласования")
			},
			"enter_" + NegotiationAccepted: func(_ context.Context, e *fsm.Event) {
				if neg, ok := eventArg[*Negotiated](e); ok {
					n.result = neg
					n.log.WithField("codecs", neg.Codecs).Debug("медиасессия согласована")
				}
			},
			"enter_" + NegotiationRejected: func(_ context.Context, e *fsm.Event) {
				res, _ := eventArg[*sip.Response](e)
				code, reason := 0, ""
				if res != nil {
					code, reason = res.StatusCode, res.Reason
				}
				n.err = session.ErrRejected(n.op, n.id, code, reason)
				n.log.WithField("status", code).Error("INVITE отклонен")
			},
			"enter_" + NegotiationTimedOut: func(_ context.Context, e *fsm.Event) {
				cause, _ := eventArg[error](e)
				n.err = session.ErrNoResponse(n.op, n.id, cause)
				n.log.WithError(cause).Error("камера не ответила на INVITE")
			},
			"enter_" + NegotiationMalformed: func(_ context.Context, e *fsm.Event) {
				cause, _ := eventArg[error](e)
				if cause == nil {
					cause = session.ErrMalformed(n.op, n.id, "answer", nil)
				}
				n.err = cause
				n.log.WithError(cause).Error("некорректный ответ на INVITE")
			},
		},
	)
	return n
}

func eventArg[T any](e *fsm.Event) (T, bool) {
	var zero T
	if len(e.Args) == 0 {
		return zero, false
	}
	v, ok := e.Args[0].(T)
	return v, ok
}

// fire выполняет переход. Повторный provisional (proceeding -> proceeding)
// не является ошибкой.
func (n *negotiation) fire(event string, args ...any) error {
	err := n.fsm.Event(context.Background(), event, args...)
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) {
		return nil
	}
	return err
}

// State текущее состояние
func (n *negotiation) State() string {
	return n.fsm.Current()
}

// Done проверяет, что согласование завершено
func (n *negotiation) Done() bool {
	switch n.fsm.Current() {
	case NegotiationSent, NegotiationProceeding:
		return false
	default:
		return true
	}
}

// handle переводит автомат по очередному событию канала ответов.
// ok == false или закрытый конверт означают, что ответа не будет.
func (n *negotiation) handle(env session.Envelope, ok bool) error {
	if !ok || env.IsClosed() {
		return n.fire(eventTimeout, env.Err)
	}

	res := env.Response
	code := env.StatusCode()
	n.log.WithFields(logrus.Fields{"status": code, "reason": res.Reason}).Debug("ответ на INVITE")

	switch {
	case code < 200:
		return n.fire(eventProvisional, res)
	case code == 200:
		neg, err := negotiate(n.op, n.id, res)
		if err != nil {
			return n.fire(eventMalformed, err)
		}
		return n.fire(eventAccept, neg)
	case code >= 300:
		return n.fire(eventReject, res)
	default:
		n.log.WithField("status", code).Warn("неожиданный успешный ответ на INVITE, ждем 200")
		return nil
	}
}

// run ведет автомат по ответам из ch до терминального состояния.
// Отмена ctx переводит автомат в timed_out.
func (n *negotiation) run(ctx context.Context, ch <-chan session.Envelope) (*Negotiated, error) {
	for !n.Done() {
		var err error
		select {
		case env, ok := <-ch:
			err = n.handle(env, ok)
		case <-ctx.Done():
			err = n.fire(eventTimeout, ctx.Err())
		}
		if err != nil {
			return nil, fmt.Errorf("%s: автомат согласования в состоянии %s: %w", n.op, n.State(), err)
		}
	}
	return n.outcome()
}

// outcome результат завершенного согласования
func (n *negotiation) outcome() (*Negotiated, error) {
	switch n.State() {
	case NegotiationAccepted:
		return n.result, nil
	case NegotiationRejected, NegotiationTimedOut, NegotiationMalformed:
		return nil, n.err
	default:
		return nil, fmt.Errorf("%s: согласование не завершено, состояние %s", n.op, n.State())
	}
}
