package session

import "github.com/emiago/sipgo/sip"

// Envelope доставка в канал ожидающего.
//
// Либо ответ устройства с контекстом (Leg - ветка многоплечевого обмена,
// например branch транзакции), либо сигнал отсутствия: транзакция закрылась
// без терминального ответа. Отсутствие не путать с ответом-отказом.
type Envelope struct {
	Response *sip.Response
	Leg      string
	Err      error
}

// Respond оборачивает ответ устройства
func Respond(res *sip.Response, leg string) Envelope {
	return Envelope{Response: res, Leg: leg}
}

// Closed сигнал закрытия обмена без терминального ответа
func Closed(err error) Envelope {
	return Envelope{Err: err}
}

// IsClosed проверяет, что это сигнал отсутствия ответа
func (e Envelope) IsClosed() bool {
	return e.Response == nil
}

// StatusCode код ответа, 0 для сигнала отсутствия
func (e Envelope) StatusCode() int {
	if e.Response == nil {
		return 0
	}
	return int(e.Response.StatusCode)
}

// IsFinal проверяет, что доставка завершает обмен (финальный ответ или закрытие)
func (e Envelope) IsFinal() bool {
	return e.Response == nil || e.StatusCode() >= 200
}
