package session

import (
	"errors"
	"fmt"
)

// ErrorKind закрытый набор классов ошибок обмена с устройством.
// Вызывающий код выбирает политику повторов по классу, сам слой не повторяет запросы.
type ErrorKind string

const (
	// KindRegistrationConflict - для идентификатора уже есть активный ожидающий
	KindRegistrationConflict ErrorKind = "REGISTRATION_CONFLICT"
	// KindProtocolRejected - устройство ответило финальным неуспешным кодом
	KindProtocolRejected ErrorKind = "PROTOCOL_REJECTED"
	// KindUnresponsive - терминальный ответ не пришел до истечения ожидания
	KindUnresponsive ErrorKind = "UNRESPONSIVE"
	// KindMalformedNegotiation - ответ 200 пришел, но SDP или теги невалидны
	KindMalformedNegotiation ErrorKind = "MALFORMED_NEGOTIATION"
)

// String возвращает строковое представление класса ошибки
func (k ErrorKind) String() string {
	return string(k)
}

// Error структурированная ошибка обмена.
// Поля заполняются в зависимости от класса: StatusCode/Reason только для
// KindProtocolRejected, Cause для KindUnresponsive и KindMalformedNegotiation.
type Error struct {
	Kind       ErrorKind
	Op         string
	Ident      Ident
	StatusCode int
	Reason     string
	Cause      error
}

// Сигнальные значения для errors.Is, сравнение идет только по Kind.
var (
	ErrRegistrationConflict = &Error{Kind: KindRegistrationConflict}
	ErrProtocolRejected     = &Error{Kind: KindProtocolRejected}
	ErrUnresponsive         = &Error{Kind: KindUnresponsive}
	ErrMalformedNegotiation = &Error{Kind: KindMalformedNegotiation}
)

// ErrTableClosed регистрация в остановленной таблице
var ErrTableClosed = errors.New("таблица корреляции закрыта")

// Error реализует интерфейс error
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Kind)
	if e.Op != "" {
		prefix = fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}

	switch e.Kind {
	case KindRegistrationConflict:
		return fmt.Sprintf("%s: обмен %s уже ожидает ответа", prefix, e.Ident)
	case KindProtocolRejected:
		return fmt.Sprintf("%s: устройство отклонило запрос: %d %s", prefix, e.StatusCode, e.Reason)
	case KindUnresponsive:
		if e.Cause != nil {
			return fmt.Sprintf("%s: устройство не ответило или истек таймаут: %v", prefix, e.Cause)
		}
		return fmt.Sprintf("%s: устройство не ответило или истек таймаут", prefix)
	case KindMalformedNegotiation:
		if e.Cause != nil {
			return fmt.Sprintf("%s: некорректное согласование: %s: %v", prefix, e.Reason, e.Cause)
		}
		return fmt.Sprintf("%s: некорректное согласование: %s", prefix, e.Reason)
	default:
		return prefix
	}
}

// Unwrap позволяет использовать errors.Is и errors.As с исходной ошибкой
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по классу
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind проверяет класс ошибки в цепочке
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf извлекает класс ошибки, пустая строка если ошибка не из этого пакета
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ErrConflict создает ошибку повторной регистрации
func ErrConflict(id Ident) *Error {
	return &Error{Kind: KindRegistrationConflict, Ident: id}
}

// ErrRejected создает ошибку отказа устройства
func ErrRejected(op string, id Ident, statusCode int, reason string) *Error {
	return &Error{
		Kind:       KindProtocolRejected,
		Op:         op,
		Ident:      id,
		StatusCode: statusCode,
		Reason:     reason,
	}
}

// ErrNoResponse создает ошибку отсутствия ответа, cause может быть nil
func ErrNoResponse(op string, id Ident, cause error) *Error {
	return &Error{Kind: KindUnresponsive, Op: op, Ident: id, Cause: cause}
}

// ErrMalformed создает ошибку разбора результата согласования
func ErrMalformed(op string, id Ident, reason string, cause error) *Error {
	return &Error{Kind: KindMalformedNegotiation, Op: op, Ident: id, Reason: reason, Cause: cause}
}
