package session

import (
	"fmt"
	"strconv"
)

// Ident однозначно идентифицирует один исходящий запрос (обмен) с устройством.
//
// Ключ составной: устройство, канал и ключ SIP-диалога (Call-ID + CSeq).
// Для запросов вне диалога Call-ID синтезируется билдером.
// Значение сравнимо и пригодно как ключ map.
type Ident struct {
	DeviceID  string
	ChannelID string
	CallID    string
	CSeq      uint32
}

// NewIdent создает идентификатор обмена
func NewIdent(deviceID, channelID, callID string, cseq uint32) Ident {
	return Ident{
		DeviceID:  deviceID,
		ChannelID: channelID,
		CallID:    callID,
		CSeq:      cseq,
	}
}

// IsZero проверяет, что идентификатор не заполнен
func (id Ident) IsZero() bool {
	return id == Ident{}
}

// String возвращает строковое представление для логов
func (id Ident) String() string {
	channel := id.ChannelID
	if channel == "" {
		channel = "-"
	}
	return fmt.Sprintf("%s/%s/%s:%s", id.DeviceID, channel, id.CallID, strconv.FormatUint(uint64(id.CSeq), 10))
}
