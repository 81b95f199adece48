package command

import "github.com/arzzra/gb_session/pkg/session"

// Service точка входа слоя команд: запросы, управление и медиасессии
// поверх одного диспетчера и одной таблицы корреляции.
type Service struct {
	Query   *Query
	Control *Control
	Stream  *Stream

	dispatcher *Dispatcher
}

// NewService создает слой команд
func NewService(table *session.Table, builder Builder, transport Transport, config *Config) *Service {
	d := NewDispatcher(table, builder, transport, config)
	return &Service{
		Query:      &Query{d: d},
		Control:    &Control{d: d},
		Stream:     &Stream{d: d},
		dispatcher: d,
	}
}

// Table таблица корреляции, в которую транспорт доставляет ответы
func (s *Service) Table() *session.Table {
	return s.dispatcher.table
}
