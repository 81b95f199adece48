// Package command реализует команды платформы GB28181 к устройствам.
//
// Каждая команда строит SIP запрос через Builder, регистрирует обмен в
// session.Table и передает запрос Transport. Дальше возможны три формы:
//
//   - без ожидания: запросы каталога, информации, PTZ, снимки;
//   - отложенная: запрос уходит через LazyDelay тем же путем отправки;
//   - с ограниченным ожиданием: speed, seek, BYE ждут один терминальный
//     ответ, успех только при 200 OK.
//
// INVITE (live, playback, download) проходит автомат согласования
// sent -> proceeding* -> accepted | rejected | timed_out | malformed.
// После accepted вызывающий код отправляет ACK через Stream.InviteAck и
// использует Call-ID/CSeq и теги для запросов внутри диалога.
//
// На любом пути выхода обмен снимается из таблицы, ошибки классифицируются
// через session.ErrorKind.
package command
