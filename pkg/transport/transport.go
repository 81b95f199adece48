package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/arzzra/gb_session/pkg/builder"
	"github.com/arzzra/gb_session/pkg/command"
	"github.com/arzzra/gb_session/pkg/session"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RequestHandler обработчик входящего запроса устройства (ответы на
// запросы каталога, уведомления). Ответ 200 отправляет транспорт.
type RequestHandler func(req *sip.Request)

// Transport SIP транспорт слоя команд на sipgo.
//
// Исходящие запросы идут клиентскими транзакциями, все ответы транзакции
// доставляются в таблицу корреляции. Если транзакция завершилась без
// финального ответа, в таблицу доставляется сигнал закрытия.
type Transport struct {
	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client

	table   *session.Table
	devices builder.DeviceLookup
	listen  []ListenConfig
	log     *logrus.Entry

	onMessage RequestHandler
	onNotify  RequestHandler
}

var _ command.Transport = (*Transport)(nil)

// New создает транспорт
func New(cfg Config, table *session.Table, devices builder.DeviceLookup, log *logrus.Entry) (*Transport, error) {
	if table == nil {
		return nil, errors.New("нет таблицы корреляции")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}

	opts := []sipgo.UserAgentOption{sipgo.WithUserAgent(cfg.UserAgent)}
	if cfg.Hostname != "" {
		opts = append(opts, sipgo.WithUserAgentHostname(cfg.Hostname))
	}
	ua, err := sipgo.NewUA(opts...)
	if err != nil {
		return nil, fmt.Errorf("user agent: %w", err)
	}
	server, err := sipgo.NewServer(ua)
	if err != nil {
		return nil, fmt.Errorf("sip сервер: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		return nil, fmt.Errorf("sip клиент: %w", err)
	}

	t := &Transport{
		ua:      ua,
		server:  server,
		client:  client,
		table:   table,
		devices: devices,
		listen:  cfg.Listen,
		log:     log.WithField("component", "transport"),
	}
	t.onRequests()
	return t, nil
}

// OnMessage устанавливает обработчик MESSAGE устройств
func (t *Transport) OnMessage(handler RequestHandler) {
	t.onMessage = handler
}

// OnNotify устанавливает обработчик NOTIFY (подписка на каталог)
func (t *Transport) OnNotify(handler RequestHandler) {
	t.onNotify = handler
}

// Send отправляет запрос клиентской транзакцией и запускает доставку
// ответов в таблицу по id.
func (t *Transport) Send(id session.Ident, req *sip.Request) error {
	if err := t.route(id.DeviceID, req); err != nil {
		return err
	}

	tx, err := t.client.TransactionRequest(context.Background(), req, sipgo.ClientRequestAddVia)
	if err != nil {
		return fmt.Errorf("транзакция %s: %w", req.Method, err)
	}
	go t.pump(id, tx)
	return nil
}

// SendNoWait отправляет запрос без транзакции (ACK)
func (t *Transport) SendNoWait(deviceID string, req *sip.Request) error {
	if err := t.route(deviceID, req); err != nil {
		return err
	}
	if err := t.client.WriteRequest(req, sipgo.ClientRequestAddVia); err != nil {
		return fmt.Errorf("запись %s: %w", req.Method, err)
	}
	return nil
}

// route направляет запрос на адрес устройства из реестра
func (t *Transport) route(deviceID string, req *sip.Request) error {
	if t.devices == nil {
		return nil
	}
	dev, err := t.devices.Lookup(context.Background(), deviceID)
	if err != nil {
		return err
	}
	req.SetDestination(dev.Addr())
	return nil
}

// pump доставляет ответы транзакции в таблицу до финального ответа или
// завершения транзакции.
func (t *Transport) pump(id session.Ident, tx sip.ClientTransaction) {
	defer tx.Terminate()

	log := t.log.WithField("ident", id.String())
	for {
		select {
		case res, ok := <-tx.Responses():
			if !ok || res == nil {
				continue
			}
			log.WithField("status", res.StatusCode).Debug("ответ устройства")
			t.table.Fulfill(id, session.Respond(res, branchOf(res)))
			if res.StatusCode >= 200 {
				return
			}
		case <-tx.Done():
			log.WithError(tx.Err()).Debug("транзакция завершена без финального ответа")
			t.table.Fulfill(id, session.Closed(tx.Err()))
			return
		}
	}
}

func branchOf(res *sip.Response) string {
	via := res.Via()
	if via == nil {
		return ""
	}
	branch, _ := via.Params.Get("branch")
	return branch
}

// Listen запускает прием запросов на всех сконфигурированных транспортах,
// блокирует до отмены ctx или ошибки одного из них.
func (t *Transport) Listen(ctx context.Context) error {
	if len(t.listen) == 0 {
		return errors.New("нет сконфигурированных транспортов")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, lc := range t.listen {
		if err := lc.Validate(); err != nil {
			return fmt.Errorf("некорректная конфигурация транспорта %s: %w", lc.Type, err)
		}
		g.Go(func() error {
			t.log.WithFields(logrus.Fields{
				"network": lc.Network(),
				"addr":    lc.Addr(),
			}).Info("SIP транспорт запущен")
			return t.server.ListenAndServe(ctx, lc.Network(), lc.Addr())
		})
	}
	return g.Wait()
}

// Close освобождает ресурсы user agent
func (t *Transport) Close() error {
	return t.ua.Close()
}

func (t *Transport) onRequests() {
	t.server.OnMessage(t.handle("MESSAGE", func() RequestHandler { return t.onMessage }))
	t.server.OnNotify(t.handle("NOTIFY", func() RequestHandler { return t.onNotify }))
	t.server.OnOptions(t.handle("OPTIONS", func() RequestHandler { return nil }))
}

func (t *Transport) handle(method string, handler func() RequestHandler) func(req *sip.Request, tx sip.ServerTransaction) {
	return func(req *sip.Request, tx sip.ServerTransaction) {
		log := t.log.WithField("method", method)
		if from := req.From(); from != nil {
			log = log.WithField("from", from.Address.User)
		}
		log.Debug("запрос устройства")

		if err := tx.Respond(sip.NewResponseFromRequest(req, sip.StatusOK, "OK", nil)); err != nil {
			log.WithError(err).Error("не удалось ответить устройству")
		}
		if h := handler(); h != nil {
			h(req)
		}
	}
}
