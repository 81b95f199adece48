package session

import (
	"container/heap"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type waiterKind int

const (
	// waiterDetached - запрос без читателя ответа (fire-and-forget)
	waiterDetached waiterKind = iota
	// waiterSync - канал, в который доставляются ответы
	waiterSync
	// waiterDeferred - отложенное действие с временем срабатывания
	waiterDeferred
)

func (k waiterKind) String() string {
	switch k {
	case waiterSync:
		return "sync"
	case waiterDeferred:
		return "deferred"
	default:
		return "detached"
	}
}

type entry struct {
	kind     waiterKind
	ch       chan Envelope
	action   func()
	deadline time.Time
}

// TableConfig конфигурация таблицы корреляции
type TableConfig struct {
	// WaitTimeout - сколько живет регистрация обмена без терминального ответа
	WaitTimeout time.Duration
	// Logger для диагностики таблицы
	Logger *logrus.Entry
	// Metrics может быть nil
	Metrics *Metrics
}

// DefaultTableConfig возвращает конфигурацию по умолчанию
func DefaultTableConfig() *TableConfig {
	return &TableConfig{
		WaitTimeout: 8 * time.Second,
		Logger:      logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Table таблица корреляции запросов и ответов.
//
// Связывает Ident с единственным ожидающим: каналом ответов, запросом без
// читателя или отложенным действием. Таблица владеет всеми ожидающими,
// вызывающий код держит только Ident.
//
// Один фоновый sweeper, взведенный на ближайший дедлайн из кучи дедлайнов,
// закрывает каналы просроченных обменов и запускает отложенные действия,
// каждое в своей горутине. Закрытый канал для ожидающего означает
// "ответа не было".
//
// Все операции атомарны, блокировка не удерживается на время ожидания.
type Table struct {
	mu        sync.Mutex
	entries   map[Ident]*entry
	deadlines deadlineHeap
	// armed дедлайн, на который взведен sweeper, нулевой если не взведен
	armed time.Time

	ttl     time.Duration
	log     *logrus.Entry
	metrics *Metrics

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewTable создает таблицу и запускает sweeper
func NewTable(config *TableConfig) *Table {
	if config == nil {
		config = DefaultTableConfig()
	}
	ttl := config.WaitTimeout
	if ttl <= 0 {
		ttl = DefaultTableConfig().WaitTimeout
	}
	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	t := &Table{
		entries: make(map[Ident]*entry),
		ttl:     ttl,
		log:     log.WithField("component", "correlation"),
		metrics: config.Metrics,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	t.wg.Add(1)
	go t.sweep()

	return t
}

// Register регистрирует ожидающего для обмена.
// ch == nil регистрирует запрос без читателя. Если для id уже есть
// активная регистрация, возвращается ошибка KindRegistrationConflict,
// существующий ожидающий не затрагивается.
func (t *Table) Register(id Ident, ch chan Envelope) error {
	e := &entry{kind: waiterDetached, ch: ch}
	if ch != nil {
		e.kind = waiterSync
	}
	return t.insert(id, e, time.Now().Add(t.ttl))
}

// Schedule регистрирует отложенное действие.
// Действие выполняется не раньше fireAt, регистрация снимается до его запуска,
// поэтому действие может повторно зарегистрировать тот же id.
func (t *Table) Schedule(id Ident, action func(), fireAt time.Time) error {
	return t.insert(id, &entry{kind: waiterDeferred, action: action}, fireAt)
}

func (t *Table) insert(id Ident, e *entry, deadline time.Time) error {
	e.deadline = deadline

	t.mu.Lock()
	select {
	case <-t.done:
		t.mu.Unlock()
		return ErrTableClosed
	default:
	}
	if _, exists := t.entries[id]; exists {
		t.mu.Unlock()
		t.log.WithField("ident", id.String()).Error("повторная регистрация обмена")
		return ErrConflict(id)
	}
	t.entries[id] = e
	heap.Push(&t.deadlines, deadlineItem{id: id, entry: e, at: deadline})
	pending := len(t.entries)
	// будим sweeper, только если новый дедлайн раньше взведенного
	wake := t.armed.IsZero() || deadline.Before(t.armed)
	if wake {
		t.armed = deadline
	}
	t.mu.Unlock()

	t.metrics.setPending(pending)
	if wake {
		t.notify()
	}
	return nil
}

// Fulfill доставляет ответ ожидающему.
//
// Доставка неблокирующая: при переполненном канале ответ отбрасывается
// и возвращается false. Без регистрации (обмен уже завершен, например
// ретрансмиссия 200) ответ молча отбрасывается. Финальный ответ для
// запроса без читателя снимает регистрацию.
func (t *Table) Fulfill(id Ident, env Envelope) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		t.metrics.lateDelivery()
		t.log.WithFields(logrus.Fields{
			"ident":  id.String(),
			"status": env.StatusCode(),
		}).Debug("ответ без ожидающего отброшен")
		return false
	}

	switch e.kind {
	case waiterSync:
		select {
		case e.ch <- env:
			return true
		default:
			t.metrics.droppedDelivery()
			t.log.WithField("ident", id.String()).Warn("канал ожидающего переполнен, ответ отброшен")
			return false
		}
	case waiterDetached:
		if env.IsFinal() {
			delete(t.entries, id)
			t.metrics.setPending(len(t.entries))
		}
		return true
	default:
		// отложенный запрос еще не отправлен, отвечать не на что
		return false
	}
}

// Remove снимает регистрацию безусловно. Повторный вызов ничего не делает.
// Канал синхронного ожидающего закрывается.
func (t *Table) Remove(id Ident) {
	t.mu.Lock()
	e, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
		if e.kind == waiterSync {
			close(e.ch)
		}
	}
	pending := len(t.entries)
	t.mu.Unlock()

	if ok {
		t.metrics.setPending(pending)
	}
}

// Has проверяет наличие регистрации
func (t *Table) Has(id Ident) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Len возвращает количество регистраций
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close останавливает sweeper и закрывает все каналы ожидающих.
// Еще не наступившие отложенные действия не выполняются, уже запущенные
// дожидаются завершения.
func (t *Table) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.wg.Wait()

		t.mu.Lock()
		for id, e := range t.entries {
			if e.kind == waiterSync {
				close(e.ch)
			}
			delete(t.entries, id)
		}
		t.deadlines = nil
		t.mu.Unlock()
		t.metrics.setPending(0)
	})
}

func (t *Table) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Table) sweep() {
	defer t.wg.Done()

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		actions, next := t.collect(time.Now())
		for _, action := range actions {
			t.wg.Add(1)
			go t.run(action)
		}

		wait := time.Hour
		if !next.IsZero() {
			wait = time.Until(next)
			if wait < 0 {
				wait = 0
			}
		}
		timer.Reset(wait)

		select {
		case <-t.done:
			return
		case <-t.wake:
		case <-timer.C:
		}
	}
}

// collect снимает просроченные регистрации и возвращает отложенные действия
// к запуску и ближайший оставшийся дедлайн. Просматриваются только
// наступившие дедлайны.
func (t *Table) collect(now time.Time) ([]func(), time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var actions []func()
	for len(t.deadlines) > 0 && !t.deadlines[0].at.After(now) {
		item := heap.Pop(&t.deadlines).(deadlineItem)

		// регистрация уже снята или заменена новой с тем же id
		e, ok := t.entries[item.id]
		if !ok || e != item.entry {
			continue
		}

		delete(t.entries, item.id)
		t.metrics.expire(e.kind.String())

		switch e.kind {
		case waiterDeferred:
			actions = append(actions, e.action)
		case waiterSync:
			close(e.ch)
			t.log.WithField("ident", item.id.String()).Warn("обмен просрочен без терминального ответа")
		default:
			t.log.WithField("ident", item.id.String()).Debug("регистрация без читателя просрочена")
		}
	}
	t.metrics.setPending(len(t.entries))

	var next time.Time
	if len(t.deadlines) > 0 {
		next = t.deadlines[0].at
	}
	t.armed = next
	return actions, next
}

func (t *Table) run(action func()) {
	defer t.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			t.log.WithField("panic", r).Error("паника в отложенном действии")
		}
	}()
	action()
}

// deadlineItem дедлайн регистрации. Снятые регистрации остаются в куче
// до своего дедлайна и пропускаются по несовпадению entry.
type deadlineItem struct {
	id    Ident
	entry *entry
	at    time.Time
}

type deadlineHeap []deadlineItem

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) { *h = append(*h, x.(deadlineItem)) }

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = deadlineItem{}
	*h = old[:n-1]
	return item
}
