// Package messaging - шина доменных событий.
// Локальная шина доставляет события подписчикам процесса; при включённой
// пересылке каждое событие дополнительно уходит во внешний Forwarder (Redis pub/sub).
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tutorhub/tutor-hub/internal/domain/shared"
)

var (
	// ErrEventBusClosed - шина закрыта.
	ErrEventBusClosed = errors.New("event bus is closed")
	// ErrHandlerPanic - обработчик запаниковал.
	ErrHandlerPanic = errors.New("handler panicked")
)

// Forwarder отправляет событие за пределы процесса.
type Forwarder interface {
	Forward(ctx context.Context, env shared.EventEnvelope) error
}

// Config - настройки шины.
type Config struct {
	// Async - обработчики выполняются в пуле горутин.
	Async bool
	// Workers - размер пула для асинхронного режима.
	Workers int
	// Forwarder - опциональная внешняя доставка.
	Forwarder Forwarder
	// ForwardTimeout ограничивает одну пересылку.
	ForwardTimeout time.Duration
	Logger         *slog.Logger
}

// DefaultConfig - синхронная шина без пересылки.
func DefaultConfig() Config {
	return Config{Workers: 8, ForwardTimeout: 2 * time.Second}
}

// Stats - счётчики шины.
type Stats struct {
	Published       int64
	HandlerFailures int64
	ForwardFailures int64
}

// EventBus - реализация shared.EventBus в памяти процесса.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	closed      bool

	cfg     Config
	log     *slog.Logger
	workers chan struct{}
	wg      sync.WaitGroup

	published       atomic.Int64
	handlerFailures atomic.Int64
	forwardFailures atomic.Int64
}

var _ shared.EventBus = (*EventBus)(nil)

// New создаёт шину.
func New(cfg Config) *EventBus {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ForwardTimeout <= 0 {
		cfg.ForwardTimeout = def.ForwardTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &EventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		cfg:      cfg,
		log:      cfg.Logger.With("component", "event_bus"),
		workers:  make(chan struct{}, cfg.Workers),
	}
}

// Subscribe подписывает обработчик на тип события.
func (b *EventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll подписывает обработчик на все события.
func (b *EventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish доставляет событие подписчикам и пересылает его.
// Ошибки обработчиков и пересылки логируются и не возвращаются.
func (b *EventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	b.published.Add(1)

	for _, h := range handlers {
		if b.cfg.Async {
			b.runAsync(event, h)
			continue
		}
		b.run(event, h)
	}

	if b.cfg.Forwarder != nil {
		b.forward(event)
	}
	return nil
}

func (b *EventBus) runAsync(event shared.Event, h shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.workers <- struct{}{}
		defer func() { <-b.workers }()
		b.run(event, h)
	}()
}

func (b *EventBus) run(event shared.Event, h shared.EventHandler) {
	if err := safeCall(h, event); err != nil {
		b.handlerFailures.Add(1)
		b.log.Error("event handler failed", "event_type", event.EventType(), "error", err)
	}
}

func safeCall(h shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

func (b *EventBus) forward(event shared.Event) {
	env, err := shared.NewEnvelope(uuid.NewString(), event)
	if err != nil {
		b.forwardFailures.Add(1)
		b.log.Error("encode event failed", "event_type", event.EventType(), "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.ForwardTimeout)
	defer cancel()
	if err := b.cfg.Forwarder.Forward(ctx, env); err != nil {
		b.forwardFailures.Add(1)
		b.log.Warn("forward event failed", "event_type", event.EventType(), "error", err)
	}
}

// Stats возвращает счётчики.
func (b *EventBus) Stats() Stats {
	return Stats{
		Published:       b.published.Load(),
		HandlerFailures: b.handlerFailures.Load(),
		ForwardFailures: b.forwardFailures.Load(),
	}
}

// Close дожидается асинхронных обработчиков. Повторный вызов безопасен.
func (b *EventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	b.log.Info("event bus closed")
	return nil
}

// Recorder запоминает опубликованные события. Используется в тестах.
type Recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *Recorder) Publish(event shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events возвращает копию списка событий.
func (r *Recorder) Events() []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]shared.Event(nil), r.events...)
}

// Count - сколько событий типа t опубликовано.
func (r *Recorder) Count(t shared.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == t {
			n++
		}
	}
	return n
}
