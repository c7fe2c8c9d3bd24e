package watcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/freshlane/ordertrack/internal/integrations/marketplace"
	"github.com/freshlane/ordertrack/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Source — то, что сессия опрашивает: REST-клиент трекинг-API или
// напрямую клиент маркетплейса.
type Source interface {
	GetTracking(ctx context.Context, orderID string) (models.TrackingSnapshot, error)
}

type State string

const (
	StateIdle     State = "IDLE"
	StatePolling  State = "POLLING"
	StateStale    State = "STALE"    // данные есть, последний запрос не удался
	StateError    State = "ERROR"    // данных не было ни разу
	StateNotFound State = "NOT_FOUND"
	StateStopped  State = "STOPPED"
)

const (
	DefaultInterval = 30 * time.Second

	// После стольких сбоев подряд показываем баннер "не удаётся обновить".
	// Опрос при этом продолжается с тем же интервалом: устаревшие данные
	// лучше, чем пустой экран.
	bannerFailStreak = 3
)

// Session наблюдает за одним заказом: немедленный первый запрос, затем
// опрос с фиксированным интервалом. Сессия владеет своим таймером и
// последним снапшотом; сессии разных заказов ничем не делятся.
type Session struct {
	id       string
	orderID  string
	source   Source
	interval time.Duration

	// seq растёт на каждый выданный запрос; применяется только ответ
	// с номером больше последнего применённого. Так ответы, обогнавшие
	// друг друга в сети, не откатывают состояние.
	seq atomic.Uint64

	mu            sync.Mutex
	state         State
	snap          *models.TrackingSnapshot
	lastApplied   uint64
	failStreak    int
	banner        bool
	lastAnomaly   string
	terminalSeen  bool
	stopped       bool
	loopRunning   bool

	nudgeCh chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSession(source Source, orderID string) (*Session, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, models.ErrInvalidOrderID
	}
	if source == nil {
		return nil, errors.New("source is required")
	}
	return &Session{
		id:       uuid.NewString(),
		orderID:  orderID,
		source:   source,
		interval: DefaultInterval,
		state:    StateIdle,
		nudgeCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

func (s *Session) WithInterval(d time.Duration) *Session {
	if d > 0 {
		s.interval = d
	}
	return s
}

func (s *Session) ID() string      { return s.id }
func (s *Session) OrderID() string { return s.orderID }

// Start делает один запрос сразу, не дожидаясь первого тика, и запускает
// цикл опроса в фоне.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.New("session already stopped")
	}
	if s.loopRunning {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.loopRunning = true
	s.state = StatePolling
	s.mu.Unlock()

	s.FetchOnce(ctx)

	go s.loop(ctx)
	return nil
}

func (s *Session) loop(ctx context.Context) {
	defer close(s.doneCh)

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			if s.terminalReached() {
				// Терминальный статус: автo-опрос больше не нужен,
				// ручной Refresh остаётся доступным.
				return
			}
			s.FetchOnce(ctx)
		case <-s.nudgeCh:
			if s.terminalReached() {
				return
			}
			s.FetchOnce(ctx)
		}
	}
}

// Nudge просит сессию обновиться раньше следующего тика. Push-события —
// только ускорение опроса, не замена ему: при отсутствии push-канала
// сессия работает так же, просто медленнее.
func (s *Session) Nudge() {
	select {
	case s.nudgeCh <- struct{}{}:
	default:
	}
}

// Stop отменяет таймер и подписку. Ответы, которые были в полёте на момент
// остановки, состояние уже не изменят.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	running := s.loopRunning
	s.state = StateStopped
	s.mu.Unlock()

	close(s.stopCh)
	if running {
		<-s.doneCh
	}
}

// Refresh — ручное обновление. Работает и после того, как терминальный
// статус остановил автоматический опрос.
func (s *Session) Refresh(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.FetchOnce(ctx)
}

// FetchOnce выполняет один запрос и применяет ответ, если он не устарел.
func (s *Session) FetchOnce(ctx context.Context) {
	seq := s.seq.Add(1)
	snap, err := s.source.GetTracking(ctx, s.orderID)
	s.apply(seq, snap, err)
}

func (s *Session) apply(seq uint64, snap models.TrackingSnapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Никаких записей после teardown.
	if s.stopped {
		return
	}
	// Ответ обогнал более новый — молча выбрасываем.
	if seq <= s.lastApplied {
		return
	}
	s.lastApplied = seq

	if err != nil {
		if errors.Is(err, marketplace.ErrOrderNotFound) {
			// Терминально для сессии: опрашивать дальше нет смысла.
			s.state = StateNotFound
			s.terminalSeen = true
			return
		}
		s.failStreak++
		if s.failStreak == bannerFailStreak {
			s.banner = true
		}
		if s.snap == nil {
			s.state = StateError
		} else {
			s.state = StateStale
		}
		return
	}

	s.failStreak = 0
	s.banner = false
	s.state = StatePolling

	if s.snap != nil && snap.Status != s.snap.Status &&
		!models.ValidTransition(s.snap.Status, snap.Status) {
		// Регресс статуса — аномалия данных. Логируем один раз и
		// продолжаем показывать самое продвинутое из виденного.
		if s.lastAnomaly != snap.Status {
			s.lastAnomaly = snap.Status
			slog.Warn("order status regression observed",
				"session_id", s.id,
				"order_id", s.orderID,
				"displayed", s.snap.Status,
				"reported", snap.Status)
		}
		return
	}
	s.lastAnomaly = ""

	s.snap = &snap
	if models.TerminalStatus(snap.Status) {
		s.terminalSeen = true
	}
}

func (s *Session) terminalReached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminalSeen
}

// Done closes when the polling loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.doneCh
}
