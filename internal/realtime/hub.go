// Package realtime pushes collection snapshots to the clients of a user
// whenever one of that user's collections changes.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrk-pass/household-account-book/internal/models"
	"github.com/hrk-pass/household-account-book/internal/state"
	"go.uber.org/zap"
)

// subscriptionBuffer is the number of undelivered updates kept per
// subscriber. Updates carry whole collections, so when the buffer is full
// the oldest update is dropped.
const subscriptionBuffer = 16

// Loader reads the current contents of a user's collections.
type Loader interface {
	ListExpenses(ctx context.Context, userID string) ([]models.Expense, error)
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)
	ListMealPreps(ctx context.Context, userID string) ([]models.MealPrep, error)
	ListMealLogs(ctx context.Context, userID string) ([]models.MealLog, error)
}

// topic is the per-user fan-out point. mu serializes publishes so that
// subscribers never see an older snapshot after a newer one.
type topic struct {
	mu   sync.Mutex
	book *state.Book
	subs map[*Subscription]struct{}
}

// Hub tracks subscribers per user
type Hub struct {
	loader Loader
	logger *zap.Logger

	mu     sync.Mutex
	topics map[string]*topic
}

// NewHub creates a new Hub
func NewHub(loader Loader, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		loader: loader,
		logger: logger,
		topics: make(map[string]*topic),
	}
}

// Subscription receives collection updates for one user until closed.
type Subscription struct {
	C <-chan state.Update

	ch     chan state.Update
	hub    *Hub
	userID string
	once   sync.Once

	mu   sync.Mutex
	stop func() bool
}

// Subscribe registers a subscriber for userID and queues the current
// contents of every collection as its first updates. The subscription is
// closed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, models.ErrUnauthenticated
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := h.lockTopic(userID)
	defer t.mu.Unlock()

	for _, c := range models.AllCollections {
		if t.book.Loaded(c) {
			continue
		}
		u, err := h.load(ctx, userID, c)
		if err != nil {
			h.release(userID, t)
			return nil, err
		}
		if err := t.book.Apply(u); err != nil {
			h.release(userID, t)
			return nil, err
		}
	}

	ch := make(chan state.Update, subscriptionBuffer)
	sub := &Subscription{C: ch, ch: ch, hub: h, userID: userID}
	for _, u := range t.book.Updates() {
		sub.deliver(u)
	}
	t.subs[sub] = struct{}{}

	// ctx may end right here; Close then blocks on t.mu until we return
	stop := context.AfterFunc(ctx, sub.Close)
	sub.mu.Lock()
	sub.stop = stop
	sub.mu.Unlock()

	h.logger.Debug("subscriber added", zap.String("userId", userID), zap.Int("subscribers", len(t.subs)))
	return sub, nil
}

// Close unregisters the subscription and closes C. It is safe to call
// more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		s.hub.unsubscribe(s)
	})
}

func (s *Subscription) deliver(u state.Update) {
	for {
		select {
		case s.ch <- u:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Publish reloads the given collections of userID and delivers them to
// every subscriber of that user. It does nothing when nobody listens.
func (h *Hub) Publish(ctx context.Context, userID string, collections ...models.Collection) error {
	h.mu.Lock()
	t, ok := h.topics[userID]
	h.mu.Unlock()
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.subs) == 0 {
		return nil
	}

	for _, c := range collections {
		u, err := h.load(ctx, userID, c)
		if err != nil {
			return err
		}
		if err := t.book.Apply(u); err != nil {
			return err
		}
		for sub := range t.subs {
			sub.deliver(u)
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions of userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	t, ok := h.topics[userID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// lockTopic returns the registered topic of userID with its mutex held,
// creating it when needed.
func (h *Hub) lockTopic(userID string) *topic {
	for {
		h.mu.Lock()
		t, ok := h.topics[userID]
		if !ok {
			t = &topic{book: state.NewBook(), subs: make(map[*Subscription]struct{})}
			h.topics[userID] = t
		}
		h.mu.Unlock()

		t.mu.Lock()
		h.mu.Lock()
		current := h.topics[userID] == t
		h.mu.Unlock()
		if current {
			return t
		}
		// released by a closing subscriber in between
		t.mu.Unlock()
	}
}

// release drops the topic of userID if it has no subscribers. t.mu must
// be held.
func (h *Hub) release(userID string, t *topic) {
	if len(t.subs) > 0 {
		return
	}
	h.mu.Lock()
	if h.topics[userID] == t {
		delete(h.topics, userID)
	}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	t, ok := h.topics[s.userID]
	h.mu.Unlock()
	if !ok {
		close(s.ch)
		return
	}

	t.mu.Lock()
	delete(t.subs, s)
	h.release(s.userID, t)
	t.mu.Unlock()
	close(s.ch)

	h.logger.Debug("subscriber removed", zap.String("userId", s.userID))
}

func (h *Hub) load(ctx context.Context, userID string, c models.Collection) (state.Update, error) {
	switch c {
	case models.CollectionExpenses:
		list, err := h.loader.ListExpenses(ctx, userID)
		if err != nil {
			return state.Update{}, fmt.Errorf("error loading expenses: %w", err)
		}
		return state.ExpensesUpdate(list), nil
	case models.CollectionCategories:
		list, err := h.loader.ListCategories(ctx, userID)
		if err != nil {
			return state.Update{}, fmt.Errorf("error loading categories: %w", err)
		}
		return state.CategoriesUpdate(list), nil
	case models.CollectionMealPreps:
		list, err := h.loader.ListMealPreps(ctx, userID)
		if err != nil {
			return state.Update{}, fmt.Errorf("error loading meal preps: %w", err)
		}
		return state.MealPrepsUpdate(list), nil
	case models.CollectionMealLogs:
		list, err := h.loader.ListMealLogs(ctx, userID)
		if err != nil {
			return state.Update{}, fmt.Errorf("error loading meal logs: %w", err)
		}
		return state.MealLogsUpdate(list), nil
	default:
		return state.Update{}, fmt.Errorf("%w: unknown collection %q", models.ErrInvalidInput, c)
	}
}
