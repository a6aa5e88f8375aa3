package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/internal/domain/model"
	"github.com/Bronze2001/CityuDS5003-crowdlabel-system/pkg/metrics"
)

// In-memory Store implementation.
//
// A single mutex serializes transactions, which is a stronger guarantee
// than the per-task boundaries the engine needs. Entity values are
// cloned on every read and write so callers can never alias store
// state, and a transaction snapshots the maps up front so an error
// rolls the whole block back.

// pairKey indexes (user, task) uniqueness for annotations and reservations.
type pairKey struct {
	userID string
	taskID string
}

// MemStore is the default map-backed store.
type MemStore struct {
	mu     sync.Mutex
	closed bool

	users        map[string]model.User
	usernames    map[string]string // username -> user id
	tasks        map[string]model.Task
	annotations  map[string]model.Annotation
	annByPair    map[pairKey]string // (user, task) -> annotation id
	payments     map[string]model.Payment
	reservations map[pairKey]model.Reservation

	metricsUpdateInterval time.Duration
}

// Option applies a configuration option to the MemStore.
type Option func(*MemStore)

// WithMetricsUpdateInterval sets the interval for background entity
// count gauge updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *MemStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

const defaultMetricsUpdateInterval = 10 * time.Second

// NewMemStore creates an empty in-memory store. The background metrics
// updater runs until ctx is canceled.
func NewMemStore(ctx context.Context, opts ...Option) *MemStore {
	s := &MemStore{
		users:                 make(map[string]model.User),
		usernames:             make(map[string]string),
		tasks:                 make(map[string]model.Task),
		annotations:           make(map[string]model.Annotation),
		annByPair:             make(map[pairKey]string),
		payments:              make(map[string]model.Payment),
		reservations:          make(map[pairKey]model.Reservation),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.metricsLoop(ctx)

	return s
}

func (s *MemStore) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(s.metricsUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			metrics.UpdateEntityCounts(len(s.users), len(s.tasks), len(s.annotations), len(s.payments))
			s.mu.Unlock()
		}
	}
}

// Atomically runs fn under the store mutex. On error every map is
// restored from the snapshot taken at entry.
func (s *MemStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Close marks the store closed. Further transactions fail with ErrClosed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type storeSnapshot struct {
	users        map[string]model.User
	usernames    map[string]string
	tasks        map[string]model.Task
	annotations  map[string]model.Annotation
	annByPair    map[pairKey]string
	payments     map[string]model.Payment
	reservations map[pairKey]model.Reservation
}

// snapshot shallow-copies the maps. Stored values are never mutated in
// place (writes replace whole values), so a shallow copy is enough.
func (s *MemStore) snapshot() storeSnapshot {
	snap := storeSnapshot{
		users:        make(map[string]model.User, len(s.users)),
		usernames:    make(map[string]string, len(s.usernames)),
		tasks:        make(map[string]model.Task, len(s.tasks)),
		annotations:  make(map[string]model.Annotation, len(s.annotations)),
		annByPair:    make(map[pairKey]string, len(s.annByPair)),
		payments:     make(map[string]model.Payment, len(s.payments)),
		reservations: make(map[pairKey]model.Reservation, len(s.reservations)),
	}
	for k, v := range s.users {
		snap.users[k] = v
	}
	for k, v := range s.usernames {
		snap.usernames[k] = v
	}
	for k, v := range s.tasks {
		snap.tasks[k] = v
	}
	for k, v := range s.annotations {
		snap.annotations[k] = v
	}
	for k, v := range s.annByPair {
		snap.annByPair[k] = v
	}
	for k, v := range s.payments {
		snap.payments[k] = v
	}
	for k, v := range s.reservations {
		snap.reservations[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap storeSnapshot) {
	s.users = snap.users
	s.usernames = snap.usernames
	s.tasks = snap.tasks
	s.annotations = snap.annotations
	s.annByPair = snap.annByPair
	s.payments = snap.payments
	s.reservations = snap.reservations
}

// cloneTask copies a task including its option slice and label pointer.
func cloneTask(t model.Task) model.Task {
	c := t
	c.Options = append([]string(nil), t.Options...)
	if t.FinalLabel != nil {
		label := *t.FinalLabel
		c.FinalLabel = &label
	}
	return c
}

// cloneAnnotation copies an annotation including its nullable fields.
func cloneAnnotation(a model.Annotation) model.Annotation {
	c := a
	if a.IsCorrect != nil {
		v := *a.IsCorrect
		c.IsCorrect = &v
	}
	if a.Payment != nil {
		v := *a.Payment
		c.Payment = &v
	}
	if a.PaymentID != nil {
		v := *a.PaymentID
		c.PaymentID = &v
	}
	return c
}

// memTx implements Tx directly against the locked store maps.
type memTx struct {
	s *MemStore
}

func (t *memTx) CreateUser(u model.User) error {
	if _, exists := t.s.users[u.ID]; exists {
		return ErrDuplicate
	}
	if _, exists := t.s.usernames[u.Username]; exists {
		return ErrDuplicate
	}
	t.s.users[u.ID] = u
	t.s.usernames[u.Username] = u.ID
	return nil
}

func (t *memTx) GetUser(id string) (model.User, error) {
	u, ok := t.s.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (t *memTx) ListUsers() ([]model.User, error) {
	users := make([]model.User, 0, len(t.s.users))
	for _, u := range t.s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (t *memTx) CreditWallet(userID string, amount float64) error {
	u, ok := t.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.WalletBalance += amount
	t.s.users[userID] = u
	return nil
}

func (t *memTx) CreateTask(task model.Task) error {
	if _, exists := t.s.tasks[task.ID]; exists {
		return ErrDuplicate
	}
	t.s.tasks[task.ID] = cloneTask(task)
	return nil
}

func (t *memTx) GetTask(id string) (model.Task, error) {
	task, ok := t.s.tasks[id]
	if !ok {
		return model.Task{}, ErrNotFound
	}
	return cloneTask(task), nil
}

func (t *memTx) UpdateTask(task model.Task) error {
	if _, ok := t.s.tasks[task.ID]; !ok {
		return ErrNotFound
	}
	t.s.tasks[task.ID] = cloneTask(task)
	return nil
}

// tasksWhere collects tasks matching pred, oldest first.
func (t *memTx) tasksWhere(pred func(model.Task) bool) []model.Task {
	tasks := make([]model.Task, 0)
	for _, task := range t.s.tasks {
		if pred(task) {
			tasks = append(tasks, cloneTask(task))
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

func (t *memTx) TasksByStatus(status model.TaskStatus) ([]model.Task, error) {
	return t.tasksWhere(func(task model.Task) bool { return task.Status == status }), nil
}

func (t *memTx) TasksByReview(status model.ReviewStatus) ([]model.Task, error) {
	return t.tasksWhere(func(task model.Task) bool { return task.ReviewStatus == status }), nil
}

func (t *memTx) EligibleTask(userID string, cap int) (model.Task, bool, error) {
	candidates := t.tasksWhere(func(task model.Task) bool {
		return task.Status == model.TaskActive && task.AssignedCount < cap
	})
	for _, task := range candidates {
		key := pairKey{userID: userID, taskID: task.ID}
		if _, taken := t.s.annByPair[key]; taken {
			continue
		}
		if _, reserved := t.s.reservations[key]; reserved {
			continue
		}
		return task, true, nil
	}
	return model.Task{}, false, nil
}

func (t *memTx) CreateAnnotation(a model.Annotation) error {
	key := pairKey{userID: a.UserID, taskID: a.TaskID}
	if _, exists := t.s.annByPair[key]; exists {
		return ErrDuplicate
	}
	if _, exists := t.s.annotations[a.ID]; exists {
		return ErrDuplicate
	}
	t.s.annotations[a.ID] = cloneAnnotation(a)
	t.s.annByPair[key] = a.ID
	return nil
}

func (t *memTx) UpdateAnnotation(a model.Annotation) error {
	if _, ok := t.s.annotations[a.ID]; !ok {
		return ErrNotFound
	}
	t.s.annotations[a.ID] = cloneAnnotation(a)
	return nil
}

func (t *memTx) HasAnnotation(userID, taskID string) (bool, error) {
	_, ok := t.s.annByPair[pairKey{userID: userID, taskID: taskID}]
	return ok, nil
}

// annotationsWhere collects annotations matching pred, oldest first.
func (t *memTx) annotationsWhere(pred func(model.Annotation) bool) []model.Annotation {
	anns := make([]model.Annotation, 0)
	for _, a := range t.s.annotations {
		if pred(a) {
			anns = append(anns, cloneAnnotation(a))
		}
	}
	sort.Slice(anns, func(i, j int) bool {
		if anns[i].CreatedAt.Equal(anns[j].CreatedAt) {
			return anns[i].ID < anns[j].ID
		}
		return anns[i].CreatedAt.Before(anns[j].CreatedAt)
	})
	return anns
}

func (t *memTx) AnnotationsByTask(taskID string) ([]model.Annotation, error) {
	return t.annotationsWhere(func(a model.Annotation) bool { return a.TaskID == taskID }), nil
}

func (t *memTx) AnnotationsByUser(userID string) ([]model.Annotation, error) {
	anns := t.annotationsWhere(func(a model.Annotation) bool { return a.UserID == userID })
	// Newest first for history views.
	for i, j := 0, len(anns)-1; i < j; i, j = i+1, j-1 {
		anns[i], anns[j] = anns[j], anns[i]
	}
	return anns, nil
}

func (t *memTx) UnpaidAnnotations() ([]model.Annotation, error) {
	return t.annotationsWhere(func(a model.Annotation) bool {
		return a.IsCorrect != nil && *a.IsCorrect && a.PaymentID == nil
	}), nil
}

func (t *memTx) CreatePayment(p model.Payment) error {
	if _, exists := t.s.payments[p.ID]; exists {
		return ErrDuplicate
	}
	t.s.payments[p.ID] = p
	return nil
}

func (t *memTx) GetPayment(id string) (model.Payment, error) {
	p, ok := t.s.payments[id]
	if !ok {
		return model.Payment{}, ErrNotFound
	}
	return p, nil
}

func (t *memTx) CreateReservation(r model.Reservation) error {
	key := pairKey{userID: r.UserID, taskID: r.TaskID}
	if _, exists := t.s.reservations[key]; exists {
		return ErrDuplicate
	}
	t.s.reservations[key] = r
	return nil
}

func (t *memTx) HasReservation(userID, taskID string) (bool, error) {
	_, ok := t.s.reservations[pairKey{userID: userID, taskID: taskID}]
	return ok, nil
}

func (t *memTx) DeleteReservation(userID, taskID string) error {
	key := pairKey{userID: userID, taskID: taskID}
	if _, ok := t.s.reservations[key]; !ok {
		return ErrNotFound
	}
	delete(t.s.reservations, key)
	return nil
}

func (t *memTx) ExpiredReservations(cutoff time.Time) ([]model.Reservation, error) {
	expired := make([]model.Reservation, 0)
	for _, r := range t.s.reservations {
		if r.CreatedAt.Before(cutoff) {
			expired = append(expired, r)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].CreatedAt.Equal(expired[j].CreatedAt) {
			return expired[i].TaskID < expired[j].TaskID
		}
		return expired[i].CreatedAt.Before(expired[j].CreatedAt)
	})
	return expired, nil
}
