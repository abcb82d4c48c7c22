package workers

import (
	"context"
	"sync"
	"time"

	"github.com/benvon/habitual/internal/database"
	"github.com/benvon/habitual/internal/models"
	"github.com/benvon/habitual/internal/queue"
	"github.com/google/uuid"
)

type mockJobQueue struct {
	mu          sync.Mutex
	enqueued    []*queue.Job
	enqueueFunc func(ctx context.Context, job *queue.Job) error
	consumeFunc func(ctx context.Context, prefetch int) (<-chan queue.MessageInterface, <-chan error, error)
}

var _ queue.JobQueue = (*mockJobQueue)(nil)

func (m *mockJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.enqueueFunc != nil {
		if err := m.enqueueFunc(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.enqueued = append(m.enqueued, job)
	m.mu.Unlock()
	return nil
}

func (m *mockJobQueue) Consume(ctx context.Context, prefetch int) (<-chan queue.MessageInterface, <-chan error, error) {
	if m.consumeFunc != nil {
		return m.consumeFunc(ctx, prefetch)
	}
	return make(chan queue.MessageInterface), make(chan error), nil
}

func (m *mockJobQueue) Close() error { return nil }

func (m *mockJobQueue) HealthCheck(ctx context.Context) error { return nil }

func (m *mockJobQueue) jobs() []*queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*queue.Job(nil), m.enqueued...)
}

type mockMessage struct {
	job      *queue.Job
	acked    bool
	nacked   bool
	requeued bool
}

var _ queue.MessageInterface = (*mockMessage)(nil)

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeued = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job { return m.job }

type mockUserRepo struct {
	users       []*models.User
	listAllFunc func(ctx context.Context) ([]*models.User, error)
	getByIDFunc func(ctx context.Context, id uuid.UUID) (*models.User, error)
}

var _ database.UserRepositoryInterface = (*mockUserRepo)(nil)

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	m.users = append(m.users, user)
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (m *mockUserRepo) GetByProviderID(ctx context.Context, providerID string) (*models.User, error) {
	return nil, database.ErrNotFound
}

func (m *mockUserRepo) ListAll(ctx context.Context) ([]*models.User, error) {
	if m.listAllFunc != nil {
		return m.listAllFunc(ctx)
	}
	return m.users, nil
}

type mockRunner struct {
	calls       int
	runUserFunc func(ctx context.Context, user *models.User, now time.Time) (*models.RunSummary, error)
}

var _ ResetRunner = (*mockRunner)(nil)

func (m *mockRunner) RunUser(ctx context.Context, user *models.User, now time.Time) (*models.RunSummary, error) {
	m.calls++
	if m.runUserFunc != nil {
		return m.runUserFunc(ctx, user, now)
	}
	return &models.RunSummary{UsersProcessed: 1}, nil
}

func strPtr(s string) *string { return &s }
