package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	configpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/config"
	loggingpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/logging"
	transportpkg "github.com/Michael--/electron-ipc-sub002/internal/runtime/transport"
	channelbridge "github.com/Michael--/electron-ipc-sub002/transport/channel"
)

type logRecord struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

// recordingLogger captures log calls so tests can assert on warnings the
// runtime emits, duplicate registrations in particular.
type recordingLogger struct {
	mu      sync.Mutex
	records []logRecord
}

func (l *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger { return l }

func (l *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	l.append("debug", msg, nil, fields)
}

func (l *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	l.append("info", msg, nil, fields)
}

func (l *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	l.append("error", msg, err, fields)
}

func (l *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	l.append("trace", msg, nil, fields)
}

func (l *recordingLogger) append(level, msg string, err error, fields loggingpkg.LogFields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, logRecord{level: level, msg: msg, err: err, fields: fields})
}

func (l *recordingLogger) byLevel(level string) []logRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logRecord
	for _, r := range l.records {
		if r.level == level {
			out = append(out, r)
		}
	}
	return out
}

type testPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, topic)
	return nil
}

func (p *testPublisher) Close() error { return nil }

type testSubscriber struct{}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

func testConfig() *configpkg.Config {
	return &configpkg.Config{
		Bridge:           "channel",
		RouteTimeout:     2 * time.Second,
		StreamBufferSize: 8,
	}
}

// newTestService builds a Service without going through a transport factory,
// for unit tests that never publish.
func newTestService(t *testing.T) (*Service, *recordingLogger) {
	t.Helper()
	log := &recordingLogger{}
	conf := testConfig()
	s := &Service{
		Conf:            conf,
		Logger:          log,
		dispatcher:      NewDispatcher(log),
		windows:         NewWindowRegistry(log),
		pending:         newPendingCalls(),
		inspector:       NewInspector(conf, log),
		resourceTracker: newResourceTracker(),
		publisher:       &testPublisher{},
		subscriber:      &testSubscriber{},
		ready:           make(chan struct{}),
		closed:          make(chan struct{}),
	}
	s.streams = newStreamEngine(conf, log, nil)
	return s, log
}

// testHarness is a full in-process runtime: one Service, one or two Clients,
// all sharing one channel bridge.
type testHarness struct {
	service *Service
	clients map[WindowID]*Client
	cancel  context.CancelFunc
}

func newTestHarness(t *testing.T, conf *configpkg.Config, windows map[WindowID]string) *testHarness {
	t.Helper()
	if conf == nil {
		conf = testConfig()
	}

	pair := channelbridge.NewPair(watermill.NopLogger{})
	factory := transportpkg.Fixed(pair)
	log := loggingpkg.NewNopLogger()

	ctx, cancel := context.WithCancel(context.Background())

	svc := NewService(conf, log, ctx, ServiceDependencies{
		TransportFactory:          factory,
		DisableDefaultMiddlewares: true,
	})
	go func() { _ = svc.Start(ctx) }()
	waitReady(t, svc.Ready())

	h := &testHarness{
		service: svc,
		clients: make(map[WindowID]*Client),
		cancel:  cancel,
	}

	for id, role := range windows {
		svc.RegisterWindow(id, role)
		client := NewClient(conf, log, ctx, id, role, ClientDependencies{TransportFactory: factory})
		go func(c *Client) { _ = c.Start(ctx) }(client)
		waitReady(t, client.Ready())
		h.clients[id] = client
	}

	t.Cleanup(cancel)
	return h
}

func waitReady(t *testing.T, ready <-chan struct{}) {
	t.Helper()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("peer did not become ready")
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
