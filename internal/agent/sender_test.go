package agent_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"trackio.app/trackio/internal/agent"
	"trackio.app/trackio/internal/model"
)

type mockTransport struct {
	sendFn func(ctx context.Context, payload model.BatchPayload) (agent.Outcome, error)
	sent   []model.BatchPayload
}

func (m *mockTransport) Send(ctx context.Context, payload model.BatchPayload) (agent.Outcome, error) {
	m.sent = append(m.sent, payload)
	if m.sendFn != nil {
		return m.sendFn(ctx, payload)
	}
	return agent.OutcomeAccepted, nil
}

var _ = Describe("Sender", func() {
	var (
		ctx       context.Context
		clock     *manualClock
		emitter   *agent.Emitter
		cache     *agent.Cache
		transport *mockTransport
		statuses  []agent.Status
		sender    *agent.Sender
	)

	const window = 2 * time.Minute

	BeforeEach(func() {
		ctx = context.Background()
		clock = newManualClock()
		emitter = agent.NewEmitter(clock, window)
		transport = &mockTransport{}
		statuses = nil

		dir, err := os.MkdirTemp("", "trackio-sender")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(dir) })

		cache, err = agent.OpenCache(filepath.Join(dir, "cache.db"), 24*time.Hour, clock, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { cache.Close() })

		sender = agent.NewSender(emitter, cache, transport, agent.SenderConfig{
			Timezone:      "UTC",
			FlushInterval: 30 * time.Second,
		}, func(s agent.Status) { statuses = append(statuses, s) }, nil)
	})

	record := func(n int) {
		for i := 0; i < n; i++ {
			emitter.Observe(agent.Activity{Entity: "/src/main.go", Project: "app"})
			clock.Advance(window)
		}
		Expect(emitter.Len()).To(Equal(n))
	}

	It("sends pending heartbeats with the configured timezone", func() {
		record(2)

		outcome := sender.Flush(ctx)
		Expect(outcome).To(Equal(agent.OutcomeAccepted))
		Expect(transport.sent).To(HaveLen(1))
		Expect(transport.sent[0].Timezone).To(Equal("UTC"))
		Expect(transport.sent[0].Heartbeats).To(HaveLen(2))
		Expect(emitter.Len()).To(BeZero())
		Expect(statuses).To(ContainElement(agent.StatusActive))
	})

	It("does not call the transport when nothing is pending", func() {
		Expect(sender.Flush(ctx)).To(Equal(agent.OutcomeAccepted))
		Expect(transport.sent).To(BeEmpty())
	})

	It("re-queues the whole batch on a transient failure", func() {
		transport.sendFn = func(context.Context, model.BatchPayload) (agent.Outcome, error) {
			return agent.OutcomeTransient, errors.New("connection refused")
		}
		record(3)

		outcome := sender.Flush(ctx)
		Expect(outcome).To(Equal(agent.OutcomeTransient))

		// No loss, no duplication: all three heartbeats still pending.
		Expect(emitter.Len()).To(Equal(3))
		Expect(statuses).To(ContainElement(agent.StatusRetrying))

		// And persisted, so a restart cannot lose them either.
		cached, err := cache.LoadAndClear(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cached).NotTo(BeNil())
		Expect(cached.Heartbeats).To(HaveLen(3))
	})

	It("retries the failed batch before newer activity", func() {
		transport.sendFn = func(context.Context, model.BatchPayload) (agent.Outcome, error) {
			return agent.OutcomeTransient, errors.New("timeout")
		}
		emitter.Observe(agent.Activity{Entity: "/src/old.go", Project: "app"})
		clock.Advance(window)
		sender.Flush(ctx)

		emitter.Observe(agent.Activity{Entity: "/src/new.go", Project: "app"})
		clock.Advance(window)

		transport.sendFn = nil
		Expect(sender.Flush(ctx)).To(Equal(agent.OutcomeAccepted))

		last := transport.sent[len(transport.sent)-1]
		Expect(last.Heartbeats).To(HaveLen(2))
		Expect(last.Heartbeats[0].Entity).To(Equal("/src/old.go"))
		Expect(last.Heartbeats[1].Entity).To(Equal("/src/new.go"))
	})

	It("discards everything and stops on an invalid key", func() {
		transport.sendFn = func(context.Context, model.BatchPayload) (agent.Outcome, error) {
			return agent.OutcomeInvalidKey, errors.New("401")
		}
		record(2)

		outcome := sender.Flush(ctx)
		Expect(outcome).To(Equal(agent.OutcomeInvalidKey))
		Expect(emitter.Len()).To(BeZero())
		Expect(statuses).To(ContainElement(agent.StatusInvalidKey))

		cached, err := cache.LoadAndClear(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(cached).To(BeNil())

		// Subsequent flushes are no-ops until reconfigured.
		record(1)
		Expect(sender.Flush(ctx)).To(Equal(agent.OutcomeInvalidKey))
		Expect(transport.sent).To(HaveLen(1))
	})
})
