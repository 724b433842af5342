package worker_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"trackio.app/trackio/common/id"
	"trackio.app/trackio/core/config"
	"trackio.app/trackio/internal/model"
	"trackio.app/trackio/internal/queue"
	"trackio.app/trackio/internal/worker"
)

const lockKey = "worker:processing:lock"

var _ = BeforeSuite(func() {
	Expect(id.Init(9)).To(Succeed())
})

func aggregatorConfig() config.AggregatorConfig {
	return config.AggregatorConfig{
		MaxMessagesPerRun:    500,
		LockTTL:              5 * time.Minute,
		RetentionDays:        30,
		TxTimeout:            30 * time.Second,
		DurationPerHeartbeat: 2,
	}
}

var _ = Describe("Aggregator", func() {
	var (
		ctx    context.Context
		q      *queue.MemoryQueue
		locker *queue.MemoryLocker
		tx     *fakeTxRunner
		agg    *worker.Aggregator
	)

	BeforeEach(func() {
		ctx = context.Background()
		q = queue.NewMemoryQueue()
		locker = queue.NewMemoryLocker()
		tx = newFakeTxRunner()
		agg = worker.NewAggregator(q, locker, tx, lockKey, aggregatorConfig(), nil)
	})

	push := func(userID, tz string, hbs ...model.Heartbeat) {
		Expect(q.Push(ctx, model.QueueMessage{
			UserID:   userID,
			Timezone: tz,
			Batch:    hbs,
		})).To(Succeed())
	}

	It("reports already running when the lock is held", func() {
		held, err := locker.Acquire(ctx, lockKey, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(held).To(BeTrue())

		push("u1", "UTC", model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding})

		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.AlreadyRunning).To(BeTrue())

		// Zero side effects: queue untouched, nothing persisted.
		length, _ := q.Len(ctx)
		Expect(length).To(Equal(int64(1)))
		Expect(tx.summaries.summaries).To(BeEmpty())
	})

	It("releases the lock after a run", func() {
		_, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		free, err := locker.Acquire(ctx, lockKey, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(free).To(BeTrue())
	})

	It("does nothing on an empty queue", func() {
		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Fetched).To(BeZero())
		Expect(tx.runs.runs).To(BeEmpty())
	})

	It("folds an accepted batch into daily buckets", func() {
		// 1700000000 is 2023-11-14 22:13:20 UTC.
		push("u1", "UTC", model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding})

		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Fetched).To(Equal(1))
		Expect(report.Processed).To(Equal(1))
		Expect(report.Errors).To(BeZero())

		Expect(tx.summaries.summaries).To(HaveKeyWithValue("u1|2023-11-14|app||coding", int64(2)))
		Expect(tx.summaries.coding).To(HaveKeyWithValue("u1|2023-11-14", int64(2)))

		length, _ := q.Len(ctx)
		Expect(length).To(BeZero())

		Expect(tx.runs.runs).To(HaveLen(1))
		Expect(tx.runs.runs[0].Processed).To(Equal(1))
	})

	It("buckets by the heartbeat's local date, not the UTC date", func() {
		// 1700024340 is 2023-11-15 04:59:00 UTC, which is 23:59 on the 14th
		// in New York.
		push("u1", "America/New_York",
			model.Heartbeat{Time: 1700024340, Project: "app", Category: model.CategoryCoding})

		_, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(tx.summaries.summaries).To(HaveKey("u1|2023-11-14|app||coding"))
		Expect(tx.summaries.summaries).NotTo(HaveKey("u1|2023-11-15|app||coding"))
	})

	It("substitutes UTC for an unresolvable timezone", func() {
		push("u1", "Not/AZone",
			model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding})

		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Processed).To(Equal(1))
		Expect(tx.summaries.summaries).To(HaveKey("u1|2023-11-14|app||coding"))
	})

	It("splits totals by category", func() {
		push("u1", "UTC",
			model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding},
			model.Heartbeat{Time: 1700000010, Project: "app", Category: model.CategoryDebugging},
			model.Heartbeat{Time: 1700000020, Project: "app", Category: model.CategoryDebugging},
		)

		_, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(tx.summaries.coding).To(HaveKeyWithValue("u1|2023-11-14", int64(2)))
		Expect(tx.summaries.debugging).To(HaveKeyWithValue("u1|2023-11-14", int64(4)))
	})

	It("doubles durations when the same slice is aggregated twice", func() {
		hb := model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding}
		push("u1", "UTC", hb)

		_, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		// Same slice again, as after a crash between persist and trim.
		push("u1", "UTC", hb)
		_, err = agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(tx.summaries.summaries).To(HaveKeyWithValue("u1|2023-11-14|app||coding", int64(4)))
	})

	It("skips malformed items without aborting and still trims them", func() {
		Expect(q.PushRaw(ctx, "not json")).To(Succeed())
		push("u1", "UTC", model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding})

		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Fetched).To(Equal(2))
		Expect(report.Processed).To(Equal(1))
		Expect(report.Errors).To(Equal(1))

		length, _ := q.Len(ctx)
		Expect(length).To(BeZero())
	})

	It("skips invalid heartbeats inside a valid message", func() {
		push("u1", "UTC",
			model.Heartbeat{Time: -1, Project: "app", Category: model.CategoryCoding},
			model.Heartbeat{Time: 1700000000, Project: "", Category: model.CategoryCoding},
			model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding},
		)

		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Processed).To(Equal(1))
		Expect(tx.summaries.summaries).To(HaveKeyWithValue("u1|2023-11-14|app||coding", int64(2)))
	})

	It("truncates an over-long language instead of dropping the heartbeat", func() {
		long := strings.Repeat("x", model.MaxLanguageLen+20)
		push("u1", "UTC", model.Heartbeat{
			Time: 1700000000, Project: "app", Language: long,
			Category: model.CategoryCoding,
		})

		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Processed).To(Equal(1))
		truncated := long[:model.MaxLanguageLen]
		Expect(tx.summaries.summaries).To(HaveKeyWithValue(
			"u1|2023-11-14|app|"+truncated+"|coding", int64(2)))
	})

	It("trims only the fetched prefix", func() {
		cfg := aggregatorConfig()
		cfg.MaxMessagesPerRun = 2
		agg = worker.NewAggregator(q, locker, tx, lockKey, cfg, nil)

		hb := model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding}
		push("a", "UTC", hb)
		push("b", "UTC", hb)
		push("c", "UTC", hb)

		report, err := agg.RunOnce(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Fetched).To(Equal(2))

		length, _ := q.Len(ctx)
		Expect(length).To(Equal(int64(1)))

		items, _ := q.Peek(ctx, 0, 1)
		left, _ := items[0].Decode()
		Expect(left.UserID).To(Equal("c"))
	})

	It("keeps the queue intact when persistence fails, but releases the lock", func() {
		tx.summaries.failNext = true
		push("u1", "UTC", model.Heartbeat{Time: 1700000000, Project: "app", Category: model.CategoryCoding})

		_, err := agg.RunOnce(ctx)
		Expect(err).To(HaveOccurred())

		length, _ := q.Len(ctx)
		Expect(length).To(Equal(int64(1)))

		free, err := locker.Acquire(ctx, lockKey, time.Minute)
		Expect(err).NotTo(HaveOccurred())
		Expect(free).To(BeTrue())
	})
})
