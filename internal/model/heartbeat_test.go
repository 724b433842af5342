package model_test

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"trackio.app/trackio/internal/model"
)

var _ = Describe("Heartbeat", func() {
	valid := model.Heartbeat{
		Time:     1700000000,
		Project:  "app",
		Language: "Go",
		Category: model.CategoryCoding,
	}

	It("accepts a well-formed heartbeat", func() {
		Expect(valid.Valid()).To(BeTrue())
	})

	DescribeTable("rejects malformed heartbeats",
		func(mutate func(*model.Heartbeat)) {
			hb := valid
			mutate(&hb)
			Expect(hb.Valid()).To(BeFalse())
		},
		Entry("zero time", func(h *model.Heartbeat) { h.Time = 0 }),
		Entry("negative time", func(h *model.Heartbeat) { h.Time = -1 }),
		Entry("empty project", func(h *model.Heartbeat) { h.Project = "" }),
		Entry("whitespace project", func(h *model.Heartbeat) { h.Project = "   " }),
		Entry("oversized project", func(h *model.Heartbeat) { h.Project = strings.Repeat("p", 256) }),
		Entry("oversized language", func(h *model.Heartbeat) { h.Language = strings.Repeat("l", 51) }),
		Entry("unknown category", func(h *model.Heartbeat) { h.Category = "gaming" }),
	)

	It("converts fractional unix seconds", func() {
		hb := valid
		hb.Time = 1700000000.5

		ts := hb.Timestamp()
		Expect(ts.Unix()).To(Equal(int64(1700000000)))
		Expect(ts.Nanosecond()).To(BeNumerically("~", int(500*time.Millisecond), 1000))
	})
})
