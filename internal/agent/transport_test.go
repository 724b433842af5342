package agent_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"trackio.app/trackio/internal/agent"
	"trackio.app/trackio/internal/model"
)

func payload() model.BatchPayload {
	return model.BatchPayload{
		Timezone: "UTC",
		Heartbeats: []model.Heartbeat{
			{Time: 1700000000, Project: "app", Category: model.CategoryCoding},
		},
	}
}

var _ = Describe("HTTPTransport", func() {
	var (
		ctx    context.Context
		status int
		server *httptest.Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		status = http.StatusAccepted
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/v1/heartbeats"))
			Expect(r.Header.Get("x-api-key")).To(Equal("secret"))

			var got model.BatchPayload
			Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			w.WriteHeader(status)
		}))
		DeferCleanup(server.Close)
	})

	It("classifies 202 as accepted", func() {
		transport := agent.NewHTTPTransport(server.URL, "secret", time.Second)

		outcome, err := transport.Send(ctx, payload())
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome).To(Equal(agent.OutcomeAccepted))
	})

	It("classifies 401 as an invalid key", func() {
		status = http.StatusUnauthorized
		transport := agent.NewHTTPTransport(server.URL, "secret", time.Second)

		outcome, err := transport.Send(ctx, payload())
		Expect(err).To(HaveOccurred())
		Expect(outcome).To(Equal(agent.OutcomeInvalidKey))
	})

	It("classifies server errors as transient", func() {
		status = http.StatusInternalServerError
		transport := agent.NewHTTPTransport(server.URL, "secret", time.Second)

		outcome, _ := transport.Send(ctx, payload())
		Expect(outcome).To(Equal(agent.OutcomeTransient))
	})

	It("classifies rate limiting as transient", func() {
		status = http.StatusTooManyRequests
		transport := agent.NewHTTPTransport(server.URL, "secret", time.Second)

		outcome, _ := transport.Send(ctx, payload())
		Expect(outcome).To(Equal(agent.OutcomeTransient))
	})

	It("classifies an unreachable endpoint as transient", func() {
		transport := agent.NewHTTPTransport("http://127.0.0.1:1", "secret", 100*time.Millisecond)

		outcome, err := transport.Send(ctx, payload())
		Expect(err).To(HaveOccurred())
		Expect(outcome).To(Equal(agent.OutcomeTransient))
	})
})
