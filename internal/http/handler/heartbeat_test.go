package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"trackio.app/trackio/internal/http/handler"
	"trackio.app/trackio/internal/service"
)

var _ = Describe("HeartbeatHandler", func() {
	var (
		router *gin.Engine
		svc    *mockHeartbeatService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockHeartbeatService{}
		h := handler.NewHeartbeatHandler(svc)
		router.POST("/heartbeats", h.Ingest)
	})

	post := func(apiKey, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/heartbeats", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("x-api-key", apiKey)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("returns 202 with the enqueued count", func() {
		svc.ingestFn = func(_ context.Context, apiKey string, _ []byte) (int, error) {
			Expect(apiKey).To(Equal("secret"))
			return 3, nil
		}

		w := post("secret", `{"timezone":"UTC","heartbeats":[]}`)

		Expect(w.Code).To(Equal(http.StatusAccepted))
		var resp map[string]int
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp["count"]).To(Equal(3))
	})

	It("returns 401 when the key header is missing without calling the service", func() {
		called := false
		svc.ingestFn = func(context.Context, string, []byte) (int, error) {
			called = true
			return 0, nil
		}

		w := post("", `{}`)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(called).To(BeFalse())
	})

	It("returns 401 on an invalid key", func() {
		svc.ingestFn = func(context.Context, string, []byte) (int, error) {
			return 0, service.ErrInvalidAPIKey
		}

		Expect(post("bad", `{}`).Code).To(Equal(http.StatusUnauthorized))
	})

	It("returns 429 with a Retry-After header", func() {
		svc.ingestFn = func(context.Context, string, []byte) (int, error) {
			return 0, &service.RateLimitError{RetryAfter: 42 * time.Second}
		}

		w := post("secret", `{}`)

		Expect(w.Code).To(Equal(http.StatusTooManyRequests))
		Expect(w.Header().Get("Retry-After")).To(Equal("42"))
	})

	It("returns 400 on malformed json", func() {
		svc.ingestFn = func(context.Context, string, []byte) (int, error) {
			return 0, service.ErrMalformedPayload
		}

		Expect(post("secret", `{oops`).Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 400 with itemized field errors", func() {
		svc.ingestFn = func(context.Context, string, []byte) (int, error) {
			return 0, &service.ValidationError{Fields: []service.FieldError{
				{Field: "heartbeats[0].project", Message: "must be 1-255 characters"},
				{Field: "timezone", Message: "must be a resolvable IANA zone name"},
			}}
		}

		w := post("secret", `{}`)

		Expect(w.Code).To(Equal(http.StatusBadRequest))
		var resp struct {
			Fields []struct {
				Field string `json:"field"`
			} `json:"fields"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Fields).To(HaveLen(2))
	})

	It("returns 503 when the queue is unavailable", func() {
		svc.ingestFn = func(context.Context, string, []byte) (int, error) {
			return 0, service.ErrQueueUnavailable
		}

		Expect(post("secret", `{}`).Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("returns 500 on unexpected errors", func() {
		svc.ingestFn = func(context.Context, string, []byte) (int, error) {
			return 0, errors.New("boom")
		}

		Expect(post("secret", `{}`).Code).To(Equal(http.StatusInternalServerError))
	})
})

var _ = Describe("SummaryHandler", func() {
	var (
		router *gin.Engine
		svc    *mockHeartbeatService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockHeartbeatService{}
		h := handler.NewSummaryHandler(svc)
		router.GET("/summaries", h.List)
	})

	It("passes the requested range through", func() {
		var gotFrom, gotTo string
		svc.summariesFn = func(_ context.Context, _, from, to string) (*service.SummaryReport, error) {
			gotFrom, gotTo = from, to
			return &service.SummaryReport{}, nil
		}

		req := httptest.NewRequest(http.MethodGet, "/summaries?from=2023-11-01&to=2023-11-14", nil)
		req.Header.Set("x-api-key", "secret")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(gotFrom).To(Equal("2023-11-01"))
		Expect(gotTo).To(Equal("2023-11-14"))
	})

	It("returns 401 without a key", func() {
		req := httptest.NewRequest(http.MethodGet, "/summaries", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})
})
