package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/asperpharma/webhook-service/internal/auth"
	"github.com/asperpharma/webhook-service/internal/config"
	"github.com/asperpharma/webhook-service/internal/conversation"
	"github.com/asperpharma/webhook-service/internal/handlers"
	"github.com/asperpharma/webhook-service/internal/models"
	"github.com/asperpharma/webhook-service/internal/ratelimit"
	"github.com/asperpharma/webhook-service/internal/reply"
	"github.com/asperpharma/webhook-service/internal/store"
	"github.com/asperpharma/webhook-service/internal/webhook"
)

type fakeGenerator struct {
	calls int32
	reply string
	slug  string
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, message string, history []models.Message) (*reply.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &reply.Result{Reply: f.reply, ConcernSlug: f.slug, Source: reply.SourceSingleShot}, nil
}

func (f *fakeGenerator) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

// countingLimiterStore records whether the limiter was consulted.
type countingLimiterStore struct {
	inner *ratelimit.MemoryStore
	calls int32
}

func (s *countingLimiterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.inner.Incr(ctx, key, window)
}

type webhookFixture struct {
	router  *gin.Engine
	store   *store.MemoryStore
	gen     *fakeGenerator
	limiter *countingLimiterStore
}

func newWebhookFixture(secret string, max int, gen *fakeGenerator) *webhookFixture {
	gin.SetMode(gin.TestMode)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	st := store.NewMemoryStore()
	ls := &countingLimiterStore{inner: ratelimit.NewMemoryStore()}
	limiter := ratelimit.NewLimiter(ls, max, time.Minute, nil)
	processor := webhook.NewProcessor(st, conversation.NewService(st, nil), gen, nil)

	h := handlers.NewWebhookHandler(config.WebhookConfig{Secret: secret, MaxBodyBytes: 256 * 1024}, limiter, processor)
	router := gin.New()
	handlers.RegisterWebhookRoutes(router, h, "/process-webhook")

	return &webhookFixture{router: router, store: st, gen: gen, limiter: ls}
}

func (f *webhookFixture) post(path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	Expect(json.Unmarshal(w.Body.Bytes(), &out)).To(Succeed())
	return out
}

var _ = Describe("WebhookHandler", func() {
	var (
		f   *webhookFixture
		gen *fakeGenerator
	)

	BeforeEach(func() {
		gen = &fakeGenerator{reply: "Hello! Try our hydrating serum.", slug: "dryness-hydration"}
		f = newWebhookFixture("", 60, gen)
	})

	Describe("method gating", func() {
		It("answers GET with a health document", func() {
			req := httptest.NewRequest(http.MethodGet, "/process-webhook", nil)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			body := decodeResponse(w)
			Expect(body).To(HaveKeyWithValue("status", "ok"))
			Expect(body).To(HaveKeyWithValue("service", "process-webhook"))
			Expect(body).To(HaveKey("timestamp"))
		})

		It("answers POST ?health=true with a health document without processing", func() {
			w := f.post("/process-webhook?health=true", []byte(`{"message":"hi"}`), nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeResponse(w)).To(HaveKeyWithValue("status", "ok"))
			Expect(gen.Calls()).To(BeZero())
		})

		It("rejects other methods with 405", func() {
			for _, m := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch} {
				req := httptest.NewRequest(m, "/process-webhook", nil)
				w := httptest.NewRecorder()
				f.router.ServeHTTP(w, req)

				Expect(w.Code).To(Equal(http.StatusMethodNotAllowed), m)
				Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Method not allowed"))
			}
		})
	})

	Describe("rejections", func() {
		It("rejects an oversized body before any downstream call", func() {
			big := []byte(`{"message":"` + strings.Repeat("a", 256*1024) + `"}`)
			w := f.post("/process-webhook", big, nil)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Request body too large (max 256 KB)"))
			Expect(atomic.LoadInt32(&f.limiter.calls)).To(BeZero())
			Expect(gen.Calls()).To(BeZero())
			Expect(f.store.Events()).To(BeEmpty())
		})

		It("accepts a body of exactly 256 KiB", func() {
			prefix, suffix := `{"message":"`, `"}`
			body := []byte(prefix + strings.Repeat("a", 256*1024-len(prefix)-len(suffix)) + suffix)
			Expect(body).To(HaveLen(256 * 1024))

			w := f.post("/process-webhook", body, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("rejects malformed JSON", func() {
			for _, body := range []string{`{"message":`, ``, `{"a":1} trailing`, `not json`} {
				w := f.post("/process-webhook", []byte(body), nil)
				Expect(w.Code).To(Equal(http.StatusBadRequest), body)
				Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Invalid JSON body"))
			}
			Expect(f.store.Events()).To(BeEmpty())
		})

		It("rate limits per source address with Retry-After", func() {
			f = newWebhookFixture("", 2, gen)
			headers := map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}

			for i := 0; i < 2; i++ {
				Expect(f.post("/process-webhook", []byte(`{"message":"hi"}`), headers).Code).To(Equal(http.StatusOK))
			}
			w := f.post("/process-webhook", []byte(`{"message":"hi"}`), headers)

			Expect(w.Code).To(Equal(http.StatusTooManyRequests))
			Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Rate limit exceeded"))
			Expect(w.Header().Get("Retry-After")).To(MatchRegexp(`^[1-9][0-9]*$`))
			Expect(f.store.Events()).To(HaveLen(2))

			other := f.post("/process-webhook", []byte(`{"message":"hi"}`), map[string]string{"X-Real-IP": "192.0.2.1"})
			Expect(other.Code).To(Equal(http.StatusOK))
		})

		Context("with a signing secret", func() {
			BeforeEach(func() {
				f = newWebhookFixture("whsec", 60, gen)
			})

			It("rejects missing and invalid signatures", func() {
				body := []byte(`{"customer_id":"c1","message":"hi"}`)

				w := f.post("/process-webhook", body, nil)
				Expect(w.Code).To(Equal(http.StatusUnauthorized))
				Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Invalid signature"))

				w = f.post("/process-webhook", body, map[string]string{"x-webhook-signature": "sha256=" + strings.Repeat("0", 64)})
				Expect(w.Code).To(Equal(http.StatusUnauthorized))

				Expect(gen.Calls()).To(BeZero())
				Expect(f.store.Events()).To(BeEmpty())
			})

			It("accepts a valid signature in either header", func() {
				body := []byte(`{"customer_id":"c1","message":"hi"}`)
				sig := auth.Sign(body, "whsec")

				w := f.post("/process-webhook", body, map[string]string{"x-webhook-signature": "sha256=" + sig})
				Expect(w.Code).To(Equal(http.StatusOK))

				w = f.post("/process-webhook", body, map[string]string{"Authorization": "Bearer " + strings.ToUpper(sig)})
				Expect(w.Code).To(Equal(http.StatusOK))

				events := f.store.Events()
				Expect(events).To(HaveLen(2))
				Expect(events[0].SignatureValid).To(BeTrue())
			})
		})
	})

	Describe("processing", func() {
		It("creates a conversation and logs a processed record for a generic message", func() {
			w := f.post("/process-webhook?route=generic", []byte(`{"customer_id":"c1","message":"hello"}`), nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			body := decodeResponse(w)
			Expect(body).To(HaveKeyWithValue("reply", "Hello! Try our hydrating serum."))
			Expect(body).To(HaveKeyWithValue("concern_slug", "dryness-hydration"))
			Expect(body).To(HaveKeyWithValue("logged", true))
			Expect(body).To(HaveKey("conversationId"))
			Expect(body).NotTo(HaveKey("cached"))

			convs := f.store.Conversations()
			Expect(convs).To(HaveLen(1))
			Expect(convs[0].CustomerID).To(Equal("c1"))
			Expect(convs[0].Channel).To(Equal("generic"))
			Expect(convs[0].Context.Messages[0].Role).To(Equal(models.RoleUser))
			Expect(convs[0].Context.Messages[0].Content).To(Equal("hello"))

			events := f.store.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Status).To(Equal(models.StatusProcessed))
			Expect(events[0].SourceIP).To(Equal("unknown"))
		})

		It("records an unsigned request as valid when no secret is configured", func() {
			w := f.post("/process-webhook", []byte(`{"customer_id":"c1","message":"hello"}`), nil)
			Expect(w.Code).To(Equal(http.StatusOK))

			events := f.store.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Status).To(Equal(models.StatusProcessed))
			Expect(events[0].SignatureValid).To(BeTrue())
		})

		It("records a no-message event as signature valid too", func() {
			f.post("/process-webhook?route=manychat", []byte(`{"user_id":"u1"}`), nil)

			events := f.store.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].SignatureValid).To(BeTrue())
		})

		It("resolves the route from the header and extracts gorgias fields", func() {
			body := []byte(`{"ticket":{"customer":{"id":991}},"message":{"body_text":"Do you ship to Irbid?"}}`)
			w := f.post("/process-webhook", body, map[string]string{"x-webhook-route": "gorgias"})

			Expect(w.Code).To(Equal(http.StatusOK))
			convs := f.store.Conversations()
			Expect(convs).To(HaveLen(1))
			Expect(convs[0].CustomerID).To(Equal("991"))
			Expect(convs[0].Channel).To(Equal("gorgias"))
		})

		It("logs an error record when there is no message", func() {
			w := f.post("/process-webhook?route=manychat", []byte(`{"user_id":"u1"}`), nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			body := decodeResponse(w)
			Expect(body).To(HaveKeyWithValue("reply", "No message to process"))
			Expect(body).To(HaveKeyWithValue("logged", true))

			events := f.store.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Status).To(Equal(models.StatusError))
			Expect(events[0].ErrorMessage).To(Equal("No message found in webhook body"))
			Expect(gen.Calls()).To(BeZero())
		})

		It("still returns 200 with the fallback when the reply backend fails", func() {
			gen.err = fmt.Errorf("%w: status 500", reply.ErrNoReply)

			w := f.post("/process-webhook", []byte(`{"customer_id":"c2","message":"hi"}`), nil)

			Expect(w.Code).To(Equal(http.StatusOK))
			body := decodeResponse(w)
			Expect(body).To(HaveKeyWithValue("reply", webhook.FallbackReply))
			Expect(body).To(HaveKeyWithValue("logged", true))
		})

		It("redacts credentials in the stored header snapshot", func() {
			f.post("/process-webhook", []byte(`{"message":"hi"}`), map[string]string{"apikey": "anon", "X-Custom": "v"})

			var headers map[string]string
			Expect(json.Unmarshal(f.store.Events()[0].Headers, &headers)).To(Succeed())
			Expect(headers).To(HaveKeyWithValue("apikey", "[redacted]"))
			Expect(headers).To(HaveKeyWithValue("x-custom", "v"))
		})
	})

	Describe("idempotent replay", func() {
		It("serves the second delivery from the log without reprocessing", func() {
			body := []byte(`{"event_id":"evt_123","customer_id":"c1","message":"hello"}`)

			first := f.post("/process-webhook", body, nil)
			second := f.post("/process-webhook", body, nil)

			Expect(first.Code).To(Equal(http.StatusOK))
			Expect(second.Code).To(Equal(http.StatusOK))

			a, b := decodeResponse(first), decodeResponse(second)
			Expect(b["reply"]).To(Equal(a["reply"]))
			Expect(b["concern_slug"]).To(Equal(a["concern_slug"]))
			Expect(b).To(HaveKeyWithValue("cached", true))
			Expect(b).To(HaveKeyWithValue("logged", true))

			Expect(gen.Calls()).To(Equal(1))
			Expect(f.store.Events()).To(HaveLen(1))
			Expect(f.store.Conversations()[0].Context.Messages).To(HaveLen(2))
		})

		It("uses the x-idempotency-key header when the body has no id", func() {
			headers := map[string]string{"x-idempotency-key": "hdr-1"}
			f.post("/process-webhook", []byte(`{"message":"one"}`), headers)
			w := f.post("/process-webhook", []byte(`{"message":"two"}`), headers)

			Expect(decodeResponse(w)).To(HaveKeyWithValue("cached", true))
			Expect(gen.Calls()).To(Equal(1))
		})

		It("processes the same id on a different route independently", func() {
			body := []byte(`{"event_id":"evt_9","text":"hello"}`)
			f.post("/process-webhook?route=gorgias", body, nil)
			w := f.post("/process-webhook?route=manychat", body, nil)

			Expect(decodeResponse(w)).NotTo(HaveKey("cached"))
			Expect(gen.Calls()).To(Equal(2))
		})
	})
})
