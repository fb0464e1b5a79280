package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/asperpharma/webhook-service/internal/auth"
	"github.com/asperpharma/webhook-service/internal/config"
	"github.com/asperpharma/webhook-service/internal/handlers"
	"github.com/asperpharma/webhook-service/internal/store"
)

var _ = Describe("DatadogHandler", func() {
	const secret = "dd-secret"

	var (
		router *gin.Engine
		st     *store.MemoryStore
	)

	setup := func(secret string) {
		gin.SetMode(gin.TestMode)
		st = store.NewMemoryStore()
		h := handlers.NewDatadogHandler(config.DatadogConfig{Secret: secret}, 256*1024, st, nil)
		router = gin.New()
		handlers.RegisterDatadogRoutes(router, h, "/datadog-webhook")
	}

	send := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/datadog-webhook", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set("DD-Signature", signature)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	payload := []byte(`{"title":"High CPU on web-1","body":"CPU > 90%","alert_type":"error","priority":"normal","alert_id":"12345","tags":["env:prod","service:storefront"],"date_happened":1767225600}`)

	BeforeEach(func() {
		setup(secret)
	})

	It("accepts a correctly signed alert and stores it", func() {
		w := send(payload, "sha256="+auth.Sign(payload, secret))

		Expect(w.Code).To(Equal(http.StatusOK))
		body := decodeResponse(w)
		Expect(body).To(HaveKeyWithValue("status", "success"))
		Expect(body).To(HaveKeyWithValue("message", "Webhook received and verified"))

		alerts := st.Alerts()
		Expect(alerts).To(HaveLen(1))
		Expect(alerts[0].Title).To(Equal("High CPU on web-1"))
		Expect(alerts[0].AlertID).To(Equal("12345"))
		Expect(alerts[0].Tags).To(ConsistOf("env:prod", "service:storefront"))
		Expect(alerts[0].DateHappened).NotTo(BeNil())
	})

	It("accepts a signature without the sha256= prefix", func() {
		w := send(payload, auth.Sign(payload, secret))
		Expect(w.Code).To(Equal(http.StatusOK))
	})

	It("rejects a wrong signature regardless of payload validity", func() {
		wrong := "sha256=" + strings.Repeat("ab", 32)
		for _, body := range [][]byte{payload, []byte(`{broken`)} {
			w := send(body, wrong)
			Expect(w.Code).To(Equal(http.StatusUnauthorized))
			Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Invalid signature"))
		}
		Expect(st.Alerts()).To(BeEmpty())
	})

	It("rejects a missing signature", func() {
		w := send(payload, "")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
		Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Missing signature"))
	})

	It("rejects a correctly signed body that is not JSON", func() {
		body := []byte(`title=oops`)
		w := send(body, "sha256="+auth.Sign(body, secret))
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Invalid JSON"))
	})

	It("accepts valid JSON with unexpected field types", func() {
		body := []byte(`{"title":"x","alert_id":{"nested":true}}`)
		w := send(body, "sha256="+auth.Sign(body, secret))
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(st.Alerts()).To(HaveLen(1))
	})

	It("returns 500 when no secret is configured", func() {
		setup("")
		w := send(payload, "sha256="+auth.Sign(payload, "anything"))
		Expect(w.Code).To(Equal(http.StatusInternalServerError))
		Expect(decodeResponse(w)).To(HaveKeyWithValue("error", "Webhook not configured"))
	})

	It("rejects non-POST methods", func() {
		req := httptest.NewRequest(http.MethodGet, "/datadog-webhook", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		Expect(w.Code).To(Equal(http.StatusMethodNotAllowed))
	})
})
