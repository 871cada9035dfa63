package header

import (
	"net/http"
	"net/http/httptest"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SetClientResponseHeaders", func() {
	var (
		app *fiber.App
		hh  *Handler
	)

	BeforeEach(func() {
		app = fiber.New()
		hh = NewHandler()
	})

	AfterEach(func() {
		app.Shutdown()
	})

	serve := func(upstream http.Header) *http.Response {
		app.Get("/test", func(c *fiber.Ctx) error {
			hh.SetClientResponseHeaders(c, &http.Response{Header: upstream})
			return c.SendStatus(fiber.StatusOK)
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		return resp
	}

	It("forwards standard upstream response headers to the consumer", func() {
		resp := serve(http.Header{
			"Content-Type":   {"text/event-stream"},
			"X-Request-Id":   {"abc-123"},
			"X-Custom-Value": {"hello"},
		})

		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("abc-123"))
		Expect(resp.Header.Get("X-Custom-Value")).To(Equal("hello"))
	})

	It("strips the Connection header", func() {
		resp := serve(http.Header{"Connection": {"keep-alive"}})
		Expect(resp.Header.Get("Connection")).To(BeEmpty())
	})

	It("strips the Transfer-Encoding header", func() {
		resp := serve(http.Header{"Transfer-Encoding": {"chunked"}})
		Expect(resp.Header.Get("Transfer-Encoding")).To(BeEmpty())
	})

	It("strips Content-Encoding since the relayed body is decompressed", func() {
		resp := serve(http.Header{
			"Content-Encoding": {"gzip"},
			"X-Request-Id":     {"abc-123"},
		})

		Expect(resp.Header.Get("Content-Encoding")).To(BeEmpty())
		Expect(resp.Header.Get("X-Request-Id")).To(Equal("abc-123"))
	})

	It("does not forward the upstream Content-Length", func() {
		resp := serve(http.Header{"Content-Length": {"1234"}})
		Expect(resp.Header.Get("Content-Length")).NotTo(Equal("1234"))
	})

	It("joins multi-value response headers with commas", func() {
		resp := serve(http.Header{"X-Multi": {"value1", "value2"}})
		Expect(resp.Header.Get("X-Multi")).To(Equal("value1, value2"))
	})
})

var _ = Describe("SetEventStreamHeaders", func() {
	It("marks the response as an unbuffered event stream", func() {
		app := fiber.New()
		defer app.Shutdown()

		hh := NewHandler()
		app.Get("/events", func(c *fiber.Ctx) error {
			hh.SetEventStreamHeaders(c)
			hh.SetSessionID(c, "session-1")
			return c.SendString("data: {}\n\n")
		})

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/events", nil))
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
		Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		Expect(resp.Header.Get("X-Accel-Buffering")).To(Equal("no"))
		Expect(resp.Header.Get(SessionIDHeader)).To(Equal("session-1"))
	})
})
