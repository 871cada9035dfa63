package relay

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/genrelay/pkg/auth"
	"github.com/papercomputeco/genrelay/pkg/event"
	"github.com/papercomputeco/genrelay/pkg/logger"
	"github.com/papercomputeco/genrelay/pkg/upstream"
	"github.com/papercomputeco/genrelay/relay/header"
)

// streamUpstream serves frames as an event stream, flushing after each one.
func streamUpstream(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Upstream-Trace", "trace-1")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, f := range frames {
			_, _ = io.WriteString(w, f)
			flusher.Flush()
		}
	}
}

func newGenerateRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

var _ = Describe("Server", func() {
	var (
		upstreamHandler http.HandlerFunc
		upstreamServer  *httptest.Server
		publisher       *recordingPublisher
		cfg             Config
		s               *Server
	)

	BeforeEach(func() {
		publisher = &recordingPublisher{}
		cfg = Config{
			ListenAddr:  ":0",
			Publisher:   publisher,
			MaxDuration: 5 * time.Second,
			IdleTimeout: 2 * time.Second,
			Version:     "test",
		}
		upstreamHandler = streamUpstream(doneFrame)
		upstreamServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			upstreamHandler(w, r)
		}))
	})

	JustBeforeEach(func() {
		client, err := upstream.NewClient(upstream.Config{
			BaseURL: upstreamServer.URL,
			Model:   "video-gen-1",
			Logger:  logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		s, err = New(cfg, client, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(s.Close()).To(Succeed())
		upstreamServer.Close()
	})

	Describe("translate mode", func() {
		BeforeEach(func() {
			upstreamHandler = streamUpstream(
				reasoningFrame(progressLine("9")),
				reasoningFrame(progressLine("42")),
				contentFrame("```html\n<video src='https://cdn.example/a.mp4'>\n```"),
				doneFrame,
			)
		})

		It("streams normalized events to the consumer", func() {
			resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get(header.SessionIDHeader)).NotTo(BeEmpty())

			Expect(decodeEvents(resp.Body)).To(Equal([]event.Event{
				event.Progress(9),
				event.Progress(42),
				event.Result("https://cdn.example/a.mp4"),
			}))
		})

		It("writes each event as a single data frame", func() {
			resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal(
				`data: {"type":"progress","percent":9}` + "\n\n" +
					`data: {"type":"progress","percent":42}` + "\n\n" +
					`data: {"type":"result","url":"https://cdn.example/a.mp4"}` + "\n\n",
			))
		})

		It("publishes a summary of the session", func() {
			resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing","model":"video-gen-2"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			_, _ = io.ReadAll(resp.Body)
			resp.Body.Close()

			Expect(s.Close()).To(Succeed())

			published := publisher.published()
			Expect(published).To(HaveLen(1))
			ev := published[0]
			Expect(ev.Session.ID).To(Equal(resp.Header.Get(header.SessionIDHeader)))
			Expect(ev.Session.Mode).To(Equal("translate"))
			Expect(ev.Session.Model).To(Equal("video-gen-2"))
			Expect(ev.Session.Outcome).To(Equal(OutcomeResult))
			Expect(ev.Session.URL).To(Equal("https://cdn.example/a.mp4"))
			Expect(ev.Stream.ProgressEvents).To(Equal(2))
			Expect(ev.Stream.LastPercent).To(Equal(42))
			Expect(ev.Source.Version).To(Equal("test"))
			Expect(ev.Source.Upstream).To(Equal(upstreamServer.URL + upstream.DefaultPath))
		})

		Context("when the upstream rejects the request", func() {
			BeforeEach(func() {
				upstreamHandler = func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = io.WriteString(w, `{"error":{"message":"model overloaded"}}`)
				}
			})

			It("emits only an error event with the upstream message", func() {
				resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(decodeEvents(resp.Body)).To(Equal([]event.Event{
					event.Error("upstream returned 500: model overloaded"),
				}))
			})
		})

		Context("when the upstream connection is cut mid-frame", func() {
			BeforeEach(func() {
				upstreamHandler = func(w http.ResponseWriter, _ *http.Request) {
					conn, buf, err := w.(http.Hijacker).Hijack()
					if err != nil {
						return
					}
					defer conn.Close()

					_, _ = buf.WriteString("HTTP/1.1 200 OK\r\n" +
						"Content-Type: text/event-stream\r\n" +
						"Content-Length: 4096\r\n\r\n")
					_, _ = buf.WriteString(reasoningFrame(progressLine("9")))
					_, _ = buf.WriteString(`data: {"choices":[{"delta":{"content":"https://cdn`)
					_ = buf.Flush()
				}
			})

			It("emits progress followed by a transport error", func() {
				resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				events := decodeEvents(resp.Body)
				Expect(events).To(HaveLen(2))
				Expect(events[0]).To(Equal(event.Progress(9)))
				Expect(events[1].Type).To(Equal(event.TypeError))
				Expect(events[1].Message).To(HavePrefix("upstream transport failure: "))
			})
		})

		Context("when the upstream stalls", func() {
			BeforeEach(func() {
				cfg.IdleTimeout = 50 * time.Millisecond
				upstreamHandler = func(w http.ResponseWriter, r *http.Request) {
					streamUpstream(reasoningFrame(progressLine("9")))(w, r)
					select {
					case <-r.Context().Done():
					case <-time.After(5 * time.Second):
					}
				}
			})

			It("ends the session with an idle timeout error", func() {
				resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(decodeEvents(resp.Body)).To(Equal([]event.Event{
					event.Progress(9),
					event.Error("upstream transport failure: upstream idle timeout exceeded"),
				}))
			})
		})

		Context("when the consumer disconnects while the upstream only sends keep-alives", func() {
			var released chan struct{}

			BeforeEach(func() {
				released = make(chan struct{})
				cfg.KeepAlive = 50 * time.Millisecond
				cfg.MaxDuration = 30 * time.Second

				upstreamHandler = func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "text/event-stream")
					w.WriteHeader(http.StatusOK)
					flusher := w.(http.Flusher)
					_, _ = io.WriteString(w, reasoningFrame(progressLine("9")))
					flusher.Flush()

					ticker := time.NewTicker(50 * time.Millisecond)
					defer ticker.Stop()
					for {
						select {
						case <-r.Context().Done():
							close(released)
							return
						case <-ticker.C:
							_, _ = io.WriteString(w, ": keep-alive\n\n")
							flusher.Flush()
						}
					}
				}
			})

			It("releases the upstream request and records an abandoned session", func() {
				srv := httptest.NewUnstartedServer(nil)
				listener := srv.Listener
				go func() {
					defer GinkgoRecover()
					_ = s.RunWithListener(listener)
				}()

				client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
				url := "http://" + listener.Addr().String() + "/v1/generate"
				var resp *http.Response
				Eventually(func() error {
					var err error
					resp, err = client.Post(url, "application/json", strings.NewReader(`{"prompt":"x"}`))
					return err
				}).Should(Succeed())

				reader := bufio.NewReader(resp.Body)
				var line string
				for !strings.HasPrefix(line, "data: ") {
					var err error
					line, err = reader.ReadString('\n')
					Expect(err).NotTo(HaveOccurred())
				}
				Expect(line).To(ContainSubstring(`"percent":9`))

				Expect(resp.Body.Close()).To(Succeed())

				Eventually(released).WithTimeout(3 * time.Second).Should(BeClosed())
				Eventually(publisher.published).WithTimeout(3 * time.Second).Should(HaveLen(1))
				Expect(publisher.published()[0].Session.Outcome).To(Equal(OutcomeAbandoned))
			})
		})
	})

	Describe("buffered mode", func() {
		BeforeEach(func() {
			upstreamHandler = streamUpstream(
				reasoningFrame(progressLine("9")),
				reasoningFrame(progressLine("42")),
				contentFrame("see https://cdn.example/b.mp4 for output"),
				doneFrame,
			)
		})

		It("answers with the terminal event and the progress history", func() {
			resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing","mode":"buffered"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body bufferedResponse
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body).To(Equal(bufferedResponse{
				Type:     event.TypeResult,
				URL:      "https://cdn.example/b.mp4",
				Progress: []int{9, 42},
			}))
		})

		It("lets the query string override the body mode", func() {
			req := httptest.NewRequest(http.MethodPost, "/v1/generate?mode=buffered",
				strings.NewReader(`{"prompt":"a cat surfing","mode":"translate"}`))
			req.Header.Set("Content-Type", "application/json")

			resp, err := s.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("application/json"))

			var body bufferedResponse
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body).To(Equal(bufferedResponse{
				Type:     event.TypeResult,
				URL:      "https://cdn.example/b.mp4",
				Progress: []int{9, 42},
			}))
		})

		Context("when the stream carries no result", func() {
			BeforeEach(func() {
				upstreamHandler = streamUpstream(reasoningFrame(progressLine("9")), doneFrame)
			})

			It("answers 502 with the error message", func() {
				resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing","mode":"buffered"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

				var body bufferedResponse
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.Type).To(Equal(event.TypeError))
				Expect(body.Message).To(Equal("no resolvable result"))
				Expect(body.Progress).To(Equal([]int{9}))
			})
		})
	})

	Describe("passthrough mode", func() {
		var stream string

		BeforeEach(func() {
			cfg.Mode = ModePassthrough
			stream = joinFrames(
				reasoningFrame(progressLine("9")),
				contentFrame("https://cdn.example/c.mp4"),
				doneFrame,
			)
			upstreamHandler = streamUpstream(stream)
		})

		It("forwards upstream status, headers and bytes verbatim", func() {
			resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(resp.Header.Get("X-Upstream-Trace")).To(Equal("trace-1"))

			raw, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(Equal(stream))
		})

		It("still summarizes the session", func() {
			resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			_, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(s.Close()).To(Succeed())

			published := publisher.published()
			Expect(published).To(HaveLen(1))
			Expect(published[0].Session.Mode).To(Equal("passthrough"))
			Expect(published[0].Session.URL).To(Equal("https://cdn.example/c.mp4"))
		})

		Context("when the upstream rejects the request", func() {
			BeforeEach(func() {
				upstreamHandler = func(w http.ResponseWriter, _ *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("Retry-After", "3")
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
				}
			})

			It("forwards the upstream status and body", func() {
				resp, err := s.server.Test(newGenerateRequest(`{"prompt":"a cat surfing"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
				Expect(resp.Header.Get("Retry-After")).To(Equal("3"))

				raw, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(raw)).To(Equal(`{"error":{"message":"slow down"}}`))
			})
		})
	})

	Describe("request validation", func() {
		DescribeTable("rejects bad requests with 400",
			func(body, wantErr string) {
				resp, err := s.server.Test(newGenerateRequest(body), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var got errorResponse
				Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
				Expect(got.Error).To(ContainSubstring(wantErr))
			},
			Entry("invalid JSON", `{"prompt":`, "invalid request body"),
			Entry("missing prompt", `{"prompt":"  "}`, "prompt is required"),
			Entry("unknown mode", `{"prompt":"x","mode":"carrier-pigeon"}`, "unknown relay mode"),
			Entry("bad attachment kind", `{"prompt":"x","attachments":[{"kind":"audio","mime_type":"audio/mpeg","data":"AAAA"}]}`, "unsupported attachment kind"),
			Entry("bad base64", `{"prompt":"x","attachments":[{"kind":"image","mime_type":"image/png","data":"%%%"}]}`, "not base64"),
		)
	})

	Describe("auth", func() {
		BeforeEach(func() {
			cfg.Authorizer = auth.NewSharedSecret("s3cret")
			upstreamHandler = streamUpstream(contentFrame("https://cdn.example/d.mp4"), doneFrame)
		})

		It("rejects requests without the relay key", func() {
			resp, err := s.server.Test(newGenerateRequest(`{"prompt":"x"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			raw, _ := io.ReadAll(resp.Body)
			Expect(string(raw)).To(MatchJSON(`{"error":"unauthorized"}`))
		})

		It("accepts requests carrying the relay key", func() {
			req := newGenerateRequest(`{"prompt":"x"}`)
			req.Header.Set(auth.DefaultHeader, "s3cret")

			resp, err := s.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decodeEvents(resp.Body)).To(Equal([]event.Event{event.Result("https://cdn.example/d.mp4")}))
		})

		It("leaves /ping open", func() {
			resp, err := s.server.Test(httptest.NewRequest(http.MethodGet, "/ping", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("Handler", func() {
		It("serves the relay through net/http", func() {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"status":"ok"}`))
		})
	})

	Describe("RunWithListener", func() {
		It("serves a real connection", func() {
			upstreamHandler = streamUpstream(
				reasoningFrame(progressLine("33")),
				contentFrame("https://cdn.example/e.mp4"),
				doneFrame,
			)

			srv := httptest.NewUnstartedServer(nil)
			listener := srv.Listener
			go func() {
				defer GinkgoRecover()
				_ = s.RunWithListener(listener)
			}()

			url := "http://" + listener.Addr().String() + "/v1/generate"
			var resp *http.Response
			Eventually(func() error {
				var err error
				resp, err = http.Post(url, "application/json", strings.NewReader(`{"prompt":"x"}`))
				return err
			}).Should(Succeed())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(Equal("text/event-stream"))
			Expect(decodeEvents(resp.Body)).To(Equal([]event.Event{
				event.Progress(33),
				event.Result("https://cdn.example/e.mp4"),
			}))
		})
	})
})

var _ = Describe("New", func() {
	It("requires an opener", func() {
		_, err := New(Config{}, nil, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown default mode", func() {
		client, err := upstream.NewClient(upstream.Config{BaseURL: "http://localhost:1"})
		Expect(err).NotTo(HaveOccurred())

		_, err = New(Config{Mode: "sideways"}, client, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unknown relay mode")))
	})

	It("answers 400 when no model is configured anywhere", func() {
		client, err := upstream.NewClient(upstream.Config{BaseURL: "http://localhost:1"})
		Expect(err).NotTo(HaveOccurred())

		s, err := New(Config{}, client, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		resp, err := s.server.Test(newGenerateRequest(`{"prompt":"x"}`), -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})
})
