package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// chunkedReader returns one predefined chunk per Read call.
type chunkedReader struct {
	chunks []string
	err    error
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if c.chunks[0] == "" {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, io.ErrClosedPipe
}

var _ = Describe("Reader", func() {
	var dst *bytes.Buffer

	BeforeEach(func() {
		dst = &bytes.Buffer{}
	})

	Describe("Next", func() {
		It("parses data, event and id fields", func() {
			r := NewReader(strings.NewReader("event: delta\nid: 7\ndata: hello\n\n"))

			f, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Type).To(Equal("delta"))
			Expect(f.ID).To(Equal("7"))
			Expect(f.Data).To(Equal("hello"))
			Expect(f.HasData).To(BeTrue())

			f, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f).To(BeNil())
		})

		It("joins multiple data lines with newline", func() {
			r := NewReader(strings.NewReader("data: one\ndata: two\n\n"))

			f, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Data).To(Equal("one\ntwo"))
		})

		It("parses an OpenAI-style stream up to the sentinel", func() {
			input := "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
				"data: [DONE]\n\n"
			r := NewReader(strings.NewReader(input))

			f, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Data).To(Equal("{\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}"))

			f, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Data).To(Equal("[DONE]"))

			f, err = r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f).To(BeNil())
		})

		It("treats data fields without a value as empty", func() {
			for _, input := range []string{"data:\n\n", "data: \n\n", "data\n\n"} {
				f, err := NewReader(strings.NewReader(input)).Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f.HasData).To(BeTrue(), input)
				Expect(f.Data).To(BeEmpty(), input)
			}
		})

		It("ignores comments and unknown fields", func() {
			r := NewReader(strings.NewReader(": ping\nretry: 3000\nfoo: bar\ndata: hello\n\n"))

			f, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Data).To(Equal("hello"))
		})

		It("returns nil on empty or blank input", func() {
			for _, input := range []string{"", "\n\n\n"} {
				f, err := NewReader(strings.NewReader(input)).Next()
				Expect(err).NotTo(HaveOccurred())
				Expect(f).To(BeNil())
			}
		})

		It("yields the unterminated tail at end of input", func() {
			r := NewReader(strings.NewReader("data: unterminated"))

			f, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Data).To(Equal("unterminated"))
		})

		It("reads one byte at a time", func() {
			r := NewReader(iotest.OneByteReader(strings.NewReader("data: a\n\ndata: b\n\n")))

			var data []string
			for f, err := range r.Frames() {
				Expect(err).NotTo(HaveOccurred())
				data = append(data, f.Data)
			}
			Expect(data).To(Equal([]string{"a", "b"}))
		})

		It("returns frames completed before a read error, then the error", func() {
			boom := errors.New("connection reset")
			r := NewReader(&chunkedReader{
				chunks: []string{"data: first\n\ndata: partial"},
				err:    boom,
			})

			f, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Data).To(Equal("first"))

			_, err = r.Next()
			Expect(err).To(MatchError(boom))

			_, err = r.Next()
			Expect(err).To(MatchError(boom))
		})

		It("reports oversized frames", func() {
			r := NewReader(strings.NewReader(strings.Repeat("z", 64)), WithMaxFrameSize(8))

			_, err := r.Next()
			Expect(err).To(MatchError(ErrFrameTooLarge))
		})
	})

	Describe("Frames", func() {
		It("stops when the consumer breaks", func() {
			src := &chunkedReader{chunks: []string{"data: 1\n\n", "data: 2\n\n", "data: 3\n\n"}}
			r := NewReader(src)

			var seen []string
			for f, err := range r.Frames() {
				Expect(err).NotTo(HaveOccurred())
				seen = append(seen, f.Data)
				if f.Data == "2" {
					break
				}
			}
			Expect(seen).To(Equal([]string{"1", "2"}))
			Expect(src.chunks).To(HaveLen(1))
		})

		It("yields the error as the final element", func() {
			r := NewReader(&chunkedReader{chunks: []string{"data: x\n\n"}, err: io.ErrUnexpectedEOF})

			var errs []error
			count := 0
			for _, err := range r.Frames() {
				if err != nil {
					errs = append(errs, err)
					continue
				}
				count++
			}
			Expect(count).To(Equal(1))
			Expect(errs).To(ConsistOf(MatchError(io.ErrUnexpectedEOF)))
		})
	})

	Describe("NewTeeReader", func() {
		It("forwards all bytes verbatim, including comments and delimiters", func() {
			input := ": comment\ndata: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n\ndata: [DONE]\n\n"
			r := NewTeeReader(strings.NewReader(input), dst)

			for _, err := range r.Frames() {
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(dst.String()).To(Equal(input))
		})

		It("forwards CR bytes even though framing drops them", func() {
			input := "data: a\r\n\r\n"
			r := NewTeeReader(strings.NewReader(input), dst)

			f, err := r.Next()
			Expect(err).NotTo(HaveOccurred())
			Expect(f.Data).To(Equal("a"))
			Expect(dst.String()).To(Equal(input))
		})

		It("wraps destination failures", func() {
			r := NewTeeReader(strings.NewReader("data: a\n\n"), failingWriter{})

			_, err := r.Next()
			Expect(err).To(MatchError(ErrDestinationWrite))
			Expect(errors.Is(err, io.ErrClosedPipe)).To(BeTrue())
		})
	})
})
