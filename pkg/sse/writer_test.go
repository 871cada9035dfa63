package sse

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type countingWriter struct {
	bytes.Buffer
	writes  int
	flushes int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes++
	return c.Buffer.Write(p)
}

func (c *countingWriter) Flush() {
	c.flushes++
}

var _ = Describe("Writer", func() {
	It("writes one data frame per call in a single write", func() {
		out := &countingWriter{}
		w := NewWriter(out)

		Expect(w.WriteData([]byte(`{"type":"progress","percent":9}`))).To(Succeed())
		Expect(out.String()).To(Equal("data: {\"type\":\"progress\",\"percent\":9}\n\n"))
		Expect(out.writes).To(Equal(1))
		Expect(out.flushes).To(Equal(1))
	})

	It("splits multi-line payloads into data lines that read back intact", func() {
		out := &bytes.Buffer{}
		Expect(NewWriter(out).WriteData([]byte("line one\nline two"))).To(Succeed())
		Expect(out.String()).To(Equal("data: line one\ndata: line two\n\n"))

		f, err := NewReader(strings.NewReader(out.String())).Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Data).To(Equal("line one\nline two"))
	})

	It("writes comment frames that readers skip", func() {
		out := &bytes.Buffer{}
		w := NewWriter(out)
		Expect(w.WriteComment("keep-alive")).To(Succeed())
		Expect(w.WriteData([]byte("x"))).To(Succeed())

		f, err := NewReader(strings.NewReader(out.String())).Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Data).To(Equal("x"))
	})

	It("returns write errors", func() {
		Expect(NewWriter(failingWriter{}).WriteData([]byte("x"))).To(HaveOccurred())
	})
})
