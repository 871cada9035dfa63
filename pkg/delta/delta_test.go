package delta_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/genrelay/pkg/delta"
	"github.com/papercomputeco/genrelay/pkg/sse"
)

func dataFrame(payload string) sse.Frame {
	return sse.Frame{Data: payload, HasData: true}
}

var _ = Describe("Interpret", func() {
	It("ignores frames without a data line", func() {
		d := delta.Interpret(sse.Frame{Type: "ping"})
		Expect(d.Kind).To(Equal(delta.KindIgnored))
	})

	It("recognizes the terminal sentinel", func() {
		Expect(delta.Interpret(dataFrame("[DONE]")).Kind).To(Equal(delta.KindTerminal))
		Expect(delta.Interpret(dataFrame(" [DONE] ")).Kind).To(Equal(delta.KindTerminal))
	})

	It("marks unparsable payloads as malformed", func() {
		d := delta.Interpret(dataFrame(`{"choices":[{"delta":`))
		Expect(d.Kind).To(Equal(delta.KindMalformed))
		Expect(d.Err).To(HaveOccurred())
	})

	It("extracts progress from reasoning content", func() {
		d := delta.Interpret(dataFrame(`{"choices":[{"delta":{"reasoning_content":"**Video Generation Progress**: 42% (running)"}}]}`))
		Expect(d.Kind).To(Equal(delta.KindData))
		Expect(d.HasProgress).To(BeTrue())
		Expect(d.Percent).To(Equal(42))
		Expect(d.HasContent).To(BeFalse())
	})

	It("extracts content verbatim", func() {
		d := delta.Interpret(dataFrame(`{"choices":[{"delta":{"content":"  <video src='x'>\n"}}]}`))
		Expect(d.Kind).To(Equal(delta.KindData))
		Expect(d.HasContent).To(BeTrue())
		Expect(d.Content).To(Equal("  <video src='x'>\n"))
		Expect(d.HasProgress).To(BeFalse())
	})

	It("carries both signals from one chunk", func() {
		d := delta.Interpret(dataFrame(`{"choices":[{"delta":{"reasoning_content":"Progress: 100%","content":"done"}}]}`))
		Expect(d.Percent).To(Equal(100))
		Expect(d.Content).To(Equal("done"))
	})

	It("accepts chunks with no choices or empty deltas", func() {
		for _, payload := range []string{
			`{"choices":[]}`,
			`{"choices":[{"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"delta":{"content":""}}]}`,
			`{"id":"x"}`,
		} {
			d := delta.Interpret(dataFrame(payload))
			Expect(d.Kind).To(Equal(delta.KindData), payload)
			Expect(d.HasProgress).To(BeFalse(), payload)
			Expect(d.HasContent).To(BeFalse(), payload)
		}
	})

	It("does not read progress from content", func() {
		d := delta.Interpret(dataFrame(`{"choices":[{"delta":{"content":"Progress: 50%"}}]}`))
		Expect(d.HasProgress).To(BeFalse())
	})
})

var _ = Describe("ParseProgress", func() {
	DescribeTable("percent extraction",
		func(text string, want int, ok bool) {
			got, found := delta.ParseProgress(text)
			Expect(found).To(Equal(ok))
			if ok {
				Expect(got).To(Equal(want))
			}
		},
		Entry("markdown heading", "**Video Generation Progress**: 9% (running)", 9, true),
		Entry("lower case", "progress 73 %", 73, true),
		Entry("decimal truncates", "Progress: 42.9%", 42, true),
		Entry("clamped", "Progress: 250%", 100, true),
		Entry("last match wins", "Progress: 10%\nProgress: 20%", 20, true),
		Entry("no keyword", "42% done", 42, true),
		Entry("elided label", "...: 42% (running)", 42, true),
		Entry("bare percent", "42%", 42, true),
		Entry("descriptive prefix", "Generating video: 55% (running)", 55, true),
		Entry("no percent sign", "Progress: 42", 0, false),
		Entry("label on another line", "Progress\n42%", 42, true),
		Entry("no digits", "Progress: almost done", 0, false),
		Entry("empty", "", 0, false),
	)
})
