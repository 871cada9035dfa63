package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/genrelay/pkg/cliui"
)

var _ = Describe("Step", func() {
	It("returns the result of fn and ends with a checkmark line", func() {
		var buf bytes.Buffer

		err := cliui.Step(&buf, "Fetching preset", func() error { return nil })

		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("Fetching preset"))
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
		Expect(buf.String()).To(HaveSuffix("\n"))
	})

	It("propagates errors with a failure mark", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")

		err := cliui.Step(&buf, "Fetching preset", func() error { return boom })

		Expect(err).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below one second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses seconds with one decimal above one second", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})
