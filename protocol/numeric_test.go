package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/compoundpi/compoundpi/protocol"
)

var _ = Describe("Numeric formats", func() {
	Describe("ParseFraction / FormatFraction", func() {
		It("round trips a whole number", func() {
			r, err := protocol.ParseFraction("30")
			Expect(err).To(Succeed())
			Expect(protocol.FormatFraction(r)).To(Equal("30"))
		})

		It("round trips a fraction", func() {
			r, err := protocol.ParseFraction("15/2")
			Expect(err).To(Succeed())
			Expect(protocol.FormatFraction(r)).To(Equal("15/2"))
		})

		It("rejects a zero denominator", func() {
			_, err := protocol.ParseFraction("1/0")
			Expect(err).To(HaveOccurred())
		})

		It("limits absurd denominators", func() {
			r, err := protocol.ParseFraction("1/100000000")
			Expect(err).To(Succeed())
			Expect(r.Denom().Int64()).To(BeNumerically("<=", 65536))
		})
	})

	Describe("ParseTimestamp / FormatTimestamp", func() {
		It("round trips a fractional timestamp", func() {
			ts, err := protocol.ParseTimestamp("1400803122.359911")
			Expect(err).To(Succeed())
			Expect(ts).To(BeNumerically("~", 1400803122.359911, 1e-6))
		})
	})

	Describe("ParseBool / FormatBool", func() {
		It("treats 0 as false and anything else as true", func() {
			v, err := protocol.ParseBool("0")
			Expect(err).To(Succeed())
			Expect(v).To(BeFalse())

			v, err = protocol.ParseBool("1")
			Expect(err).To(Succeed())
			Expect(v).To(BeTrue())
		})

		It("formats booleans as 0/1", func() {
			Expect(protocol.FormatBool(true)).To(Equal("1"))
			Expect(protocol.FormatBool(false)).To(Equal("0"))
		})
	})
})
