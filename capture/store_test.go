package capture_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/compoundpi/compoundpi/capture"
)

var _ = Describe("Store", func() {
	It("assigns positional indices and renumbers after Clear", func() {
		s := capture.NewStore()

		i0 := s.Append(capture.Image{Timestamp: 1, Data: []byte("a")})
		i1 := s.Append(capture.Image{Timestamp: 2, Data: []byte("bb")})
		Expect(i0).To(Equal(0))
		Expect(i1).To(Equal(1))
		Expect(s.Len()).To(Equal(2))

		s.Clear()
		Expect(s.Len()).To(Equal(0))

		i0again := s.Append(capture.Image{Timestamp: 3, Data: []byte("c")})
		Expect(i0again).To(Equal(0))
	})

	It("reports out-of-range indices as missing", func() {
		s := capture.NewStore()
		s.Append(capture.Image{Timestamp: 1, Data: []byte("a")})

		_, ok := s.Get(1)
		Expect(ok).To(BeFalse())

		img, ok := s.Get(0)
		Expect(ok).To(BeTrue())
		Expect(img.Size()).To(Equal(1))
	})
})

var _ = Describe("WaitUntil", func() {
	It("rejects a timestamp that is not in the future", func() {
		err := capture.WaitUntil(float64(time.Now().Add(-time.Second).Unix()))
		Expect(err).To(HaveOccurred())
	})

	It("sleeps until a near-future timestamp", func() {
		target := time.Now().Add(30 * time.Millisecond)
		err := capture.WaitUntil(float64(target.UnixNano()) / 1e9)
		Expect(err).To(Succeed())
		Expect(time.Now()).To(BeTemporally(">=", target, 10*time.Millisecond))
	})
})
