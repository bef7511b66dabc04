package server

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// These specs are registered into the single process-wide Ginkgo suite run
// by TestServer in suite_test.go. They live in package server (not
// server_test) since retrySet is internal and there is no exported seam to
// drive it through Handler alone.
var _ = Describe("retrySet", func() {
	addr := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}

	It("surfaces a due entry after its delay and clears it once acked", func() {
		rs := newRetrySet(5*time.Millisecond, 10*time.Millisecond, 50*time.Millisecond)
		rs.add(addr, 1, []byte("payload"))

		time.Sleep(15 * time.Millisecond)
		Expect(rs.due(time.Now())).To(HaveLen(1))

		rs.ack(addr.IP.String(), 1)

		time.Sleep(15 * time.Millisecond)
		Expect(rs.due(time.Now())).To(BeEmpty())
	})

	It("drops an entry once its total timeout elapses", func() {
		rs := newRetrySet(2*time.Millisecond, 4*time.Millisecond, 10*time.Millisecond)
		rs.add(addr, 1, []byte("payload"))

		time.Sleep(20 * time.Millisecond)
		Expect(rs.due(time.Now())).To(BeEmpty())
	})
})
