package client

import (
	"fmt"
	"math"

	"github.com/compoundpi/compoundpi/protocol"
)

// Status is one peer's parsed STATUS reply, keyed by address by the
// coordinator.
type Status = protocol.StatusInfo

// StatusReport is the result of a fleet-wide status() call: the parsed
// record per responsive peer, plus any discrepancies the coordinator
// noticed across the fleet.
type StatusReport struct {
	Statuses      map[string]Status
	Discrepancies []string
}

// aggregateStatus compares every peer's status against the fleet and
// records discrepancies in resolution, framerate, mode fields, and
// timestamp skew beyond timeDelta. It never returns an error: discrepancies
// are advisory, not fatal (§4.3 "does not raise on them").
func aggregateStatus(statuses map[string]Status, timeDelta float64) []string {
	if len(statuses) < 2 {
		return nil
	}

	var discrepancies []string

	minTS := math.Inf(1)
	for _, s := range statuses {
		if s.Timestamp < minTS {
			minTS = s.Timestamp
		}
	}

	var first *Status
	var firstAddr string
	for addr, s := range statuses {
		s := s
		if first == nil {
			first = &s
			firstAddr = addr
			continue
		}

		if s.Width != first.Width || s.Height != first.Height {
			discrepancies = append(discrepancies, fieldMismatch("resolution", firstAddr, addr))
		}
		if s.Framerate.Cmp(first.Framerate) != 0 {
			discrepancies = append(discrepancies, fieldMismatch("framerate", firstAddr, addr))
		}
		if s.AWBMode != first.AWBMode {
			discrepancies = append(discrepancies, fieldMismatch("awb mode", firstAddr, addr))
		}
		if s.ExposureMode != first.ExposureMode {
			discrepancies = append(discrepancies, fieldMismatch("exposure mode", firstAddr, addr))
		}
		if s.MeteringMode != first.MeteringMode {
			discrepancies = append(discrepancies, fieldMismatch("metering mode", firstAddr, addr))
		}
	}

	for addr, s := range statuses {
		if s.Timestamp-minTS > timeDelta {
			discrepancies = append(discrepancies, timestampSkew(addr, s.Timestamp-minTS, timeDelta))
		}
	}

	return discrepancies
}

func fieldMismatch(field, a, b string) string {
	return field + " differs between " + a + " and " + b
}

func timestampSkew(addr string, skew, limit float64) string {
	return fmt.Sprintf("%s timestamp deviates by %.3fs, exceeding time_delta of %.3fs", addr, skew, limit)
}
