package protocol

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// StatusInfo is the decoded data section of a STATUS OK response. Field
// order here is cosmetic; EncodeStatus fixes the wire order per the
// protocol's §6 line order, which DecodeStatus enforces on the way in.
type StatusInfo struct {
	Width, Height                    int
	Framerate                        *big.Rat
	AWBMode                          string
	AWBRed, AWBBlue                  *big.Rat
	ExposureMode                     string
	ExposureSpeed                    float64
	ExposureComp                     int
	ISO                              int
	MeteringMode                     string
	Brightness, Contrast, Saturation int
	FlipH, FlipV                     bool
	Timestamp                        float64
	Images                           int
}

// EncodeStatus renders a StatusInfo as the fixed-order data lines a STATUS
// OK response must contain.
func EncodeStatus(s StatusInfo) []string {
	return []string{
		fmt.Sprintf("RESOLUTION %d %d", s.Width, s.Height),
		fmt.Sprintf("FRAMERATE %s", FormatFraction(s.Framerate)),
		fmt.Sprintf("AWB %s %s %s", s.AWBMode, FormatFraction(s.AWBRed), FormatFraction(s.AWBBlue)),
		fmt.Sprintf("EXPOSURE %s %g %d", s.ExposureMode, s.ExposureSpeed, s.ExposureComp),
		fmt.Sprintf("ISO %d", s.ISO),
		fmt.Sprintf("METERING %s", s.MeteringMode),
		fmt.Sprintf("LEVELS %d %d %d", s.Brightness, s.Contrast, s.Saturation),
		fmt.Sprintf("FLIP %s %s", FormatBool(s.FlipH), FormatBool(s.FlipV)),
		fmt.Sprintf("TIMESTAMP %s", FormatTimestamp(s.Timestamp)),
		fmt.Sprintf("IMAGES %d", s.Images),
	}
}

// DecodeStatus parses a STATUS OK response's data lines back into a
// StatusInfo, enforcing that all ten lines are present in the exact order
// EncodeStatus produces them.
func DecodeStatus(lines []string) (*StatusInfo, error) {
	if len(lines) != 10 {
		return nil, fmt.Errorf("status must have 10 data lines, got %d", len(lines))
	}

	var s StatusInfo

	fields := func(i int, prefix string) ([]string, error) {
		toks := strings.Fields(lines[i])
		if len(toks) == 0 || toks[0] != prefix {
			return nil, fmt.Errorf("status line %d: expected %q, got %q", i, prefix, lines[i])
		}
		return toks[1:], nil
	}

	res, err := fields(0, "RESOLUTION")
	if err != nil || len(res) != 2 {
		return nil, fmt.Errorf("status RESOLUTION line malformed")
	}
	s.Width, err = strconv.Atoi(res[0])
	if err != nil {
		return nil, err
	}
	s.Height, err = strconv.Atoi(res[1])
	if err != nil {
		return nil, err
	}

	fr, err := fields(1, "FRAMERATE")
	if err != nil || len(fr) != 1 {
		return nil, fmt.Errorf("status FRAMERATE line malformed")
	}
	s.Framerate, err = ParseFraction(fr[0])
	if err != nil {
		return nil, err
	}

	awb, err := fields(2, "AWB")
	if err != nil || len(awb) != 3 {
		return nil, fmt.Errorf("status AWB line malformed")
	}
	s.AWBMode = awb[0]
	s.AWBRed, err = ParseFraction(awb[1])
	if err != nil {
		return nil, err
	}
	s.AWBBlue, err = ParseFraction(awb[2])
	if err != nil {
		return nil, err
	}

	exp, err := fields(3, "EXPOSURE")
	if err != nil || len(exp) != 3 {
		return nil, fmt.Errorf("status EXPOSURE line malformed")
	}
	s.ExposureMode = exp[0]
	s.ExposureSpeed, err = strconv.ParseFloat(exp[1], 64)
	if err != nil {
		return nil, err
	}
	s.ExposureComp, err = strconv.Atoi(exp[2])
	if err != nil {
		return nil, err
	}

	iso, err := fields(4, "ISO")
	if err != nil || len(iso) != 1 {
		return nil, fmt.Errorf("status ISO line malformed")
	}
	s.ISO, err = strconv.Atoi(iso[0])
	if err != nil {
		return nil, err
	}

	met, err := fields(5, "METERING")
	if err != nil || len(met) != 1 {
		return nil, fmt.Errorf("status METERING line malformed")
	}
	s.MeteringMode = met[0]

	lev, err := fields(6, "LEVELS")
	if err != nil || len(lev) != 3 {
		return nil, fmt.Errorf("status LEVELS line malformed")
	}
	s.Brightness, err = strconv.Atoi(lev[0])
	if err != nil {
		return nil, err
	}
	s.Contrast, err = strconv.Atoi(lev[1])
	if err != nil {
		return nil, err
	}
	s.Saturation, err = strconv.Atoi(lev[2])
	if err != nil {
		return nil, err
	}

	flip, err := fields(7, "FLIP")
	if err != nil || len(flip) != 2 {
		return nil, fmt.Errorf("status FLIP line malformed")
	}
	s.FlipH, err = ParseBool(flip[0])
	if err != nil {
		return nil, err
	}
	s.FlipV, err = ParseBool(flip[1])
	if err != nil {
		return nil, err
	}

	ts, err := fields(8, "TIMESTAMP")
	if err != nil || len(ts) != 1 {
		return nil, fmt.Errorf("status TIMESTAMP line malformed")
	}
	s.Timestamp, err = ParseTimestamp(ts[0])
	if err != nil {
		return nil, err
	}

	imgs, err := fields(9, "IMAGES")
	if err != nil || len(imgs) != 1 {
		return nil, fmt.Errorf("status IMAGES line malformed")
	}
	s.Images, err = strconv.Atoi(imgs[0])
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// ListEntry is one line of a LIST OK response's data section.
type ListEntry struct {
	Index     int
	Timestamp float64
	Size      int
}

// EncodeList renders the ordered image list as IMAGE data lines.
func EncodeList(entries []ListEntry) []string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("IMAGE %d %s %d", e.Index, FormatTimestamp(e.Timestamp), e.Size)
	}

	return lines
}

// DecodeList parses a LIST OK response's data lines back into ListEntry
// values.
func DecodeList(lines []string) ([]ListEntry, error) {
	entries := make([]ListEntry, 0, len(lines))

	for _, line := range lines {
		toks := strings.Fields(line)
		if len(toks) != 4 || toks[0] != "IMAGE" {
			return nil, fmt.Errorf("malformed LIST line %q", line)
		}

		index, err := strconv.Atoi(toks[1])
		if err != nil {
			return nil, fmt.Errorf("malformed LIST index in %q: %w", line, err)
		}

		ts, err := ParseTimestamp(toks[2])
		if err != nil {
			return nil, fmt.Errorf("malformed LIST timestamp in %q: %w", line, err)
		}

		size, err := strconv.Atoi(toks[3])
		if err != nil {
			return nil, fmt.Errorf("malformed LIST size in %q: %w", line, err)
		}

		entries = append(entries, ListEntry{Index: index, Timestamp: ts, Size: size})
	}

	return entries, nil
}

// HelloData is the data section of a HELLO OK response.
func HelloData(version string) []string {
	return []string{fmt.Sprintf("VERSION %s", version)}
}

// DecodeHello parses a HELLO OK response's data lines, returning the
// server's advertised protocol version.
func DecodeHello(lines []string) (string, error) {
	if len(lines) != 1 {
		return "", fmt.Errorf("HELLO response must have exactly one data line")
	}

	toks := strings.Fields(lines[0])
	if len(toks) != 2 || toks[0] != "VERSION" {
		return "", fmt.Errorf("malformed HELLO VERSION line %q", lines[0])
	}

	return toks[1], nil
}
