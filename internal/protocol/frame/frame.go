package frame

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/danmuck/mupipe/internal/protocol"
)

const (
	// CookiePre opens a frame header.
	CookiePre byte = 0xFE
	// CookiePost closes a frame header.
	CookiePost byte = 0xFF

	// maxLengthDigits bounds significant digits; leading zeros are free up
	// to maxHeaderDigits in total.
	maxLengthDigits = 15
	maxHeaderDigits = 64
)

var (
	// ErrNeedMore reports that buf holds a valid prefix of a frame but not all
	// of it. It is not a protocol failure.
	ErrNeedMore = errors.New("frame: need more data")

	ErrBadHeader       = fmt.Errorf("%w: bad frame header", protocol.ErrProtocol)
	ErrPayloadTooLarge = fmt.Errorf("%w: frame payload too large", protocol.ErrProtocol)
)

// Frame is one length-prefixed payload.
type Frame struct {
	Length  int
	Payload []byte
}

// Limits constrains frame decode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 64 * 1024 * 1024}
}

// Parse extracts one frame from the start of buf and returns the number of
// bytes it occupies, including one trailing line terminator when present.
// Line terminators left over from a previous frame are skipped; any other
// leading byte that is not CookiePre is ErrBadHeader.
//
// On ErrNeedMore the returned Frame carries the declared Length once the
// header itself is complete, and consumed is zero.
func Parse(buf []byte, limits Limits) (Frame, int, error) {
	i := 0
	for i < len(buf) && (buf[i] == '\n' || buf[i] == '\r') {
		i++
	}
	if i == len(buf) {
		return Frame{}, 0, ErrNeedMore
	}
	if buf[i] != CookiePre {
		return Frame{}, 0, fmt.Errorf("%w: unexpected byte 0x%02x at offset %d", ErrBadHeader, buf[i], i)
	}
	i++

	start := i
	significant := 0
	for i < len(buf) && buf[i] != CookiePost {
		if !isHex(buf[i]) {
			return Frame{}, 0, fmt.Errorf("%w: non-hex length byte 0x%02x", ErrBadHeader, buf[i])
		}
		if significant > 0 || buf[i] != '0' {
			significant++
		}
		if significant > maxLengthDigits || i-start >= maxHeaderDigits {
			return Frame{}, 0, fmt.Errorf("%w: length has too many digits", ErrBadHeader)
		}
		i++
	}
	if i == len(buf) {
		return Frame{}, 0, ErrNeedMore
	}
	if i == start {
		return Frame{}, 0, fmt.Errorf("%w: empty length", ErrBadHeader)
	}
	n, err := strconv.ParseUint(string(buf[start:i]), 16, 63)
	if err != nil {
		return Frame{}, 0, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if limits.MaxPayloadBytes > 0 && n > uint64(limits.MaxPayloadBytes) {
		return Frame{}, 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	length := int(n)
	i++

	if len(buf)-i < length {
		return Frame{Length: length}, 0, ErrNeedMore
	}
	payload := make([]byte, length)
	copy(payload, buf[i:i+length])
	i += length

	switch {
	case i < len(buf) && buf[i] == '\n':
		i++
	case i+1 < len(buf) && buf[i] == '\r' && buf[i+1] == '\n':
		i += 2
	}
	return Frame{Length: length, Payload: payload}, i, nil
}

// ParseAll extracts every complete frame in buf and returns the unconsumed
// remainder.
func ParseAll(buf []byte, limits Limits) ([]Frame, []byte, error) {
	var frames []Frame
	for {
		f, n, err := Parse(buf, limits)
		if errors.Is(err, ErrNeedMore) {
			return frames, buf, nil
		}
		if err != nil {
			return frames, buf, err
		}
		frames = append(frames, f)
		buf = buf[n:]
		if len(buf) == 0 {
			return frames, buf, nil
		}
	}
}

// Encode renders payload as a framed, newline-terminated record.
func Encode(payload []byte) []byte {
	header := strconv.FormatUint(uint64(len(payload)), 16)
	out := make([]byte, 0, len(header)+len(payload)+3)
	out = append(out, CookiePre)
	out = append(out, header...)
	out = append(out, CookiePost)
	out = append(out, payload...)
	return append(out, '\n')
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
