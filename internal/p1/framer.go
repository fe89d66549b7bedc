package p1

import (
	"bufio"
	"io"
	"strings"
)

// maxTelegramSize bounds the buffer when a stream never sends a trailer.
const maxTelegramSize = 16 << 10

// Framer splits a byte stream into telegrams. Bytes before the first "/"
// header are dropped, which aligns a reader that attached mid-telegram.
// Line endings are kept so checksums can be verified.
type Framer struct {
	r *bufio.Reader
}

func NewFramer(r io.Reader) *Framer {
	return &Framer{r: bufio.NewReader(r)}
}

// Next blocks until a complete telegram has been read.
func (f *Framer) Next() (Telegram, error) {
	var (
		buf     strings.Builder
		started bool
	)
	for {
		line, err := f.r.ReadString('\n')
		if line != "" {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "/") {
				buf.Reset()
				started = true
			}
			if started {
				buf.WriteString(line)
				if strings.HasPrefix(trimmed, "!") {
					return Telegram(buf.String()), nil
				}
				if buf.Len() > maxTelegramSize {
					buf.Reset()
					started = false
				}
			}
		}
		if err != nil {
			return "", err
		}
	}
}
