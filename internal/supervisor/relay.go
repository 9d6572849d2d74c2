package supervisor

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// relay drains the launch stage pipe, echoing and copying what it reads.
type relay struct {
	r    *os.File
	echo io.Writer
	sink io.Writer
	buf  bytes.Buffer
	done chan struct{}
}

func startRelay(r *os.File, echo, sink io.Writer) *relay {
	rl := &relay{r: r, echo: echo, sink: sink, done: make(chan struct{})}
	go rl.run()
	return rl
}

func (rl *relay) run() {
	defer close(rl.done)
	b := make([]byte, 4096)
	for {
		n, err := rl.r.Read(b)
		if n > 0 {
			rl.buf.Write(b[:n])
			if rl.echo != nil {
				_, _ = rl.echo.Write(b[:n])
			}
			if rl.sink != nil {
				_, _ = rl.sink.Write(b[:n])
			}
		}
		if err != nil {
			return
		}
	}
}

// finish stops reading after grace and returns everything read. The target
// still holds the write end, so EOF cannot be waited for.
func (rl *relay) finish(grace time.Duration) string {
	_ = rl.r.SetReadDeadline(time.Now().Add(grace))
	<-rl.done
	_ = rl.r.Close()
	return rl.buf.String()
}

func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	b   []byte
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b = append(t.b, p...)
	if over := len(t.b) - t.max; over > 0 {
		t.b = append(t.b[:0], t.b[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.b)
}
