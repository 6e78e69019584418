package shared

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

type StringWriteCloser interface {
	io.Closer
	io.StringWriter
}

type WriteCloser struct {
	w io.WriteCloser
}

func NewWriteCloser(w io.WriteCloser) StringWriteCloser {
	if w == nil {
		return nil
	}
	return &WriteCloser{w: w}
}

func (wc *WriteCloser) WriteString(s string) (n int, err error) {
	return wc.w.Write([]byte(s))
}

func (wc *WriteCloser) Close() error {
	return wc.w.Close()
}

// Printer fans transcript and status lines out to every hook, indenting continuation lines
// so multi-line assistant answers stay readable in a terminal.
type Printer struct {
	mu     sync.Mutex
	indStr string
	hooks  []StringWriteCloser
}

func NewPrinter(indentString string, hooks ...StringWriteCloser) (*Printer, error) {
	if len(hooks) == 0 {
		return nil, errors.New("no hook provided")
	}
	for _, hook := range hooks {
		if hook == nil {
			return nil, errors.New("a nil pointed hook is given")
		}
	}
	return &Printer{indStr: indentString, hooks: hooks}, nil
}

func (p *Printer) Write(s string, ind int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLines("", s, ind, false)
}

func (p *Printer) Writeln(s string, ind int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLines("", s, ind, true)
}

// Transcript prints one transcript entry as "<label> text", aligning wrapped lines under the text.
func (p *Printer) Transcript(label, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeLines(label+" ", text, 0, true)
}

func (p *Printer) writeLines(prefix, s string, ind int, newline bool) error {
	indent := strings.Repeat(p.indStr, ind)
	cont := indent + strings.Repeat(" ", len([]rune(prefix)))
	var b strings.Builder
	first := true
	for line := range strings.SplitSeq(s, "\n") {
		if first {
			b.WriteString(indent + prefix + line)
			first = false
			continue
		}
		b.WriteString("\n" + cont + line)
	}
	if newline {
		b.WriteString("\n")
	}
	out := b.String()
	for _, hook := range p.hooks {
		if _, err := hook.WriteString(out); err != nil {
			return fmt.Errorf("on writing to hook: %w", err)
		}
	}
	return nil
}

func (p *Printer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, hook := range p.hooks {
		if err := hook.Close(); err != nil {
			return fmt.Errorf("on closing hook: %w", err)
		}
	}
	return nil
}
