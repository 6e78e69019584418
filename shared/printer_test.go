package shared

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufHook struct {
	strings.Builder
	closed bool
}

func (b *bufHook) Close() error {
	b.closed = true
	return nil
}

func TestPrinter(t *testing.T) {
	tests := []struct {
		name     string
		write    func(p *Printer) error
		expected string
	}{
		{
			name:     "Writeln indents every line",
			write:    func(p *Printer) error { return p.Writeln("a\nb", 1) },
			expected: "│ a\n│ b\n",
		},
		{
			name:     "Write has no trailing newline",
			write:    func(p *Printer) error { return p.Write("x", 0) },
			expected: "x",
		},
		{
			name:     "Transcript aligns continuation lines under the text",
			write:    func(p *Printer) error { return p.Transcript("🤖", "hello\nworld") },
			expected: "🤖 hello\n  world\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook := &bufHook{}
			p, err := NewPrinter("│ ", hook)
			require.NoError(t, err)
			require.NoError(t, tt.write(p))
			assert.Equal(t, tt.expected, hook.String())
			require.NoError(t, p.Close())
			assert.True(t, hook.closed)
		})
	}
}

func TestNewPrinterRejectsMissingHooks(t *testing.T) {
	_, err := NewPrinter("  ")
	assert.Error(t, err)

	_, err = NewPrinter("  ", nil)
	assert.Error(t, err)
}
