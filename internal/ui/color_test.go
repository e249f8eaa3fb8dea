package ui

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrinterPlainOutput(t *testing.T) {
	tests := []struct {
		name string
		fn   func(p *Printer)
		want string
	}{
		{name: "success", fn: func(p *Printer) { p.Success("hydrated %s", "dev") }, want: "✓ hydrated dev\n"},
		{name: "error", fn: func(p *Printer) { p.Error("failed: %d issues", 2) }, want: "✗ failed: 2 issues\n"},
		{name: "warning", fn: func(p *Printer) { p.Warning("unresolved") }, want: "⚠ unresolved\n"},
		{name: "info", fn: func(p *Printer) { p.Info("root: %s", "/srv") }, want: "root: /srv\n"},
		{name: "header", fn: func(p *Printer) { p.Header("Components") }, want: "Components\n"},
		{name: "println", fn: func(p *Printer) { p.Println("  %s", "api") }, want: "  api\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			p := New(&buf)
			tt.fn(p)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrinterForcedColor(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.SetColor(true)

	p.Error("boom")
	assert.Contains(t, buf.String(), "\x1b[")
	assert.Contains(t, buf.String(), "✗ boom")

	buf.Reset()
	p.SetColor(false)
	p.Error("boom")
	assert.Equal(t, "✗ boom\n", buf.String())
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	if assert.NoError(t, err) {
		defer f.Close()
		assert.False(t, IsTerminal(f), "regular file is not a terminal")
	}
}

func TestPrinterWriter(t *testing.T) {
	var buf bytes.Buffer
	assert.Same(t, &buf, New(&buf).Writer())
}
