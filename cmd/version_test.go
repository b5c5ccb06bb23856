package cmd

import (
	"bytes"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	SetVersion("0.4.2")

	var buf bytes.Buffer
	c := newVersionCmd()
	c.SetOut(&buf)
	c.Run(c, nil)

	expected := "duewatch version 0.4.2\n"
	if buf.String() != expected {
		t.Errorf("Expected %q, got %q", expected, buf.String())
	}
}
