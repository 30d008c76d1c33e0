package orchestrator

import (
	"testing"
	"time"
)

func TestClientPool_ReusesClientPerURL(t *testing.T) {
	p := NewClientPool(time.Second)
	defer p.Close()

	a := p.Get("http://replica-1")
	b := p.Get("http://replica-1")
	if a != b {
		t.Fatal("expected the same client instance for the same URL")
	}

	c := p.Get("http://replica-2")
	if c == a {
		t.Fatal("expected a distinct client instance for a different URL")
	}
}
