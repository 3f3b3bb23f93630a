package natsutil

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	c := (*headerCarrier)(msg)

	if got := c.Get("traceparent"); got != "" {
		t.Errorf("empty carrier returned %q", got)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get = %q", got)
	}

	keys := c.Keys()
	if len(keys) != 1 || keys[0] != "traceparent" {
		t.Errorf("keys = %v", keys)
	}
	if msg.Header.Get("traceparent") != "00-abc-def-01" {
		t.Error("header not written through to the message")
	}
}
