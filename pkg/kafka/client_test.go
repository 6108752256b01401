package kafka

import (
	"context"
	"errors"
	"testing"

	"dubbing-service/pkg/config"
)

func TestProduceBeforeOpen(t *testing.T) {
	c := &Client{}
	if err := c.Produce(context.Background(), "t", nil, []byte("x")); !errors.Is(err, ErrNotOpened) {
		t.Fatalf("err = %v, want ErrNotOpened", err)
	}
}

func TestWriterIsSharedPerTopic(t *testing.T) {
	c := &Client{}
	c.Open(config.KafkaConfig{BootstrapServers: []string{"127.0.0.1:9"}, ClientID: "test"})
	defer c.Close()
	if !c.Opened() {
		t.Fatal("client should be opened")
	}
	a, b := c.Writer("dubbing.events"), c.Writer("dubbing.events")
	if a != b {
		t.Fatal("expected one writer per topic")
	}
	if c.Writer("other") == a {
		t.Fatal("topics must not share writers")
	}
}
