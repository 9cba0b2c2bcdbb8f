package queue

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialTimeout(t *testing.T) {
	assert.Equal(t, defaultDialTimeout, dialTimeout(context.Background()))

	long, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	assert.Equal(t, defaultDialTimeout, dialTimeout(long))

	short, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	got := dialTimeout(short)
	assert.True(t, got > 0 && got <= time.Second, got)

	expired, cancel3 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel3()
	assert.Equal(t, time.Millisecond, dialTimeout(expired))
}

func TestPublishGivesUpOnSilentBroker(t *testing.T) {
	// Accepts TCP connections but never speaks AMQP.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	p := NewPublisher("amqp://guest:guest@" + ln.Addr().String() + "/")
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = p.PublishPurchaseCompleted(ctx, PurchaseCompletedEvent{EventID: "e-1", SessionID: "cs_1"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}
