package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAfterFires(t *testing.T) {
	s := NewScheduler()
	done := make(chan struct{})

	s.After("ref1", time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	s := NewScheduler()
	fired := make(chan struct{}, 1)

	s.After("ref1", 10*time.Millisecond, func() { fired <- struct{}{} })
	s.Cancel("ref1")

	select {
	case <-fired:
		t.Fatal("canceled timer fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRescheduleReplacesTimer(t *testing.T) {
	s := NewScheduler()
	var got string
	done := make(chan struct{})

	s.After("ref1", 10*time.Millisecond, func() { got = "first"; close(done) })
	s.After("ref1", time.Millisecond, func() { got = "second"; close(done) })

	<-done
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, "second", got)
}
