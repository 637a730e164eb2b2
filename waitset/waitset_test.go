package waitset_test

import (
	"testing"
	"time"

	. "gopkg.in/check.v1"
	"golang.org/x/sys/unix"

	"github.com/open-power/petitboot/waitset"
)

func Test(t *testing.T) { TestingT(t) }

type waitsetSuite struct{}

var _ = Suite(&waitsetSuite{})

func (s *waitsetSuite) TestCallbackFiresOnReadableFd(c *C) {
	ws, err := waitset.New()
	c.Assert(err, IsNil)
	defer ws.Close()

	fds := make([]int, 2)
	c.Assert(unix.Pipe2(fds, unix.O_NONBLOCK), IsNil)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := make(chan int16, 1)
	ws.Add(fds[0], unix.POLLIN, func(revents int16) bool {
		fired <- revents
		ws.Stop()
		return true
	})

	go ws.Run()
	unix.Write(fds[1], []byte("x"))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		c.Fatal("callback never fired")
	}
}

func (s *waitsetSuite) TestTimerFiresAndReschedules(c *C) {
	ws, err := waitset.New()
	c.Assert(err, IsNil)
	defer ws.Close()

	count := make(chan struct{}, 10)
	ws.AddTimer(5*time.Millisecond, func() bool {
		count <- struct{}{}
		return true
	})

	go ws.Run()
	defer ws.Stop()

	for i := 0; i < 3; i++ {
		select {
		case <-count:
		case <-time.After(2 * time.Second):
			c.Fatal("timer did not fire enough times")
		}
	}
}

func (s *waitsetSuite) TestStopReturnsPromptly(c *C) {
	ws, err := waitset.New()
	c.Assert(err, IsNil)
	defer ws.Close()

	done := make(chan struct{})
	go func() {
		ws.Run()
		close(done)
	}()

	ws.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		c.Fatal("Run did not return after Stop")
	}
}
