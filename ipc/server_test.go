package ipc

import (
	"path/filepath"
	"time"

	. "gopkg.in/check.v1"
)

type serverSuite struct{}

var _ = Suite(&serverSuite{})

func waitForClientCount(c *C, s *Server, n int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ClientCount() == n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	c.Fatalf("timed out waiting for %d connected clients", n)
}

func (s *serverSuite) TestBroadcastToMultipleClients(c *C) {
	sockPath := filepath.Join(c.MkDir(), "petitboot.ipc")
	srv, err := Listen(sockPath)
	c.Assert(err, IsNil)
	defer srv.Close()

	client1, err := Dial(sockPath)
	c.Assert(err, IsNil)
	defer client1.Close()
	client2, err := Dial(sockPath)
	c.Assert(err, IsNil)
	defer client2.Close()

	waitForClientCount(c, srv, 2)

	srv.AddDevice(DeviceMessage{ID: "d1", Name: "Disk"})
	srv.AddOption(OptionMessage{ID: "o1", Name: "Linux", BootImage: "/vmlinuz"})
	srv.RemoveOption("o1")
	srv.RemoveDevice("d1")

	for _, cl := range []*Client{client1, client2} {
		er := NewEventReader(cl)

		ev, err := er.Next()
		c.Assert(err, IsNil)
		c.Check(ev.Action, Equals, ActionAddDevice)
		c.Check(ev.DeviceID, Equals, "d1")

		ev, err = er.Next()
		c.Assert(err, IsNil)
		c.Check(ev.Action, Equals, ActionAddOption)
		c.Check(ev.DeviceID, Equals, "d1")
		c.Check(ev.Option.Name, Equals, "Linux")

		ev, err = er.Next()
		c.Assert(err, IsNil)
		c.Check(ev.Action, Equals, ActionRemoveOption)
		c.Check(ev.RemoveID, Equals, "o1")

		ev, err = er.Next()
		c.Assert(err, IsNil)
		c.Check(ev.Action, Equals, ActionRemoveDevice)
		c.Check(ev.RemoveID, Equals, "d1")
	}
}

func (s *serverSuite) TestCloseDisconnectsClients(c *C) {
	sockPath := filepath.Join(c.MkDir(), "petitboot.ipc")
	srv, err := Listen(sockPath)
	c.Assert(err, IsNil)

	client, err := Dial(sockPath)
	c.Assert(err, IsNil)
	defer client.Close()
	waitForClientCount(c, srv, 1)

	c.Assert(srv.Close(), IsNil)

	_, err = client.ReadMessage()
	c.Assert(err, NotNil)
}
