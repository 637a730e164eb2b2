package ipc

import (
	"bufio"
	"bytes"
	"testing"

	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type wireSuite struct{}

var _ = Suite(&wireSuite{})

// TestIPCFrameScenario reproduces spec.md's scenario 5 byte-for-byte: an
// ADD_DEVICE for d1/D followed by an ADD_OPTION for o1/O with only
// boot-image set.
func (s *wireSuite) TestIPCFrameScenario(c *C) {
	var buf bytes.Buffer

	err := WriteAddDevice(&buf, DeviceMessage{ID: "d1", Name: "D"})
	c.Assert(err, IsNil)

	err = WriteAddOption(&buf, OptionMessage{ID: "o1", Name: "O", BootImage: "/k"})
	c.Assert(err, IsNil)

	expect := []byte{
		0x00,
		0x00, 0x00, 0x00, 0x02, 'd', '1',
		0x00, 0x00, 0x00, 0x01, 'D',
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,

		0x01,
		0x00, 0x00, 0x00, 0x02, 'o', '1',
		0x00, 0x00, 0x00, 0x01, 'O',
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x02, '/', 'k',
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}
	c.Assert(buf.Bytes(), DeepEquals, expect)

	r := bufio.NewReader(&buf)
	m1, err := ReadMessage(r)
	c.Assert(err, IsNil)
	c.Check(m1.Action, Equals, ActionAddDevice)
	c.Check(m1.Device, DeepEquals, DeviceMessage{ID: "d1", Name: "D"})

	m2, err := ReadMessage(r)
	c.Assert(err, IsNil)
	c.Check(m2.Action, Equals, ActionAddOption)
	c.Check(m2.Option, DeepEquals, OptionMessage{ID: "o1", Name: "O", BootImage: "/k"})
}

func (s *wireSuite) TestRemoveDeviceRoundTrip(c *C) {
	var buf bytes.Buffer
	c.Assert(WriteRemoveDevice(&buf, "d1"), IsNil)
	c.Assert(WriteRemoveOption(&buf, "o1"), IsNil)

	r := bufio.NewReader(&buf)
	m1, err := ReadMessage(r)
	c.Assert(err, IsNil)
	c.Check(m1.Action, Equals, ActionRemoveDevice)
	c.Check(m1.RemoveID, Equals, "d1")

	m2, err := ReadMessage(r)
	c.Assert(err, IsNil)
	c.Check(m2.Action, Equals, ActionRemoveOption)
	c.Check(m2.RemoveID, Equals, "o1")
}

func (s *wireSuite) TestOverLongStringRejected(c *C) {
	var buf bytes.Buffer
	err := writeString(&buf, string(make([]byte, MaxStringLen+1)))
	c.Assert(err, NotNil)
}

func (s *wireSuite) TestReadRejectsOverLongLengthPrefix(c *C) {
	var buf bytes.Buffer
	buf.Write([]byte{byte(ActionRemoveDevice)})
	lenbuf := []byte{0x00, 0x01, 0x00, 0x00} // 65536, past MaxStringLen
	buf.Write(lenbuf)
	_, err := ReadMessage(bufio.NewReader(&buf))
	c.Assert(err, NotNil)
}

func (s *wireSuite) TestUnknownActionIsFramingError(c *C) {
	var buf bytes.Buffer
	buf.WriteByte(0x7f)
	_, err := ReadMessage(bufio.NewReader(&buf))
	c.Assert(err, NotNil)
}
