package ipc

import (
	"bufio"
	"net"
)

// Client is the UI side of the protocol: a connection to a Server's
// socket plus the buffered reader ReadMessage needs.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a Server listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// ReadMessage reads one raw frame. Most callers want NewEventReader
// instead, which resolves ADD_OPTION's implicit device association.
func (c *Client) ReadMessage() (Message, error) {
	return ReadMessage(c.r)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Event is a decoded message with ADD_OPTION's device association already
// resolved, as produced by EventReader.
type Event struct {
	Action Action

	// DeviceID is populated for every action but REMOVE_OPTION: for ADD_DEVICE/REMOVE_DEVICE it's the
	// device's own id; for ADD_OPTION it's the most recently added
	// device's id (spec §4.J "currently being added device index"); for
	// REMOVE_OPTION it is unknown and left empty, since the option alone
	// carries enough identity to remove it.
	DeviceID string

	Device   DeviceMessage
	Option   OptionMessage
	RemoveID string
}

// EventReader wraps a Client, tracking the most recently seen ADD_DEVICE
// id so each following ADD_OPTION can be attributed to its owning device
// without the wire format needing to repeat it (spec §4.J).
type EventReader struct {
	client  *Client
	current string
}

// NewEventReader creates an EventReader over an already-dialed Client.
func NewEventReader(c *Client) *EventReader {
	return &EventReader{client: c}
}

// Next reads and resolves the next Event. Any error, including a framing
// error, means the connection is no longer usable and should be closed.
func (er *EventReader) Next() (Event, error) {
	m, err := er.client.ReadMessage()
	if err != nil {
		return Event{}, err
	}
	ev := Event{Action: m.Action, Device: m.Device, Option: m.Option, RemoveID: m.RemoveID}
	switch m.Action {
	case ActionAddDevice:
		er.current = m.Device.ID
		ev.DeviceID = m.Device.ID
	case ActionAddOption:
		ev.DeviceID = er.current
	case ActionRemoveDevice:
		ev.DeviceID = m.RemoveID
	}
	return ev, nil
}
