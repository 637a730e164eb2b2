// Package ipc implements the length-prefixed IPC protocol of spec §4.J: a
// stream of ADD_DEVICE/ADD_OPTION/REMOVE_DEVICE/REMOVE_OPTION messages
// broadcast over a SOCK_STREAM Unix domain socket from the discovery side
// to any number of connected UI clients.
package ipc

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// Action tags the first byte of every message (spec §4.J).
type Action byte

const (
	ActionAddDevice Action = iota
	ActionAddOption
	ActionRemoveDevice
	ActionRemoveOption
)

func (a Action) String() string {
	switch a {
	case ActionAddDevice:
		return "ADD_DEVICE"
	case ActionAddOption:
		return "ADD_OPTION"
	case ActionRemoveDevice:
		return "REMOVE_DEVICE"
	case ActionRemoveOption:
		return "REMOVE_OPTION"
	default:
		return fmt.Sprintf("Action(%d)", byte(a))
	}
}

// MaxStringLen is the largest string the wire format permits (spec §4.J);
// a length prefix above this is a framing error.
const MaxStringLen = 4096

// writeString writes a single u32-big-endian-length-prefixed string (spec
// §9's "factor read/write of a u32 length and a byte slice into a single
// primitive" hint).
func writeString(w io.Writer, s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("ipc: string too long (%d > %d)", len(s), MaxStringLen)
	}
	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(s)))
	if _, err := w.Write(lenbuf[:]); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := io.WriteString(w, s)
	return err
}

// readString reads one writeString-framed string, rejecting lengths past
// MaxStringLen outright so a corrupt stream can't make us buffer an
// unbounded allocation.
func readString(r io.Reader) (string, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint32(lenbuf[:])
	if n > MaxStringLen {
		return "", fmt.Errorf("ipc: string length %d exceeds max %d", n, MaxStringLen)
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// DeviceMessage is the ADD_DEVICE payload (spec §4.J table).
type DeviceMessage struct {
	ID          string
	Name        string
	Description string
	Icon        string
}

// OptionMessage is the ADD_OPTION payload. It carries no device id of its
// own: the reader associates it with the most recently seen ADD_DEVICE on
// the same connection (spec §4.J, "currently being added device index").
type OptionMessage struct {
	ID          string
	Name        string
	Description string
	Icon        string
	BootImage   string
	Initrd      string
	Args        string
}

// RemoveMessage is the REMOVE_DEVICE/REMOVE_OPTION payload: just an id.
type RemoveMessage struct {
	ID string
}

// WriteAddDevice writes one ADD_DEVICE message.
func WriteAddDevice(w io.Writer, m DeviceMessage) error {
	return writeFramed(w, ActionAddDevice, m.ID, m.Name, m.Description, m.Icon)
}

// WriteAddOption writes one ADD_OPTION message.
func WriteAddOption(w io.Writer, m OptionMessage) error {
	return writeFramed(w, ActionAddOption, m.ID, m.Name, m.Description, m.Icon, m.BootImage, m.Initrd, m.Args)
}

// WriteRemoveDevice writes one REMOVE_DEVICE message.
func WriteRemoveDevice(w io.Writer, id string) error {
	return writeFramed(w, ActionRemoveDevice, id)
}

// WriteRemoveOption writes one REMOVE_OPTION message.
func WriteRemoveOption(w io.Writer, id string) error {
	return writeFramed(w, ActionRemoveOption, id)
}

func writeFramed(w io.Writer, action Action, strs ...string) error {
	if _, err := w.Write([]byte{byte(action)}); err != nil {
		return err
	}
	for _, s := range strs {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

// Message is a decoded frame: exactly one of Device/Option/RemoveID is
// meaningful, per Action.
type Message struct {
	Action   Action
	Device   DeviceMessage
	Option   OptionMessage
	RemoveID string
}

// ReadMessage reads and decodes exactly one frame from r. Any error
// (including a malformed action byte or an over-length string) is a
// framing error and the connection must be closed (spec §4.J: "any
// framing error closes the connection").
func ReadMessage(r *bufio.Reader) (Message, error) {
	actionByte, err := r.ReadByte()
	if err != nil {
		return Message{}, err
	}
	action := Action(actionByte)

	var m Message
	m.Action = action
	switch action {
	case ActionAddDevice:
		strs, err := readStrings(r, 4)
		if err != nil {
			return Message{}, err
		}
		m.Device = DeviceMessage{ID: strs[0], Name: strs[1], Description: strs[2], Icon: strs[3]}
	case ActionAddOption:
		strs, err := readStrings(r, 7)
		if err != nil {
			return Message{}, err
		}
		m.Option = OptionMessage{
			ID: strs[0], Name: strs[1], Description: strs[2], Icon: strs[3],
			BootImage: strs[4], Initrd: strs[5], Args: strs[6],
		}
	case ActionRemoveDevice, ActionRemoveOption:
		strs, err := readStrings(r, 1)
		if err != nil {
			return Message{}, err
		}
		m.RemoveID = strs[0]
	default:
		return Message{}, fmt.Errorf("ipc: unknown action tag %d", actionByte)
	}
	return m, nil
}

func readStrings(r io.Reader, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
