package ipc

import (
	"bufio"
	"io"
	"net"
	"os"
	"sync"

	"gopkg.in/tomb.v2"

	"github.com/open-power/petitboot/logging"
)

// Server is the discovery side of the protocol: it accepts any number of
// UI client connections on a Unix domain socket and broadcasts
// ADD_DEVICE/ADD_OPTION/REMOVE_DEVICE/REMOVE_OPTION messages to every one
// of them in the order they're published (spec §4.J, §5 "BootOptions...
// appear on the IPC stream in parser emission order").
//
// The accept loop runs under a tomb.Tomb, the same goroutine-supervision
// idiom the teacher uses for its own long-running loops, so Close can
// wait for it to actually exit instead of merely asking it to.
type Server struct {
	ln net.Listener
	t  tomb.Tomb

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn net.Conn
	w    *bufio.Writer
}

// Listen creates a Server bound to socketPath, removing any stale socket
// file left behind by a previous, uncleanly-terminated run.
func Listen(socketPath string) (*Server, error) {
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	s := &Server{ln: ln, clients: make(map[*client]struct{})}
	s.t.Go(s.acceptLoop)
	return s, nil
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.t.Dying():
				return nil
			default:
				return err
			}
		}
		c := &client{conn: conn, w: bufio.NewWriter(conn)}
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		logging.Debugf("ipc: client connected (%s)", conn.RemoteAddr())
	}
}

// broadcast writes one frame (via encode) to every connected client,
// dropping and closing any client whose connection has gone bad (spec
// §4.J: "any framing error closes the connection" — this applies
// symmetrically to a write failure on the server's side of that same
// connection).
func (s *Server) broadcast(encode func(w io.Writer) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if err := encode(c.w); err != nil || c.w.Flush() != nil {
			c.conn.Close()
			delete(s.clients, c)
		}
	}
}

// AddDevice broadcasts an ADD_DEVICE message.
func (s *Server) AddDevice(m DeviceMessage) {
	s.broadcast(func(w io.Writer) error { return WriteAddDevice(w, m) })
}

// AddOption broadcasts an ADD_OPTION message.
func (s *Server) AddOption(m OptionMessage) {
	s.broadcast(func(w io.Writer) error { return WriteAddOption(w, m) })
}

// RemoveDevice broadcasts a REMOVE_DEVICE message.
func (s *Server) RemoveDevice(id string) {
	s.broadcast(func(w io.Writer) error { return WriteRemoveDevice(w, id) })
}

// RemoveOption broadcasts a REMOVE_OPTION message.
func (s *Server) RemoveOption(id string) {
	s.broadcast(func(w io.Writer) error { return WriteRemoveOption(w, id) })
}

// ClientCount reports the number of currently connected clients, mostly
// useful for tests and diagnostics.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting new connections, closes every client connection,
// and waits for the accept goroutine to exit.
func (s *Server) Close() error {
	s.t.Kill(nil)
	err := s.ln.Close()
	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
		delete(s.clients, c)
	}
	s.mu.Unlock()
	s.t.Wait()
	return err
}
