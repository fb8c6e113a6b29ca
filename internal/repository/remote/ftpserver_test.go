package remote

import (
	"io"
	"net"
	"net/textproto"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ftpServer is a minimal single-session FTP server keeping files in memory.
// It speaks just enough of RFC 959 and RFC 2428 (EPSV) for FTPStore.
type ftpServer struct {
	t        *testing.T
	listener net.Listener

	// dir is the only directory CWD accepts.
	dir string
	// badPassword is answered with 530 on PASS.
	badPassword string
	// qualifyNames makes NLST answer "dir/name" like some servers do.
	qualifyNames bool

	mu       sync.Mutex
	files    map[string][]byte
	commands []string
	control  net.Conn
	done     chan struct{}
}

func newFTPServer(t *testing.T, dir string, files map[string]string, opts ...func(*ftpServer)) *ftpServer {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &ftpServer{
		t:        t,
		listener: listener,
		dir:      dir,
		files:    make(map[string][]byte, len(files)),
		done:     make(chan struct{}),
	}

	for name, contents := range files {
		s.files[name] = []byte(contents)
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.serve()

	t.Cleanup(func() {
		_ = listener.Close()

		s.mu.Lock()
		if s.control != nil {
			_ = s.control.Close()
		}
		s.mu.Unlock()

		<-s.done
	})

	return s
}

// url returns an ftp:// URL pointing at dir on this server.
func (s *ftpServer) url() *url.URL {
	return &url.URL{Scheme: "ftp", Host: s.listener.Addr().String(), Path: s.dir}
}

func (s *ftpServer) file(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.files[name]

	return string(data), ok
}

func (s *ftpServer) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commands...)
}

func (s *ftpServer) serve() {
	defer close(s.done)

	conn, err := s.listener.Accept()
	if err != nil {
		return
	}

	s.mu.Lock()
	s.control = conn
	s.mu.Unlock()

	defer func() {
		_ = conn.Close()
	}()

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	control := textproto.NewConn(conn)
	s.reply(control, "220 ready")

	var (
		data       net.Listener
		renameFrom string
	)

	for {
		line, err := control.ReadLine()
		if err != nil {
			return
		}

		command, arg, _ := strings.Cut(line, " ")

		s.mu.Lock()
		s.commands = append(s.commands, line)
		s.mu.Unlock()

		switch strings.ToUpper(command) {
		case "USER":
			s.reply(control, "331 password please")
		case "PASS":
			if s.badPassword != "" && arg == s.badPassword {
				s.reply(control, "530 login incorrect")
			} else {
				s.reply(control, "230 logged in")
			}
		case "FEAT":
			s.reply(control, "211 no features")
		case "TYPE":
			s.reply(control, "200 type set")
		case "CWD":
			if arg == s.dir {
				s.reply(control, "250 directory changed")
			} else {
				s.reply(control, "550 no such directory")
			}
		case "EPSV":
			data, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				s.reply(control, "425 cannot open data connection")
				continue
			}

			port := data.Addr().(*net.TCPAddr).Port
			s.replyf(control, "229 Entering Extended Passive Mode (|||%d|)", port)
		case "NLST":
			s.transfer(control, data, func(w io.Writer) {
				for _, name := range s.names() {
					if s.qualifyNames {
						name = path.Join(s.dir, name)
					}

					_, _ = io.WriteString(w, name+"\r\n")
				}
			})
		case "RETR":
			contents, ok := s.file(arg)
			if !ok {
				if data != nil {
					_ = data.Close()
				}

				s.reply(control, "550 no such file")

				continue
			}

			s.transfer(control, data, func(w io.Writer) {
				_, _ = io.WriteString(w, contents)
			})
		case "STOR":
			s.receive(control, data, arg)
		case "DELE":
			s.mu.Lock()
			_, ok := s.files[arg]
			delete(s.files, arg)
			s.mu.Unlock()

			if ok {
				s.reply(control, "250 deleted")
			} else {
				s.reply(control, "550 no such file")
			}
		case "RNFR":
			if _, ok := s.file(arg); !ok {
				s.reply(control, "550 no such file")
				continue
			}

			renameFrom = arg
			s.reply(control, "350 ready for RNTO")
		case "RNTO":
			s.mu.Lock()
			s.files[arg] = s.files[renameFrom]
			delete(s.files, renameFrom)
			s.mu.Unlock()

			s.reply(control, "250 renamed")
		case "QUIT":
			s.reply(control, "221 bye")
			return
		default:
			s.reply(control, "502 not implemented")
		}
	}
}

func (s *ftpServer) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.files))
	for name := range s.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// transfer sends a payload over the passive data connection.
func (s *ftpServer) transfer(control *textproto.Conn, data net.Listener, write func(io.Writer)) {
	conn, ok := s.accept(control, data)
	if !ok {
		return
	}

	write(conn)

	_ = conn.Close()

	s.reply(control, "226 transfer complete")
}

// receive stores everything the client sends over the data connection as name.
func (s *ftpServer) receive(control *textproto.Conn, data net.Listener, name string) {
	conn, ok := s.accept(control, data)
	if !ok {
		return
	}

	contents, err := io.ReadAll(conn)
	_ = conn.Close()

	if err != nil {
		s.reply(control, "426 transfer aborted")
		return
	}

	s.mu.Lock()
	s.files[name] = contents
	s.mu.Unlock()

	s.reply(control, "226 transfer complete")
}

func (s *ftpServer) accept(control *textproto.Conn, data net.Listener) (net.Conn, bool) {
	if data == nil {
		s.reply(control, "425 use EPSV first")
		return nil, false
	}

	defer func() {
		_ = data.Close()
	}()

	s.reply(control, "150 opening data connection")

	conn, err := data.Accept()
	if err != nil {
		s.reply(control, "425 cannot open data connection")
		return nil, false
	}

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	return conn, true
}

func (s *ftpServer) reply(control *textproto.Conn, line string) {
	if err := control.PrintfLine("%s", line); err != nil {
		s.t.Logf("ftp server reply: %v", err)
	}
}

func (s *ftpServer) replyf(control *textproto.Conn, format string, args ...any) {
	if err := control.PrintfLine(format, args...); err != nil {
		s.t.Logf("ftp server reply: %v", err)
	}
}
