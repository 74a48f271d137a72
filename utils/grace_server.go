package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Zero-downtime restarts: SIGUSR2 forks a replacement process that inherits
// the listener fd, then the old process drains and exits. SIGTERM drains and
// exits without a replacement.

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = 60 * time.Second

	gracefulEnvKey   = "GERMANDAY_GRACEFUL"
	gracefulEnvPair  = gracefulEnvKey + "=1"
	inheritedFd      = 3
	shutdownDeadline = 30 * time.Second
)

// Server wraps http.Server with graceful shutdown and restart.
type Server struct {
	*http.Server

	listener  net.Listener
	inherited bool
	signals   chan os.Signal
	drained   chan struct{}
}

// NewServer creates a graceful Server for the given handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
		},
		inherited: os.Getenv(gracefulEnvKey) != "",
		signals:   make(chan os.Signal, 1),
		drained:   make(chan struct{}),
	}
}

// ListenAndServe serves plain HTTP until terminated.
func (srv *Server) ListenAndServe() error {
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := srv.listen(addr)
	if err != nil {
		return err
	}
	srv.listener = ln
	return srv.serve()
}

// ListenAndServeTLS serves HTTPS with the same graceful behavior.
func (srv *Server) ListenAndServeTLS(certFile, keyFile string) error {
	addr := srv.Addr
	if addr == "" {
		addr = ":https"
	}

	cfg := &tls.Config{}
	if srv.TLSConfig != nil {
		cfg = srv.TLSConfig.Clone()
	}
	if cfg.NextProtos == nil {
		cfg.NextProtos = []string{"http/1.1"}
	}
	var err error
	cfg.Certificates = make([]tls.Certificate, 1)
	cfg.Certificates[0], err = tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}

	ln, err := srv.listen(addr)
	if err != nil {
		return err
	}
	srv.listener = tls.NewListener(ln, cfg)
	return srv.serve()
}

func (srv *Server) serve() error {
	go srv.handleSignals()
	err := srv.Server.Serve(srv.listener)
	<-srv.drained
	return err
}

// listen binds a fresh socket, or adopts the fd passed down by the parent
// process after a graceful restart.
func (srv *Server) listen(addr string) (net.Listener, error) {
	if srv.inherited {
		ln, err := net.FileListener(os.NewFile(inheritedFd, ""))
		if err != nil {
			return nil, fmt.Errorf("adopt inherited listener: %w", err)
		}
		return ln, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *Server) handleSignals() {
	signal.Notify(srv.signals, syscall.SIGTERM, syscall.SIGUSR2)

	for sig := range srv.signals {
		switch sig {
		case syscall.SIGTERM:
			Sugar.Info("SIGTERM received, draining HTTP server")
			srv.drain()
		case syscall.SIGUSR2:
			Sugar.Info("SIGUSR2 received, starting replacement process")
			pid, err := srv.forkReplacement()
			if err != nil {
				Sugar.Errorf("replacement process failed to start: %v, continuing to serve", err)
				continue
			}
			Sugar.Infof("replacement process started, pid=%d, draining old server", pid)
			srv.drain()
		}
	}
}

func (srv *Server) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Sugar.Errorf("HTTP server shutdown: %v", err)
	} else {
		Sugar.Info("HTTP server shut down cleanly")
	}
	close(srv.drained)
}

// forkReplacement starts a copy of this binary that inherits the listener.
func (srv *Server) forkReplacement() (int, error) {
	tcpLn, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return 0, fmt.Errorf("listener is not *net.TCPListener")
	}
	file, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvPair {
			env = append(env, e)
		}
	}
	env = append(env, gracefulEnvPair)

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), file.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("forkexec: %w", err)
	}
	return pid, nil
}

// UploadServerTimeout sizes the server's read/write deadlines so a submission
// can use the whole storage upload budget and still have headroom for the
// client to transfer the body.
func UploadServerTimeout(uploadDeadline time.Duration) time.Duration {
	if uploadDeadline <= 0 {
		uploadDeadline = 2 * time.Minute
	}
	return uploadDeadline + 2*time.Minute
}

// GraceServer runs an HTTP server that restarts without dropping connections.
func GraceServer(addr string, handler http.Handler) error {
	return NewServer(addr, handler, defaultReadTimeout, defaultWriteTimeout).ListenAndServe()
}

// GraceServerTLS is GraceServer over TLS.
func GraceServerTLS(addr, certFile, keyFile string, handler http.Handler) error {
	return NewServer(addr, handler, defaultReadTimeout, defaultWriteTimeout).ListenAndServeTLS(certFile, keyFile)
}
