package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadTimeout  = 60 * time.Second
	// uploads and attachment downloads stream through the same server
	defaultWriteTimeout = 10 * time.Minute
	shutdownTimeout     = 30 * time.Second
	gracefulEnvKey      = "BLOG_GRACEFUL"
	gracefulEnvValue    = gracefulEnvKey + "=1"
	// fd of the inherited listener in a restarted child (after stdin, stdout, stderr)
	inheritedListenerFd = 3
)

// Server is an http.Server that stops on SIGINT/SIGTERM and restarts on
// SIGUSR2 by forking a child that inherits the listening socket.
type Server struct {
	*http.Server

	mu        sync.Mutex
	listener  net.Listener
	inherited bool
	signals   chan os.Signal
	done      chan struct{}
}

// NewServer creates a Server with timeouts and handler.
func NewServer(addr string, handler http.Handler, readTimeout, writeTimeout time.Duration) *Server {
	return &Server{
		Server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      writeTimeout,
		},
		inherited: os.Getenv(gracefulEnvKey) != "",
		signals:   make(chan os.Signal, 1),
		done:      make(chan struct{}),
	}
}

// Serve listens on Addr (or the inherited socket) and blocks until the server
// has shut down, either through a signal or because ctx ended.
func (srv *Server) Serve(ctx context.Context) error {
	ln, err := srv.listen()
	if err != nil {
		return err
	}
	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	go srv.watch(ctx)
	err = srv.Server.Serve(ln)
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	// Serve returns as soon as Shutdown starts; wait for in-flight requests
	<-srv.done
	return nil
}

// Listener returns the socket being served, nil before Serve started.
func (srv *Server) Listener() net.Listener {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.listener
}

func (srv *Server) listen() (net.Listener, error) {
	if srv.inherited {
		ln, err := net.FileListener(os.NewFile(inheritedListenerFd, "listener"))
		if err != nil {
			return nil, fmt.Errorf("inherit listener: %w", err)
		}
		return ln, nil
	}
	addr := srv.Addr
	if addr == "" {
		addr = ":http"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return ln, nil
}

func (srv *Server) watch(ctx context.Context) {
	signal.Notify(srv.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR2)
	defer signal.Stop(srv.signals)

	for {
		select {
		case <-ctx.Done():
			Logger.Info("context done, shutting down HTTP server")
			srv.shutdown()
			return
		case sig := <-srv.signals:
			if sig != syscall.SIGUSR2 {
				Logger.Info("shutting down HTTP server", zap.String("signal", sig.String()))
				srv.shutdown()
				return
			}
			pid, err := srv.fork()
			if err != nil {
				Logger.Error("restart failed, keep serving", zap.Error(err))
				continue
			}
			Logger.Info("restarted, handing over to child", zap.Int("pid", pid))
			srv.shutdown()
			return
		}
	}
}

func (srv *Server) shutdown() {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		Logger.Error("HTTP server shutdown failed", zap.Error(err))
	} else {
		Logger.Info("HTTP server stopped", logDuration(time.Since(start)))
	}
	close(srv.done)
}

// fork starts a copy of the running binary that serves on the same socket.
func (srv *Server) fork() (int, error) {
	tcpLn, ok := srv.Listener().(*net.TCPListener)
	if !ok {
		return 0, errors.New("listener is not a TCP listener")
	}
	f, err := tcpLn.File()
	if err != nil {
		return 0, fmt.Errorf("listener file: %w", err)
	}
	defer f.Close()

	env := make([]string, 0, len(os.Environ())+1)
	for _, e := range os.Environ() {
		if e != gracefulEnvValue {
			env = append(env, e)
		}
	}
	env = append(env, gracefulEnvValue)

	pid, err := syscall.ForkExec(os.Args[0], os.Args, &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{os.Stdin.Fd(), os.Stdout.Fd(), os.Stderr.Fd(), f.Fd()},
	})
	if err != nil {
		return 0, fmt.Errorf("fork/exec: %w", err)
	}
	return pid, nil
}

// GraceServer serves handler on addr until a signal arrives or ctx ends.
// onShutdown hooks run when shutdown begins.
func GraceServer(ctx context.Context, addr string, handler http.Handler, onShutdown ...func()) error {
	srv := NewServer(addr, handler, defaultReadTimeout, defaultWriteTimeout)
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}
	return srv.Serve(ctx)
}
