package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nickyhof/AtlasDB/core"
	"github.com/nickyhof/AtlasDB/db"
	"github.com/nickyhof/AtlasDB/errs"
	"github.com/nickyhof/AtlasDB/ps"
	"go.uber.org/zap"
)

// Server is a TCP server that exposes an AtlasDB store. Clients send one
// request per line and get one Result per line back.
type Server struct {
	listener net.Listener
	store    *db.Store
	auth     *AuthConfig
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewServer creates a server for store. A nil auth runs the server without
// authentication.
func NewServer(store *db.Store, auth *AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:  store,
		auth:   auth,
		logger: logger.Named("server"),
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[net.Conn]struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.listener = listener

	s.logger.Info("listening", zap.String("addr", listener.Addr().String()),
		zap.Bool("auth", s.auth != nil))

	go s.acceptLoop()
	return nil
}

// Stop closes the listener and every open connection, cancels running
// queries and waits for the handlers to return.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		close(s.done)
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()

		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Warn("accept failed", zap.Error(err))
				continue
			}
		}

		s.mu.Lock()
		select {
		case <-s.done:
			s.mu.Unlock()
			conn.Close()
			return
		default:
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	session := &Session{ID: uuid.NewString()}
	logger := s.logger.With(
		zap.String("session", session.ID),
		zap.String("remote", conn.RemoteAddr().String()))
	logger.Info("client connected")

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				logger.Warn("read failed", zap.Error(err))
			}
			logger.Info("client disconnected")
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			logger.Info("client disconnected")
			return
		}

		var result db.Result
		if isAuthCommand(line) {
			result = s.handleAuth(line, session, logger)
		} else {
			result = s.handleRequest(line, session, logger)
		}

		data, err := EncodeResponse(result)
		if err != nil {
			logger.Error("failed to encode response", zap.Error(err))
			continue
		}
		if _, err := conn.Write(data); err != nil {
			logger.Warn("write failed", zap.Error(err))
			return
		}
	}
}

func (s *Server) handleRequest(line string, session *Session, logger *zap.Logger) db.Result {
	if s.auth != nil && !session.IsAuthenticated(time.Now()) {
		return db.Failure(errs.New(errs.KindInvalidInput, "authentication required: send AUTH JWT <token>"))
	}

	req, err := DecodeRequest([]byte(line))
	if err != nil {
		return db.Failure(errs.Wrap(errs.KindInvalidInput, "malformed request", err))
	}

	ctx := s.ctx
	if session.IsAuthenticated(time.Now()) {
		ctx = ps.WithAuthor(ctx, session.Identity())
	}

	result := s.store.Execute(ctx, req.Query, req.Args()...)
	logger.Debug("request handled",
		zap.String("query", req.Query),
		zap.Bool("success", result.Success),
		zap.Int("rows", len(result.Rows)))
	return result
}

// handleAuth processes an AUTH command. The reply carries one row
// describing the authenticated session.
func (s *Server) handleAuth(line string, session *Session, logger *zap.Logger) db.Result {
	if s.auth == nil {
		return db.Failure(errs.New(errs.KindInvalidInput, "authentication not configured"))
	}

	_, token, err := parseAuthCommand(line)
	if err != nil {
		return db.Failure(errs.Wrap(errs.KindInvalidInput, "authentication failed", err))
	}

	g, err := s.auth.authenticate(token)
	if err != nil {
		logger.Info("authentication rejected", zap.Error(err))
		return db.Failure(errs.Wrap(errs.KindInvalidInput, "authentication failed", err))
	}

	session.grant = g
	logger.Info("client authenticated", zap.Stringer("identity", g.identity))

	response := AuthResponse{
		Authenticated: true,
		Identity:      g.identity.String(),
		Session:       session.ID,
	}
	if !g.expires.IsZero() {
		response.ExpiresIn = int(time.Until(g.expires).Seconds())
	}

	row, err := core.RowFromParam(response)
	if err != nil {
		return db.Failure(errs.Wrap(errs.KindEngine, "encoding auth response", err))
	}
	return db.Success([]core.Row{row}, fmt.Sprintf("authenticated as %s", g.identity))
}
