package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/blinkduel/logger"
	"github.com/wfunc/blinkduel/room"
)

// Server manages the internal RPC listener used by operators.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers service.
func NewServer(addr string, service *MatchRPC) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Match", service); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// Inspector reads a match record without side effects.
type Inspector interface {
	Inspect(ctx context.Context, code string) (*room.Record, error)
}

// MatchRPC exposes read-only match inspection over net/rpc.
type MatchRPC struct {
	inspector Inspector
	timeout   time.Duration
}

// NewMatchRPC creates a new MatchRPC.
func NewMatchRPC(inspector Inspector) *MatchRPC {
	return &MatchRPC{inspector: inspector, timeout: 5 * time.Second}
}

type RoomArgs struct {
	Code string
}

type RoomReply struct {
	Record room.Record
}

// Room is an RPC method returning the stored record of a room.
// It must follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
func (m *MatchRPC) Room(args *RoomArgs, reply *RoomReply) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	rec, err := m.inspector.Inspect(ctx, args.Code)
	if err != nil {
		return err
	}
	reply.Record = *rec
	return nil
}
