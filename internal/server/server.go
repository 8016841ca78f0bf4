// Package server implements the TCP accept loop: bind a listening
// socket, dispatch each accepted connection to a fixed worker pool,
// and serve requests off that connection one at a time until the
// stream ends or an I/O error occurs.
package server

import (
	"errors"
	"io"
	"log"
	"net"

	"github.com/google/uuid"

	"github.com/kartpop/kvs/internal/engine"
	"github.com/kartpop/kvs/internal/kvserr"
	"github.com/kartpop/kvs/internal/protocol"
	"github.com/kartpop/kvs/internal/threadpool"
)

// Server dispatches accepted connections to a worker pool, cloning the
// engine handle once per connection so each job owns its own handle to
// the shared store.
type Server struct {
	engine engine.Engine
	pool   *threadpool.Pool
}

// New builds a Server backed by eng, with a worker pool of poolSize
// goroutines.
func New(eng engine.Engine, poolSize int) *Server {
	return &Server{
		engine: eng,
		pool:   threadpool.New(poolSize),
	}
}

// Serve accepts connections off ln until it is closed, dispatching each
// one to the worker pool. It returns nil when ln is closed out from
// under it (the expected shutdown path) and any other error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return kvserr.Wrap("accept connection", err)
		}
		connEngine := s.engine.Clone()
		s.pool.Spawn(func() {
			serveConn(connEngine, conn)
		})
	}
}

// Shutdown stops dispatching new jobs and waits for in-flight ones to
// finish. It does not close the listener; callers close it first so
// Serve returns before Shutdown blocks on the pool drain.
func (s *Server) Shutdown() {
	s.pool.Stop()
}

// serveConn runs the request/response loop for a single connection: a
// buffered reader and writer over the same socket, one request decoded
// and one response encoded and flushed at a time, with no pipelining.
// Every engine error is turned into a wire-level Err response rather
// than closing the connection; only a decode failure, a closed stream,
// an unknown op, or a failed send ends the loop.
func serveConn(eng engine.Engine, conn net.Conn) {
	defer conn.Close()

	connID := uuid.New()
	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)

	for {
		var req protocol.Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("connection %s: decode request: %v", connID, err)
			}
			return
		}

		var respErr error
		switch req.Op {
		case protocol.OpGet:
			value, found, err := eng.Get(req.Key)
			respErr = enc.Encode(toGetResponse(value, found, err))
		case protocol.OpSet:
			err := eng.Set(req.Key, req.Value)
			respErr = enc.Encode(protocol.SetResponse{Err: errString(err)})
		case protocol.OpRemove:
			err := eng.Remove(req.Key)
			respErr = enc.Encode(protocol.RemoveResponse{Err: errString(err)})
		default:
			log.Printf("connection %s: unknown op %q", connID, req.Op)
			return
		}
		if respErr == nil {
			respErr = enc.Flush()
		}
		if respErr != nil {
			log.Printf("connection %s: send response: %v", connID, respErr)
			return
		}
	}
}

func toGetResponse(value string, found bool, err error) protocol.GetResponse {
	if err != nil {
		return protocol.GetResponse{Err: err.Error()}
	}
	return protocol.GetResponse{Found: found, Value: value}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
