package gateway

import (
	"context"
	"errors"
	"net"

	"github.com/go-zeromq/zmq4"

	"github.com/mt5crs/gateway/internal/observ"
	"github.com/mt5crs/gateway/internal/protocol"
)

// Handler processes one validated command request. It runs on the server
// loop goroutine; a returned error becomes an INTERNAL error response.
type Handler interface {
	Handle(req protocol.Request) (protocol.Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req protocol.Request) (protocol.Response, error)

func (f HandlerFunc) Handle(req protocol.Request) (protocol.Response, error) { return f(req) }

// Server is the REP side of the command channel, used by the MT5 stub and
// by tests. Every received frame gets exactly one reply; decode, action,
// and handler failures all answer with a structured error response so a bad
// request can never wedge the REQ/REP lockstep or kill the loop.
type Server struct {
	sock zmq4.Socket
	h    Handler
}

func NewServer(ctx context.Context, endpoint string, h Handler) (*Server, error) {
	sock := zmq4.NewRep(ctx)
	if err := sock.Listen(endpoint); err != nil {
		return nil, err
	}
	return &Server{sock: sock, h: h}, nil
}

// Addr returns the bound listener address (useful with port 0 endpoints).
func (s *Server) Addr() net.Addr { return s.sock.Addr() }

// Serve answers requests until the context is cancelled or the socket
// closes. Receive errors after cancellation return nil.
func (s *Server) Serve(ctx context.Context) error {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		resp := s.respond(msg.Bytes())
		data, err := protocol.EncodeResponse(resp)
		if err != nil {
			// Responses are plain structs; this should be unreachable.
			data, _ = protocol.EncodeResponse(protocol.Errf(protocol.CodeInternal, "encode response"))
		}
		if err := s.sock.Send(zmq4.NewMsg(data)); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) respond(frame []byte) protocol.Response {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		observ.IncCounter("gateway_server_errors_total", map[string]string{"code": string(protocol.CodeInvalidJSON)})
		return protocol.Errf(protocol.CodeInvalidJSON, "malformed request: %v", err)
	}
	if _, err := protocol.ParseAction(string(req.Action)); err != nil {
		observ.IncCounter("gateway_server_errors_total", map[string]string{"code": string(protocol.CodeUnknownAction)})
		return protocol.Errf(protocol.CodeUnknownAction, "%v", err)
	}
	if err := protocol.Validate(req); err != nil {
		observ.IncCounter("gateway_server_errors_total", map[string]string{"code": string(protocol.CodeMissingField)})
		return protocol.Errf(protocol.CodeMissingField, "%v", err)
	}

	resp, err := s.h.Handle(req)
	if err != nil {
		var fe *protocol.FieldError
		if errors.As(err, &fe) {
			return protocol.Errf(protocol.CodeMissingField, "%v", fe)
		}
		observ.Log("gateway_handler_error", map[string]any{
			"action": string(req.Action),
			"uuid":   req.UUID,
			"error":  err.Error(),
		})
		observ.IncCounter("gateway_server_errors_total", map[string]string{"code": string(protocol.CodeInternal)})
		return protocol.Errf(protocol.CodeInternal, "%v", err)
	}
	observ.IncCounter("gateway_server_requests_total", map[string]string{"action": string(req.Action)})
	return resp
}

func (s *Server) Close() error { return s.sock.Close() }
