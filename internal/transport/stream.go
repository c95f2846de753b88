// Package transport frames protocol messages as newline-delimited JSON over
// a byte stream (stdio) or TCP connections, one session per stream.
//
// A session handles one request at a time in arrival order. Reads happen on
// a separate goroutine so that a cancelled context ends the session even
// while the peer is idle.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vibeteam/vibeteam-mcp/internal/protocol"
)

// ErrWrite wraps failures writing a response. It is fatal for the session.
var ErrWrite = errors.New("transport: write failed")

// maxLineSize bounds a single message. Longer lines are discarded and
// answered with an invalid request error.
var maxLineSize = 16 << 20

var errLineTooLong = errors.New("transport: message too long")

// Handler processes one request; nil means no response.
type Handler interface {
	Handle(ctx context.Context, req *protocol.Request) *protocol.Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *protocol.Request) *protocol.Response {
	return f(ctx, req)
}

// SessionHooks observe session lifetimes.
type SessionHooks struct {
	OnOpen  func(id string)
	OnClose func(id string)
}

type readResult struct {
	line []byte
	err  error
}

// ServeStream runs one session over r and w until r reaches EOF, ctx is
// cancelled, a shutdown request has been answered, or a write fails.
// Only write failures are reported, wrapped in ErrWrite.
func ServeStream(ctx context.Context, r io.Reader, w io.Writer, h Handler, logger *slog.Logger) error {
	return ServeStreamWithHooks(ctx, r, w, h, logger, SessionHooks{})
}

// ServeStreamWithHooks is ServeStream with session lifetime hooks.
func ServeStreamWithHooks(ctx context.Context, r io.Reader, w io.Writer, h Handler, logger *slog.Logger, hooks SessionHooks) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sid := uuid.NewString()
	ctx = protocol.WithSessionID(ctx, sid)
	logger = logger.With("session", sid)
	logger.Info("session opened")
	if hooks.OnOpen != nil {
		hooks.OnOpen(sid)
	}
	defer func() {
		if hooks.OnClose != nil {
			hooks.OnClose(sid)
		}
		logger.Info("session closed")
	}()

	lines := make(chan readResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		br := bufio.NewReaderSize(r, 64*1024)
		for {
			line, err := readLine(br)
			select {
			case lines <- readResult{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil && !errors.Is(err, errLineTooLong) {
				return
			}
		}
	}()

	enc := newEncoder(w)
	for {
		var rr readResult
		select {
		case <-ctx.Done():
			return nil
		case rr = <-lines:
		}

		if errors.Is(rr.err, errLineTooLong) {
			logger.Warn("message too long", "limit", maxLineSize)
			resp := protocol.NewErrorResponse(nil, protocol.NewError(protocol.CodeInvalidRequest,
				fmt.Sprintf("Invalid Request: message exceeds %d bytes", maxLineSize)))
			if err := enc.write(resp); err != nil {
				logger.Error("write failed", "error", err)
				return err
			}
			continue
		}

		if len(bytes.TrimSpace(rr.line)) > 0 {
			resp, method := decodeAndHandle(ctx, rr.line, h, logger)
			if resp != nil {
				if err := enc.write(resp); err != nil {
					logger.Error("write failed", "error", err)
					return err
				}
			}
			if method == protocol.MethodShutdown {
				logger.Info("shutdown requested")
				return nil
			}
		}

		if rr.err != nil {
			if !errors.Is(rr.err, io.EOF) {
				logger.Warn("read failed", "error", rr.err)
			}
			return nil
		}
	}
}

func decodeAndHandle(ctx context.Context, line []byte, h Handler, logger *slog.Logger) (*protocol.Response, string) {
	var req protocol.Request
	if err := json.Unmarshal(line, &req); err != nil {
		var member *protocol.MemberError
		switch {
		case errors.As(err, &member):
			logger.Warn("invalid request", "error", err)
			return protocol.NewErrorResponse(member.ResponseID(),
				protocol.NewError(protocol.CodeInvalidRequest, "Invalid Request: "+member.Member+" has the wrong type")), ""
		case json.Valid(bytes.TrimSpace(line)):
			logger.Warn("invalid request", "error", err)
			return protocol.NewErrorResponse(nil, protocol.NewError(protocol.CodeInvalidRequest, "Invalid Request")), ""
		}
		logger.Warn("parse error", "error", err)
		return protocol.ParseError(err.Error()), ""
	}
	if req.Method == "" {
		logger.Warn("request without method")
		if req.IsNotification() {
			return nil, ""
		}
		return protocol.NewErrorResponse(req.ResponseID(),
			protocol.NewError(protocol.CodeInvalidRequest, "Invalid Request: missing method")), ""
	}
	return h.Handle(ctx, &req), req.Method
}

// readLine returns the next newline-terminated line without the terminator.
// A final unterminated line is returned together with io.EOF. A line longer
// than maxLineSize is consumed up to its terminator and reported as
// errLineTooLong.
func readLine(br *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice('\n')
		if len(buf)+len(bytes.TrimRight(chunk, "\r\n")) > maxLineSize {
			for errors.Is(err, bufio.ErrBufferFull) {
				_, err = br.ReadSlice('\n')
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return nil, err
			}
			return nil, errLineTooLong
		}
		buf = append(buf, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(buf, "\r\n"), err
	}
}

type encoder struct {
	w io.Writer
}

func newEncoder(w io.Writer) *encoder {
	return &encoder{w: w}
}

func (e *encoder) write(resp *protocol.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		// Unencodable handler result.
		data, _ = json.Marshal(protocol.NewErrorResponse(resp.ID,
			protocol.NewError(protocol.CodeInternalError, "Internal error: "+err.Error())))
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}
	return nil
}
