// Package discord speaks the Discord desktop client's local RPC protocol over
// its IPC socket (a unix socket, or a named pipe on Windows).
package discord

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/navsync/navsync/internal/presence"
)

const (
	opHandshake uint32 = 0
	opFrame     uint32 = 1
	opClose     uint32 = 2
	opPing      uint32 = 3
	opPong      uint32 = 4

	maxFrameSize = 1 << 20

	activityListening  = 2
	statusDisplayState = 1
)

var ErrNoDiscord = errors.New("discord: no ipc socket found")

// RPCError is an ERROR event or a close frame sent by the client.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("discord rpc error %d: %s", e.Code, e.Message)
}

type Options struct {
	ClientID string
	// Dial opens the IPC connection. Defaults to probing the platform's
	// well-known socket locations.
	Dial    func(ctx context.Context) (net.Conn, error)
	Logger  *slog.Logger
	Timeout time.Duration // per request, default 5s
	// MaxRetries and BaseDelay shape the dial retry loop.
	MaxRetries int
	BaseDelay  time.Duration
}

// Client implements presence.Display.
type Client struct {
	opts Options

	mu   sync.Mutex
	conn net.Conn
}

func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Dial == nil {
		opts.Dial = dialIPC
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 10
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 50 * time.Millisecond
	}
	return &Client{opts: opts}
}

// Connect dials the IPC socket and performs the handshake. An existing
// connection is dropped first.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	if err := c.handshake(ctx, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("discord handshake: %w", err)
	}
	c.conn = conn
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	maxDelay := 10 * c.opts.BaseDelay
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var err error
	for i := 0; i < c.opts.MaxRetries; i++ {
		var conn net.Conn
		conn, err = c.opts.Dial(ctx)
		if err == nil {
			c.opts.Logger.Debug("connected to discord ipc", slog.Int("attempt", i+1))
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("connect discord ipc: %w", ctx.Err())
		}
		if i == c.opts.MaxRetries-1 {
			break
		}
		delay := c.opts.BaseDelay * time.Duration(1<<uint(i))
		if delay > maxDelay {
			delay = maxDelay
		}
		jitter := time.Duration(float64(delay) * 0.2 * rng.Float64())
		c.opts.Logger.Debug("discord ipc connection failed, retrying", slog.Int("attempt", i+1), slog.Any("err", err), slog.Duration("delay", delay+jitter))
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect discord ipc: %w", ctx.Err())
		case <-time.After(delay + jitter):
		}
	}
	return nil, fmt.Errorf("connect discord ipc: %w", err)
}

func (c *Client) handshake(ctx context.Context, conn net.Conn) error {
	c.setDeadline(ctx, conn)
	defer conn.SetDeadline(time.Time{})

	if err := writeFrame(conn, opHandshake, map[string]any{"v": 1, "client_id": c.opts.ClientID}); err != nil {
		return err
	}
	op, body, err := readFrame(conn)
	if err != nil {
		return err
	}
	if op == opClose {
		return closeError(body)
	}
	var msg message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("decode handshake reply: %w", err)
	}
	switch msg.Evt {
	case "READY":
		return nil
	case "ERROR":
		return msg.rpcError()
	default:
		return fmt.Errorf("unexpected handshake reply %q", msg.Evt)
	}
}

type message struct {
	Cmd   string          `json:"cmd"`
	Evt   string          `json:"evt"`
	Nonce string          `json:"nonce"`
	Data  json.RawMessage `json:"data"`
}

func (m message) rpcError() error {
	e := &RPCError{}
	if err := json.Unmarshal(m.Data, e); err != nil {
		e.Message = string(m.Data)
	}
	return e
}

func closeError(body []byte) error {
	e := &RPCError{}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		e.Message = "connection closed by discord"
	}
	return e
}

type assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
}

type timestamps struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

type activity struct {
	Type              int         `json:"type"`
	StatusDisplayType int         `json:"status_display_type"`
	Details           string      `json:"details,omitempty"`
	State             string      `json:"state,omitempty"`
	Assets            *assets     `json:"assets,omitempty"`
	Timestamps        *timestamps `json:"timestamps,omitempty"`
}

type activityArgs struct {
	PID      int       `json:"pid"`
	Activity *activity `json:"activity,omitempty"`
}

type command struct {
	Cmd   string       `json:"cmd"`
	Args  activityArgs `json:"args"`
	Nonce string       `json:"nonce"`
}

func (c *Client) SetActivity(ctx context.Context, a presence.Activity) error {
	act := &activity{
		Type:              activityListening,
		StatusDisplayType: statusDisplayState,
		Details:           a.Details,
		State:             a.State,
		Assets:            &assets{LargeImage: a.LargeImage, LargeText: a.LargeText},
	}
	if a.Start != nil || a.End != nil {
		act.Timestamps = &timestamps{Start: a.Start, End: a.End}
	}
	return c.request(ctx, activityArgs{PID: os.Getpid(), Activity: act})
}

// ClearActivity sends SET_ACTIVITY without an activity.
func (c *Client) ClearActivity(ctx context.Context) error {
	return c.request(ctx, activityArgs{PID: os.Getpid()})
}

func (c *Client) request(ctx context.Context, args activityArgs) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return presence.ErrNotConnected
	}
	err := c.roundTrip(ctx, command{Cmd: "SET_ACTIVITY", Args: args, Nonce: uuid.NewString()})
	var rpcErr *RPCError
	if err != nil && !errors.As(err, &rpcErr) {
		// The stream is in an unknown state.
		_ = c.conn.Close()
		c.conn = nil
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, cmd command) error {
	conn := c.conn
	c.setDeadline(ctx, conn)
	defer conn.SetDeadline(time.Time{})

	if err := writeFrame(conn, opFrame, cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Cmd, err)
	}
	for {
		op, body, err := readFrame(conn)
		if err != nil {
			return fmt.Errorf("read %s reply: %w", cmd.Cmd, err)
		}
		switch op {
		case opPing:
			if err := writeRaw(conn, opPong, body); err != nil {
				return fmt.Errorf("pong: %w", err)
			}
			continue
		case opClose:
			return fmt.Errorf("discord closed the connection: %v", closeError(body))
		case opFrame:
		default:
			continue
		}
		var msg message
		if err := json.Unmarshal(body, &msg); err != nil {
			return fmt.Errorf("decode %s reply: %w", cmd.Cmd, err)
		}
		if msg.Nonce != cmd.Nonce {
			c.opts.Logger.Debug("ignoring discord event", slog.String("evt", msg.Evt), slog.String("cmd", msg.Cmd))
			continue
		}
		if msg.Evt == "ERROR" {
			return msg.rpcError()
		}
		return nil
	}
}

// Close sends a close frame and drops the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.Timeout))
	_ = writeFrame(c.conn, opClose, map[string]any{})
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) setDeadline(ctx context.Context, conn net.Conn) {
	deadline := time.Now().Add(c.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)
}

func writeFrame(w io.Writer, op uint32, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeRaw(w, op, body)
}

func writeRaw(w io.Writer, op uint32, body []byte) error {
	buf := make([]byte, 8+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], op)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(body)))
	copy(buf[8:], body)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (uint32, []byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	op := binary.LittleEndian.Uint32(hdr[0:4])
	n := binary.LittleEndian.Uint32(hdr[4:8])
	if n > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return op, body, nil
}
