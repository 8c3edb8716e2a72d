// Copyright 2025 Certen Protocol
//
// Package validatorclient submits batch lists to the blockchain
// validator over a persistent, length-prefixed binary connection and
// interprets its status response.

package validatorclient

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/airanchor/gateway/pkg/gwerrors"
	"github.com/airanchor/gateway/pkg/wire"
)

// submitTimeout is the fixed round-trip deadline per spec.
const submitTimeout = 5 * time.Second

// Client is a persistent connection to the validator's message bus.
// Submit is safe to call concurrently; calls are serialized internally
// since the underlying connection is a single ordered stream.
type Client struct {
	addr   string
	dialer net.Dialer
	logger *log.Logger

	mu   sync.Mutex
	conn net.Conn
}

// Config configures a Client.
type Config struct {
	Addr   string
	Logger *log.Logger
}

// New builds a Client. The connection is dialed lazily on first Submit.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[ValidatorClient] ", log.LstdFlags)
	}
	return &Client{
		addr:   strings.TrimPrefix(cfg.Addr, "tcp://"),
		logger: logger,
	}
}

// Submit sends a BatchList to the validator and returns nil on success.
// Status mapping: INVALID_BATCH -> gwerrors.ErrInvalidBatch, QUEUE_FULL ->
// gwerrors.ErrBackPressure, deadline exceeded -> gwerrors.ErrValidatorTimeout,
// anything else (including OK) -> success.
func (c *Client) Submit(batchList *wire.BatchList) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(); err != nil {
		return fmt.Errorf("validator connect failed: %w", err)
	}

	envelope := &wire.Envelope{
		MessageType:   wire.MessageTypeClientBatchSubmitRequest,
		CorrelationID: correlationID(),
		Content:       batchList.Marshal(),
	}

	if err := c.conn.SetDeadline(time.Now().Add(submitTimeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if err := writeFrame(c.conn, envelope.Marshal()); err != nil {
		c.closeLocked()
		if isTimeout(err) {
			return gwerrors.ErrValidatorTimeout
		}
		return fmt.Errorf("write to validator: %w", err)
	}

	respBytes, err := readFrame(c.conn)
	if err != nil {
		c.closeLocked()
		if isTimeout(err) {
			return gwerrors.ErrValidatorTimeout
		}
		return fmt.Errorf("read from validator: %w", err)
	}

	respEnvelope, err := wire.UnmarshalEnvelope(respBytes)
	if err != nil {
		return fmt.Errorf("unmarshal response envelope: %w", err)
	}

	resp, err := wire.UnmarshalClientBatchSubmitResponse(respEnvelope.Content)
	if err != nil {
		return fmt.Errorf("unmarshal submit response: %w", err)
	}

	switch resp.Status {
	case wire.StatusInvalidBatch:
		return gwerrors.ErrInvalidBatch
	case wire.StatusQueueFull:
		return gwerrors.ErrBackPressure
	default:
		return nil
	}
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// ensureConnected dials the validator if there is no live connection.
// Reconnection gets exactly one dial attempt; retrying the submission
// itself is out of scope.
func (c *Client) ensureConnected() error {
	if c.conn != nil {
		return nil
	}
	conn, err := c.dialer.Dial("tcp", c.addr)
	if err != nil {
		return err
	}
	c.logger.Printf("connected to validator at %s", c.addr)
	c.conn = conn
	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if e, ok := err.(net.Error); ok {
		netErr = e
		return netErr.Timeout()
	}
	return false
}

// writeFrame writes a 4-byte big-endian length prefix followed by body.
func writeFrame(w io.Writer, body []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// readFrame reads a 4-byte big-endian length prefix followed by body.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

var correlationCounter uint64
var correlationMu sync.Mutex

// correlationID produces a unique-enough, process-local correlation ID
// for a submit round trip. The validator never inspects its format.
func correlationID() string {
	correlationMu.Lock()
	defer correlationMu.Unlock()
	correlationCounter++
	return fmt.Sprintf("gateway-%d-%d", time.Now().UnixNano(), correlationCounter)
}
