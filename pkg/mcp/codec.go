package mcp

import (
	"encoding/json"
	"io"
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/tmaxmax/go-sse"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/billagent", "mcp")

// EncodeRequest encodes a request envelope. The id must be unique per
// in-flight request; callers use a random UUID.
func EncodeRequest(method string, params any, id string) ([]byte, error) {
	msg := Message{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %s params", method)
		}
		msg.Params = bs
	}
	return json.Marshal(msg)
}

// EncodeNotification encodes a one-way notification envelope.
func EncodeNotification(method string, params any) ([]byte, error) {
	msg := Message{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}
	if params != nil {
		bs, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %s params", method)
		}
		msg.Params = bs
	}
	return json.Marshal(msg)
}

// DecodeMessage decodes a single envelope from one wire record.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Wrap(err, "failed to decode envelope")
	}
	if msg.JSONRPC != JSONRPCVersion {
		return Message{}, errors.Errorf("unsupported jsonrpc version: %q", msg.JSONRPC)
	}
	return msg, nil
}

// decodeEventStream yields envelopes decoded from the SSE records of r,
// one per `data:` record. Comments and keepalive records that do not
// carry valid JSON are logged and skipped; a malformed record never
// aborts the remainder of the stream. The sequence ends when the
// reader is exhausted or the consumer stops.
func decodeEventStream(r io.Reader) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		for ev, err := range sse.Read(r, nil) {
			if err != nil {
				// Connection-level failure; the stream is done.
				logger.KV(xlog.DEBUG, "status", "event_stream_closed", "err", err.Error())
				return
			}
			if ev.Data == "" {
				continue
			}
			msg, err := DecodeMessage([]byte(ev.Data))
			if err != nil {
				logger.KV(xlog.WARNING,
					"status", "skipping_malformed_record",
					"err", err.Error(),
				)
				continue
			}
			if !yield(msg) {
				return
			}
		}
	}
}
