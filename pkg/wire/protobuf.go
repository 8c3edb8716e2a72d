// Copyright 2025 Certen Protocol
//
// Hand-rolled protobuf wire encoding for the validator's fixed schemas
// (Hyperledger Sawtooth's transaction.proto, batch.proto and
// client_batch_submit.proto). These field numbers are an external
// contract: regenerate this file from the .proto sources if they ever
// change, do not redesign the message shapes.

package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Validator message envelope types, from validator.proto's MessageType
// enum. Only the two this gateway speaks are named.
const (
	MessageTypeClientBatchSubmitRequest  int32 = 204
	MessageTypeClientBatchSubmitResponse int32 = 205
)

// ClientBatchSubmitResponse status codes, from
// client_batch_submit.proto's ClientBatchSubmitResponse.Status enum.
const (
	StatusUnset        int32 = 0
	StatusOK           int32 = 1
	StatusInvalidBatch int32 = 2
	StatusQueueFull    int32 = 3
)

// TransactionHeader is transaction.proto's TransactionHeader message.
type TransactionHeader struct {
	FamilyName       string
	FamilyVersion    string
	Inputs           []string
	Outputs          []string
	Dependencies     []string
	PayloadSHA512    string
	BatcherPublicKey string
	SignerPublicKey  string
	Nonce            string
}

// Marshal encodes the header in protobuf wire format.
func (h *TransactionHeader) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, h.FamilyName)
	b = appendString(b, 2, h.FamilyVersion)
	b = appendRepeatedString(b, 3, h.Inputs)
	b = appendRepeatedString(b, 4, h.Outputs)
	b = appendRepeatedString(b, 5, h.Dependencies)
	b = appendString(b, 6, h.PayloadSHA512)
	b = appendString(b, 7, h.BatcherPublicKey)
	b = appendString(b, 8, h.SignerPublicKey)
	b = appendString(b, 9, h.Nonce)
	return b
}

// UnmarshalTransactionHeader decodes a TransactionHeader.
func UnmarshalTransactionHeader(b []byte) (*TransactionHeader, error) {
	h := &TransactionHeader{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			h.FamilyName = string(v)
		case 2:
			h.FamilyVersion = string(v)
		case 3:
			h.Inputs = append(h.Inputs, string(v))
		case 4:
			h.Outputs = append(h.Outputs, string(v))
		case 5:
			h.Dependencies = append(h.Dependencies, string(v))
		case 6:
			h.PayloadSHA512 = string(v)
		case 7:
			h.BatcherPublicKey = string(v)
		case 8:
			h.SignerPublicKey = string(v)
		case 9:
			h.Nonce = string(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal transaction header: %w", err)
	}
	return h, nil
}

// Transaction is transaction.proto's Transaction message.
type Transaction struct {
	Header          []byte
	HeaderSignature string
	Payload         []byte
}

// Marshal encodes the transaction in protobuf wire format.
func (t *Transaction) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, t.Header)
	b = appendString(b, 2, t.HeaderSignature)
	b = appendBytes(b, 3, t.Payload)
	return b
}

// UnmarshalTransaction decodes a Transaction.
func UnmarshalTransaction(b []byte) (*Transaction, error) {
	t := &Transaction{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			t.Header = append([]byte(nil), v...)
		case 2:
			t.HeaderSignature = string(v)
		case 3:
			t.Payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	return t, nil
}

// BatchHeader is batch.proto's BatchHeader message.
type BatchHeader struct {
	SignerPublicKey string
	TransactionIDs  []string
}

// Marshal encodes the header in protobuf wire format. Field order of
// TransactionIDs is significant: it is the batch's commitment to
// transaction execution order, per spec.
func (h *BatchHeader) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, h.SignerPublicKey)
	b = appendRepeatedString(b, 2, h.TransactionIDs)
	return b
}

// UnmarshalBatchHeader decodes a BatchHeader.
func UnmarshalBatchHeader(b []byte) (*BatchHeader, error) {
	h := &BatchHeader{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			h.SignerPublicKey = string(v)
		case 2:
			h.TransactionIDs = append(h.TransactionIDs, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal batch header: %w", err)
	}
	return h, nil
}

// Batch is batch.proto's Batch message.
type Batch struct {
	Header          []byte
	HeaderSignature string
	Transactions    []*Transaction
	Trace           bool
}

// Marshal encodes the batch in protobuf wire format.
func (b *Batch) Marshal() []byte {
	var out []byte
	out = appendBytes(out, 1, b.Header)
	out = appendString(out, 2, b.HeaderSignature)
	for _, tx := range b.Transactions {
		out = appendBytes(out, 3, tx.Marshal())
	}
	out = appendBool(out, 4, b.Trace)
	return out
}

// UnmarshalBatch decodes a Batch.
func UnmarshalBatch(b []byte) (*Batch, error) {
	batch := &Batch{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			batch.Header = append([]byte(nil), v...)
		case 2:
			batch.HeaderSignature = string(v)
		case 3:
			tx, err := UnmarshalTransaction(v)
			if err != nil {
				return err
			}
			batch.Transactions = append(batch.Transactions, tx)
		case 4:
			batch.Trace = len(v) == 1 && v[0] != 0
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal batch: %w", err)
	}
	return batch, nil
}

// BatchList is batch.proto's BatchList message, the top-level envelope
// submitted to the validator.
type BatchList struct {
	Batches []*Batch
}

// Marshal encodes the batch list in protobuf wire format.
func (l *BatchList) Marshal() []byte {
	var b []byte
	for _, batch := range l.Batches {
		b = appendBytes(b, 1, batch.Marshal())
	}
	return b
}

// UnmarshalBatchList decodes a BatchList.
func UnmarshalBatchList(b []byte) (*BatchList, error) {
	l := &BatchList{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 {
			batch, err := UnmarshalBatch(v)
			if err != nil {
				return err
			}
			l.Batches = append(l.Batches, batch)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal batch list: %w", err)
	}
	return l, nil
}

// ClientBatchSubmitResponse is client_batch_submit.proto's response
// message: just a status code.
type ClientBatchSubmitResponse struct {
	Status int32
}

// Marshal encodes the response in protobuf wire format.
func (r *ClientBatchSubmitResponse) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(r.Status))
	return b
}

// UnmarshalClientBatchSubmitResponse decodes a ClientBatchSubmitResponse.
func UnmarshalClientBatchSubmitResponse(b []byte) (*ClientBatchSubmitResponse, error) {
	r := &ClientBatchSubmitResponse{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 && typ == protowire.VarintType {
			val, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Status = int32(val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal client batch submit response: %w", err)
	}
	return r, nil
}

// Envelope is validator.proto's Message: the request/response wrapper
// exchanged over the persistent connection to the validator.
type Envelope struct {
	MessageType   int32
	CorrelationID string
	Content       []byte
}

// Marshal encodes the envelope in protobuf wire format.
func (e *Envelope) Marshal() []byte {
	var b []byte
	b = appendVarint(b, 1, uint64(e.MessageType))
	b = appendString(b, 2, e.CorrelationID)
	b = appendBytes(b, 3, e.Content)
	return b
}

// UnmarshalEnvelope decodes an Envelope.
func UnmarshalEnvelope(b []byte) (*Envelope, error) {
	e := &Envelope{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			val, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return protowire.ParseError(n)
			}
			e.MessageType = int32(val)
		case 2:
			e.CorrelationID = string(v)
		case 3:
			e.Content = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return e, nil
}

// --- field-level helpers shared by every message above ---

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendString(b, s)
	return b
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	b = protowire.AppendBytes(b, v)
	return b
}

func appendRepeatedString(b []byte, num protowire.Number, vals []string) []byte {
	for _, v := range vals {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	b = protowire.AppendVarint(b, 1)
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	b = protowire.AppendVarint(b, v)
	return b
}

// consumeMessage walks every top-level field of a protobuf message,
// handing the raw field value to fn. Varint fields are passed through as
// their raw (unparsed) bytes when fn needs the typed value itself, fn
// re-parses them with protowire.ConsumeVarint as needed.
func consumeMessage(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			val, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, b[:n]); err != nil {
				return err
			}
			_ = val
			b = b[n:]
		case protowire.BytesType:
			val, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := fn(num, typ, val); err != nil {
				return err
			}
			b = b[n:]
		case protowire.Fixed32Type:
			_, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		case protowire.Fixed64Type:
			_, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
