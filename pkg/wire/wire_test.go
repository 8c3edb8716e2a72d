package wire

import (
	"testing"
)

func TestPayloadHashIsStableAndDeterministic(t *testing.T) {
	p := &Payload{
		CertificateRequest:            "csr-hex",
		CertificateAuthoritySignature: "ca-sig",
		SenderPublicKey:               "pubkey",
		Nonce:                         "nonce123",
		Data:                          "hello",
	}
	h1, err := p.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := p.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable hash, got %s != %s", h1, h2)
	}
	if len(h1) != 128 {
		t.Fatalf("expected 128 hex chars (sha512), got %d", len(h1))
	}
}

func TestPayloadSerializeIsDeterministicAcrossInstances(t *testing.T) {
	a := &Payload{CertificateRequest: "x", SenderPublicKey: "y", Nonce: "z", Data: "d"}
	b := &Payload{CertificateRequest: "x", SenderPublicKey: "y", Nonce: "z", Data: "d"}

	sa, err := a.Serialize()
	if err != nil {
		t.Fatalf("Serialize a: %v", err)
	}
	sb, err := b.Serialize()
	if err != nil {
		t.Fatalf("Serialize b: %v", err)
	}
	if string(sa) != string(sb) {
		t.Fatal("expected identical canonical encodings for identical payloads")
	}
}

func TestRequestEncodeDecodeRoundTrip(t *testing.T) {
	req := &Request{
		Header: RequestHeader{
			SenderPublicKey: "abc123",
			CertificateRequest: CertificateRequest{
				DistinguishedName: "CN=test",
				PublicKey:         "abc123",
			},
			Data: "payload-data",
		},
		Signature: "deadbeef",
	}

	encoded, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Header.SenderPublicKey != req.Header.SenderPublicKey {
		t.Fatalf("SenderPublicKey mismatch: %s != %s", decoded.Header.SenderPublicKey, req.Header.SenderPublicKey)
	}
	if decoded.Header.Data != req.Header.Data {
		t.Fatalf("Data mismatch: %s != %s", decoded.Header.Data, req.Header.Data)
	}
	if decoded.Signature != req.Signature {
		t.Fatalf("Signature mismatch: %s != %s", decoded.Signature, req.Signature)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xff, 0x00, 0x01, 0x02}); err == nil {
		t.Fatal("expected decode error on malformed bytes")
	}
}

func TestTransactionHeaderRoundTrip(t *testing.T) {
	h := &TransactionHeader{
		FamilyName:       "AirAnchor",
		FamilyVersion:    "1.0",
		Inputs:           []string{"addr1"},
		Outputs:          []string{"addr1"},
		PayloadSHA512:    "deadbeef",
		BatcherPublicKey: "batcherpub",
		SignerPublicKey:  "signerpub",
		Nonce:            "nonce",
	}
	encoded := h.Marshal()
	decoded, err := UnmarshalTransactionHeader(encoded)
	if err != nil {
		t.Fatalf("UnmarshalTransactionHeader: %v", err)
	}
	if decoded.FamilyName != h.FamilyName || decoded.SignerPublicKey != h.SignerPublicKey {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, h)
	}
	if len(decoded.Inputs) != 1 || decoded.Inputs[0] != "addr1" {
		t.Fatalf("expected inputs round trip, got %v", decoded.Inputs)
	}
}

func TestBatchHeaderPreservesTransactionIDOrder(t *testing.T) {
	h := &BatchHeader{
		SignerPublicKey: "batcherpub",
		TransactionIDs:  []string{"sig3", "sig1", "sig2"},
	}
	decoded, err := UnmarshalBatchHeader(h.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalBatchHeader: %v", err)
	}
	for i, want := range h.TransactionIDs {
		if decoded.TransactionIDs[i] != want {
			t.Fatalf("transaction id order mismatch at %d: %s != %s", i, decoded.TransactionIDs[i], want)
		}
	}
}

func TestBatchListRoundTripWithMultipleTransactions(t *testing.T) {
	tx1 := &Transaction{Header: []byte("h1"), HeaderSignature: "sig1", Payload: []byte("p1")}
	tx2 := &Transaction{Header: []byte("h2"), HeaderSignature: "sig2", Payload: []byte("p2")}
	batch := &Batch{
		Header:          []byte("batch-header"),
		HeaderSignature: "batch-sig",
		Transactions:    []*Transaction{tx1, tx2},
	}
	list := &BatchList{Batches: []*Batch{batch}}

	decoded, err := UnmarshalBatchList(list.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalBatchList: %v", err)
	}
	if len(decoded.Batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(decoded.Batches))
	}
	got := decoded.Batches[0]
	if got.HeaderSignature != "batch-sig" {
		t.Fatalf("header signature mismatch: %s", got.HeaderSignature)
	}
	if len(got.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got.Transactions))
	}
	if got.Transactions[0].HeaderSignature != "sig1" || got.Transactions[1].HeaderSignature != "sig2" {
		t.Fatal("transaction order not preserved")
	}
}

func TestClientBatchSubmitResponseStatuses(t *testing.T) {
	cases := []int32{StatusOK, StatusInvalidBatch, StatusQueueFull}
	for _, status := range cases {
		r := &ClientBatchSubmitResponse{Status: status}
		decoded, err := UnmarshalClientBatchSubmitResponse(r.Marshal())
		if err != nil {
			t.Fatalf("UnmarshalClientBatchSubmitResponse: %v", err)
		}
		if decoded.Status != status {
			t.Fatalf("status mismatch: %d != %d", decoded.Status, status)
		}
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	e := &Envelope{
		MessageType:   MessageTypeClientBatchSubmitRequest,
		CorrelationID: "corr-1",
		Content:       []byte("batch-list-bytes"),
	}
	decoded, err := UnmarshalEnvelope(e.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if decoded.MessageType != e.MessageType || decoded.CorrelationID != e.CorrelationID {
		t.Fatalf("envelope mismatch: %+v != %+v", decoded, e)
	}
	if string(decoded.Content) != string(e.Content) {
		t.Fatal("content mismatch")
	}
}
