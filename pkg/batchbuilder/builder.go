// Copyright 2025 Certen Protocol
//
// Batch Builder - turns verified upstream requests into a single signed
// Batch and submits it to the validator, then hands off confirmation
// tracking. Grounded on the teacher's pkg/batch/processor.go shape: a
// struct holding its collaborators behind small interfaces, a
// BuildAndSubmit entry point, and sentinel errors in errors.go.

package batchbuilder

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/airanchor/gateway/pkg/address"
	"github.com/airanchor/gateway/pkg/caclient"
	"github.com/airanchor/gateway/pkg/gwerrors"
	"github.com/airanchor/gateway/pkg/signer"
	"github.com/airanchor/gateway/pkg/wire"
)

const (
	familyName    = "AirAnchor"
	familyVersion = "1.0"
)

// CAClient is the subset of *caclient.Client the builder depends on.
type CAClient interface {
	SignCSR(ctx context.Context, req caclient.SignRequest) (string, error)
}

// ValidatorClient is the subset of *validatorclient.Client the builder
// depends on.
type ValidatorClient interface {
	Submit(batchList *wire.BatchList) error
}

// ListenerSpawner abstracts the confirmation package so the builder does
// not import it directly - the same interface-seam idiom the teacher
// uses for its AnchorCreator, there "to avoid circular imports".
type ListenerSpawner interface {
	Spawn(ctx context.Context, payloadHash, sender, signerPubKey string)
}

// Result summarizes the outcome of one BuildAndSubmit call.
type Result struct {
	BatchID  string
	Accepted int
	Dropped  int
}

// Builder is the batch builder.
type Builder struct {
	signer    *signer.Signer
	ca        CAClient
	validator ValidatorClient
	listeners ListenerSpawner
	logger    *log.Logger
}

// Config configures a Builder.
type Config struct {
	Signer          *signer.Signer
	CAClient        CAClient
	ValidatorClient ValidatorClient
	Listeners       ListenerSpawner
	Logger          *log.Logger
}

// New builds a Builder.
func New(cfg Config) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[BatchBuilder] ", log.LstdFlags)
	}
	return &Builder{
		signer:    cfg.Signer,
		ca:        cfg.CAClient,
		validator: cfg.ValidatorClient,
		listeners: cfg.Listeners,
		logger:    logger,
	}
}

// BuildAndSubmit verifies each request's signature (dropping invalid
// ones silently), calls the CA for each survivor, builds one signed
// Transaction per survivor and one signed Batch over all of them,
// submits the batch, and on success spawns one confirmation listener per
// transaction.
//
// A CA failure aborts the whole batch: nothing is submitted and the
// error is returned, on which the dispatcher rejects every drained
// message without requeue.
func (b *Builder) BuildAndSubmit(ctx context.Context, requests []*wire.Request) (*Result, error) {
	if len(requests) == 0 {
		return nil, ErrEmptyRequests
	}

	var (
		transactions  []*wire.Transaction
		payloadHashes []string
		senders       []string
		dropped       int
	)

	for _, req := range requests {
		ok, err := req.Verify()
		if err != nil || !ok {
			dropped++
			b.logger.Printf("dropping request from %s: %v", req.Header.SenderPublicKey, errOrInvalid(err))
			continue
		}

		tx, payloadHash, err := b.buildTransaction(ctx, req)
		if err != nil {
			return nil, err
		}

		transactions = append(transactions, tx)
		payloadHashes = append(payloadHashes, payloadHash)
		senders = append(senders, req.Header.SenderPublicKey)
	}

	if len(transactions) == 0 {
		return &Result{Dropped: dropped}, nil
	}

	batch, err := b.buildBatch(transactions)
	if err != nil {
		return nil, err
	}

	batchList := &wire.BatchList{Batches: []*wire.Batch{batch}}
	if err := b.validator.Submit(batchList); err != nil {
		return nil, err
	}

	for i, hash := range payloadHashes {
		b.listeners.Spawn(ctx, hash, senders[i], b.signer.PublicKeyHex())
	}

	return &Result{
		BatchID:  batch.HeaderSignature,
		Accepted: len(transactions),
		Dropped:  dropped,
	}, nil
}

// buildTransaction calls the CA, builds the payload and the transaction
// header, and signs both with the batcher's own key - never the
// client's.
func (b *Builder) buildTransaction(ctx context.Context, req *wire.Request) (*wire.Transaction, string, error) {
	csrBytes, err := req.Header.CertificateRequest.Serialize()
	if err != nil {
		return nil, "", fmt.Errorf("serialize csr: %w", err)
	}

	caSig, err := b.ca.SignCSR(ctx, caclient.SignRequest{
		DistinguishedName: req.Header.CertificateRequest.DistinguishedName,
		PublicKey:         req.Header.CertificateRequest.PublicKey,
		OptionalParams:    req.Header.CertificateRequest.OptionalParams,
	})
	if err != nil {
		return nil, "", err
	}

	nonce, err := randomNonceHex()
	if err != nil {
		return nil, "", err
	}

	payload := &wire.Payload{
		CertificateRequest:            hex.EncodeToString(csrBytes),
		CertificateAuthoritySignature: caSig,
		SenderPublicKey:               req.Header.SenderPublicKey,
		Nonce:                         nonce,
		Data:                          req.Header.Data,
	}

	payloadBytes, err := payload.Serialize()
	if err != nil {
		return nil, "", fmt.Errorf("serialize payload: %w", err)
	}
	payloadHash, err := payload.Hash()
	if err != nil {
		return nil, "", fmt.Errorf("hash payload: %w", err)
	}

	addr := address.Derive(req.Header.SenderPublicKey, payloadHash)
	txNonce, err := randomNonceHex()
	if err != nil {
		return nil, "", err
	}

	header := &wire.TransactionHeader{
		FamilyName:       familyName,
		FamilyVersion:    familyVersion,
		Inputs:           []string{addr},
		Outputs:          []string{addr},
		PayloadSHA512:    payloadHash,
		BatcherPublicKey: b.signer.PublicKeyHex(),
		SignerPublicKey:  b.signer.PublicKeyHex(),
		Nonce:            txNonce,
	}
	headerBytes := header.Marshal()

	headerSig, err := b.signer.Sign(headerBytes)
	if err != nil {
		return nil, "", fmt.Errorf("sign transaction header: %w", err)
	}

	return &wire.Transaction{
		Header:          headerBytes,
		HeaderSignature: headerSig,
		Payload:         payloadBytes,
	}, payloadHash, nil
}

// buildBatch wraps transactions in order and signs the batch header.
// header.transaction_ids preserves the transactions' order exactly: this
// is the batch's commitment to execution order.
func (b *Builder) buildBatch(transactions []*wire.Transaction) (*wire.Batch, error) {
	ids := make([]string, len(transactions))
	for i, tx := range transactions {
		ids[i] = tx.HeaderSignature
	}

	header := &wire.BatchHeader{
		SignerPublicKey: b.signer.PublicKeyHex(),
		TransactionIDs:  ids,
	}
	headerBytes := header.Marshal()

	sig, err := b.signer.Sign(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("sign batch header: %w", err)
	}

	return &wire.Batch{
		Header:          headerBytes,
		HeaderSignature: sig,
		Transactions:    transactions,
	}, nil
}

func randomNonceHex() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func errOrInvalid(err error) error {
	if err != nil {
		return err
	}
	return gwerrors.ErrInvalidSignature
}
