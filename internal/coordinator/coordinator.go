// Package coordinator maintains the session-local view of access requests
// addressed to the signed-in patient and drives their resolution. The ledger
// stays the single source of truth: the local pending set is a read-through
// view, invalidated by re-syncs, and entries leave it only after a
// resolution transaction is confirmed.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MedVaultTech/ConsentNetwork/chaincode"
	"github.com/MedVaultTech/ConsentNetwork/internal/directory"
	"github.com/MedVaultTech/ConsentNetwork/internal/ledger"
)

// Ledger is the slice of the consent client the coordinator drives.
type Ledger interface {
	ResolveAccess(ctx context.Context, patientID, doctorID string, approve bool) error
	HasAccess(ctx context.Context, patientID, doctorID string) (bool, error)
	PendingRequests(ctx context.Context, patientID string, since time.Time) ([]chaincode.AccessRequest, error)
}

// Directory enriches pending requests with display metadata. Optional.
type Directory interface {
	DoctorByWallet(ctx context.Context, address string) (directory.Doctor, error)
}

// PendingRequest is one reviewable unit presented to the patient.
type PendingRequest struct {
	RequestID string
	DoctorID  string
	CreatedAt time.Time

	Doctor directory.Doctor
}

type Coordinator struct {
	ledger    Ledger
	directory Directory
	log       *zap.Logger
	patientID string
	lookback  time.Duration

	// actionMu serializes outgoing transactions for the session account so
	// user actions run one at a time.
	actionMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]*PendingRequest // by request ID
	inFlight map[string]bool
	resolved map[string]bool // confirmed but possibly not yet visible to reads
}

func New(l Ledger, dir Directory, patientID string, lookback time.Duration, log *zap.Logger) *Coordinator {
	return &Coordinator{
		ledger:    l,
		directory: dir,
		log:       log,
		patientID: patientID,
		lookback:  lookback,
		pending:   make(map[string]*PendingRequest),
		inFlight:  make(map[string]bool),
		resolved:  make(map[string]bool),
	}
}

// Resync rebuilds the pending set from the ledger within the lookback
// horizon. Requests from doctors who already hold a grant are dropped
// defensively (stale events). Entries with an in-flight resolution are
// preserved untouched: the submitted transaction is authoritative until its
// confirmation or failure arrives. Safe to call any number of times.
func (c *Coordinator) Resync(ctx context.Context) error {
	since := time.Now().Add(-c.lookback)

	requests, err := c.ledger.PendingRequests(ctx, c.patientID, since)
	if err != nil {
		return err
	}

	fresh := make(map[string]*PendingRequest, len(requests))
	for _, req := range requests {
		granted, err := c.ledger.HasAccess(ctx, c.patientID, req.DoctorID)
		if err != nil {
			return err
		}
		if granted {
			continue
		}
		fresh[req.RequestID] = &PendingRequest{
			RequestID: req.RequestID,
			DoctorID:  req.DoctorID,
			CreatedAt: time.Unix(req.CreatedDate, 0),
		}
	}

	// Carry over enrichment already fetched for surviving entries so the
	// directory is only consulted for genuinely new requests.
	c.mu.Lock()
	for id, entry := range fresh {
		if existing, ok := c.pending[id]; ok {
			entry.Doctor = existing.Doctor
		}
	}
	c.mu.Unlock()

	c.enrich(ctx, fresh)

	c.mu.Lock()
	defer c.mu.Unlock()

	// The ledger read above ran without the lock, so a resolution confirmed
	// in the meantime may still appear in it. Confirmed IDs are filtered out
	// until a read no longer reports them, then forgotten.
	for id := range c.resolved {
		if _, ok := fresh[id]; ok {
			delete(fresh, id)
		} else {
			delete(c.resolved, id)
		}
	}

	for id := range c.inFlight {
		if existing, ok := c.pending[id]; ok {
			fresh[id] = existing
		} else {
			delete(fresh, id)
		}
	}
	c.pending = fresh

	c.log.Debug("pending set re-synced", zap.Int("pending", len(fresh)))
	return nil
}

// Pending returns the current reviewable requests, newest first.
func (c *Coordinator) Pending() []PendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PendingRequest, 0, len(c.pending))
	for _, entry := range c.pending {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Approve grants the pending request. Idempotent: approving a request that
// is no longer pending reports ErrAlreadyResolved and changes nothing.
func (c *Coordinator) Approve(ctx context.Context, requestID string) error {
	return c.resolve(ctx, requestID, true)
}

// Reject declines the pending request, with the same idempotence as Approve.
func (c *Coordinator) Reject(ctx context.Context, requestID string) error {
	return c.resolve(ctx, requestID, false)
}

func (c *Coordinator) resolve(ctx context.Context, requestID string, approve bool) error {
	c.actionMu.Lock()
	defer c.actionMu.Unlock()

	c.mu.Lock()
	entry, ok := c.pending[requestID]
	if !ok {
		c.mu.Unlock()
		return ledger.ErrAlreadyResolved
	}
	c.inFlight[requestID] = true
	c.mu.Unlock()

	// Blocks until the transaction is committed or fails.
	err := c.ledger.ResolveAccess(ctx, c.patientID, entry.DoctorID, approve)

	c.mu.Lock()
	delete(c.inFlight, requestID)

	switch {
	case err == nil:
		// Removed only after confirmation, never optimistically.
		delete(c.pending, requestID)
		c.resolved[requestID] = true
		c.mu.Unlock()
		return nil

	case errors.Is(err, ledger.ErrAlreadyResolved):
		// A racing caller resolved it on the ledger first. Drop the stale
		// entry and re-sync instead of retrying blindly.
		delete(c.pending, requestID)
		c.resolved[requestID] = true
		c.mu.Unlock()
		if syncErr := c.Resync(ctx); syncErr != nil {
			c.log.Warn("re-sync after stale request failed", zap.Error(syncErr))
		}
		return ledger.ErrStaleRequest

	default:
		// UserCancelled, TransientChain or fatal: the request is still
		// pending on the ledger, so it stays pending locally.
		c.mu.Unlock()
		return err
	}
}

func (c *Coordinator) enrich(ctx context.Context, entries map[string]*PendingRequest) {
	if c.directory == nil {
		return
	}
	for _, entry := range entries {
		if entry.Doctor.Name != "" {
			continue
		}
		doctor, err := c.directory.DoctorByWallet(ctx, entry.DoctorID)
		if err != nil {
			c.log.Debug("directory lookup failed, using placeholder",
				zap.String("doctor", entry.DoctorID), zap.Error(err))
			doctor = directory.Placeholder(entry.DoctorID)
		}
		entry.Doctor = doctor
	}
}
