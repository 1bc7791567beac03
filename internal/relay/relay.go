// Package relay subscribes to consent chaincode events and triggers
// coordinator re-syncs. A short debounce lets chain state settle and
// collapses event bursts into a single re-read; duplicate delivery is
// harmless because re-sync is idempotent.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperledger/fabric-gateway/pkg/client"
	"go.uber.org/zap"

	"github.com/MedVaultTech/ConsentNetwork/chaincode"
)

// EventSource is the slice of *client.Network the relay consumes.
type EventSource interface {
	ChaincodeEvents(ctx context.Context, chaincodeName string, opts ...client.ChaincodeEventsOption) (<-chan *client.ChaincodeEvent, error)
}

// Resyncer receives the debounced trigger.
type Resyncer interface {
	Resync(ctx context.Context) error
}

type Relay struct {
	events        EventSource
	chaincodeName string
	account       string
	debounce      time.Duration
	target        Resyncer
	log           *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func New(events EventSource, chaincodeName, account string, debounce time.Duration, target Resyncer, log *zap.Logger) *Relay {
	return &Relay{
		events:        events,
		chaincodeName: chaincodeName,
		account:       account,
		debounce:      debounce,
		target:        target,
		log:           log,
	}
}

// Start opens the event stream and launches the relay goroutine. The relay
// holds exactly one subscription; Close releases it. Start after Close opens
// a fresh subscription, so connect/disconnect cycles never leak listeners.
func (r *Relay) Start(ctx context.Context) error {
	if r.done != nil {
		return fmt.Errorf("relay already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := r.events.ChaincodeEvents(ctx, r.chaincodeName)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to chaincode events: %w", err)
	}

	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, events)

	r.log.Info("notification relay started",
		zap.String("chaincode", r.chaincodeName),
		zap.String("account", r.account))
	return nil
}

// Close cancels the subscription and waits for the relay goroutine to exit.
func (r *Relay) Close() {
	if r.done == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}

func (r *Relay) run(ctx context.Context, events <-chan *client.ChaincodeEvent) {
	defer close(r.done)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-events:
			if !ok {
				r.log.Warn("event stream closed")
				return
			}
			if !r.relevant(event) {
				continue
			}
			r.log.Debug("ledger event received",
				zap.String("event", event.EventName),
				zap.Uint64("block", event.BlockNumber))
			if timer == nil {
				timer = time.NewTimer(r.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(r.debounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			if err := r.target.Resync(ctx); err != nil {
				r.log.Warn("event-driven re-sync failed", zap.Error(err))
			}

		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// relevant filters events down to this session's account. Every consent
// event payload carries the subject patient ID.
func (r *Relay) relevant(event *client.ChaincodeEvent) bool {
	switch event.EventName {
	case chaincode.EventAccessRequested, chaincode.EventAccessApproved,
		chaincode.EventAccessRevoked, chaincode.EventEmergencyUnlock:
	default:
		return false
	}

	var payload struct {
		PatientID string `json:"patientID"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		r.log.Warn("undecodable event payload", zap.String("event", event.EventName))
		return false
	}
	return payload.PatientID == r.account
}
