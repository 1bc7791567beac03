// Package ledger wraps the consent contract behind a typed client: business
// outcomes become sentinel errors, transient transport failures are retried
// with exponential backoff, and all calls honour context cancellation.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MedVaultTech/ConsentNetwork/chaincode"
)

// Invoker is the slice of *client.Contract the ledger client needs.
type Invoker interface {
	SubmitTransaction(name string, args ...string) ([]byte, error)
	EvaluateTransaction(name string, args ...string) ([]byte, error)
}

type Client struct {
	contract Invoker
	log      *zap.Logger

	maxAttempts int
	backoff     time.Duration
}

type Option func(*Client)

// WithRetry overrides the transient-failure retry policy.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.backoff = backoff
	}
}

func New(contract Invoker, log *zap.Logger, opts ...Option) *Client {
	c := &Client{
		contract:    contract,
		log:         log,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestAccess files an access request from doctor towards patient.
func (c *Client) RequestAccess(ctx context.Context, doctorID, patientID string) (string, error) {
	payload, err := c.submit(ctx, "consent:RequestAccess", doctorID, patientID)
	if err != nil {
		return "", err
	}

	var resp chaincode.RequestAccessResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return "", fmt.Errorf("failed to decode RequestAccess response: %w", err)
	}

	switch {
	case resp.AlreadyGranted:
		return "", ErrAlreadyGranted
	case resp.DuplicateRequest:
		return "", ErrDuplicateRequest
	case !resp.RequestSent:
		return "", fmt.Errorf("request was not recorded on the ledger")
	}

	c.log.Info("access request submitted",
		zap.String("doctor", doctorID),
		zap.String("patient", patientID),
		zap.String("requestID", resp.RequestID))
	return resp.RequestID, nil
}

// ResolveAccess approves or rejects the pending request for the pair. The
// call blocks until the transaction is committed.
func (c *Client) ResolveAccess(ctx context.Context, patientID, doctorID string, approve bool) error {
	payload, err := c.submit(ctx, "consent:ResolveAccess", patientID, doctorID, strconv.FormatBool(approve))
	if err != nil {
		return err
	}

	var resp chaincode.ResolveAccessResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("failed to decode ResolveAccess response: %w", err)
	}
	if resp.AlreadyResolved {
		return ErrAlreadyResolved
	}
	if !resp.Resolved {
		return fmt.Errorf("resolution was not recorded on the ledger")
	}

	c.log.Info("access request resolved",
		zap.String("doctor", doctorID),
		zap.String("patient", patientID),
		zap.Bool("approved", approve))
	return nil
}

// RevokeAccess revokes every live grant for the pair.
func (c *Client) RevokeAccess(ctx context.Context, patientID, doctorID string) error {
	payload, err := c.submit(ctx, "consent:RevokeAccess", patientID, doctorID)
	if err != nil {
		return err
	}

	var resp chaincode.RevokeAccessResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return fmt.Errorf("failed to decode RevokeAccess response: %w", err)
	}
	if resp.NoActiveGrant {
		return ErrNoActiveGrant
	}
	return nil
}

// HasAccess reports whether an unrevoked grant exists for the pair.
func (c *Client) HasAccess(ctx context.Context, patientID, doctorID string) (bool, error) {
	payload, err := c.evaluate(ctx, "consent:HasAccess", patientID, doctorID)
	if err != nil {
		return false, err
	}
	granted, err := strconv.ParseBool(string(payload))
	if err != nil {
		return false, fmt.Errorf("failed to decode HasAccess response: %w", err)
	}
	return granted, nil
}

// PendingRequests returns the patient's unresolved requests created since
// the given time.
func (c *Client) PendingRequests(ctx context.Context, patientID string, since time.Time) ([]chaincode.AccessRequest, error) {
	payload, err := c.evaluate(ctx, "consent:GetPendingRequests", patientID, strconv.FormatInt(since.Unix(), 10))
	if err != nil {
		return nil, err
	}

	var requests []chaincode.AccessRequest
	if err := json.Unmarshal(payload, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode pending requests: %w", err)
	}
	return requests, nil
}

// Grants returns the patient's full grant history, revoked entries included.
func (c *Client) Grants(ctx context.Context, patientID string) ([]chaincode.PermissionGrant, error) {
	payload, err := c.evaluate(ctx, "consent:GetGrants", patientID)
	if err != nil {
		return nil, err
	}

	var grants []chaincode.PermissionGrant
	if err := json.Unmarshal(payload, &grants); err != nil {
		return nil, fmt.Errorf("failed to decode grants: %w", err)
	}
	return grants, nil
}

func (c *Client) submit(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.invoke(ctx, name, args, c.contract.SubmitTransaction)
}

func (c *Client) evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	return c.invoke(ctx, name, args, c.contract.EvaluateTransaction)
}

func (c *Client) invoke(ctx context.Context, name string, args []string, call func(string, ...string) ([]byte, error)) ([]byte, error) {
	var lastErr error
	delay := c.backoff

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUserCancelled, ctx.Err())
		}

		payload, err := call(name, args...)
		if err == nil {
			return payload, nil
		}
		if !isTransient(err) {
			return nil, fmt.Errorf("%s failed: %w", name, err)
		}

		lastErr = err
		c.log.Warn("transient chain failure",
			zap.String("transaction", name),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUserCancelled, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("%w: %v", ErrTransientChain, lastErr)
}

// isTransient classifies gRPC transport failures worth retrying.
// Authorization failures and chaincode rejections are final.
func isTransient(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	}
	return false
}
