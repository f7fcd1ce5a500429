package gcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	crm "google.golang.org/api/cloudresourcemanager/v3"
	"google.golang.org/api/googleapi"
	serviceusage "google.golang.org/api/serviceusage/v1"
)

// ErrOperationTimeout marks a long-running operation that did not complete
// within its deadline. It wraps context.DeadlineExceeded so both sentinels
// match.
var ErrOperationTimeout = errors.New("gcp: operation timed out")

const pollInterval = 2 * time.Second

// waitCRMOperation polls a Resource Manager operation until it is done or the
// timeout elapses, returning the raw response message.
func (c *Client) waitCRMOperation(ctx context.Context, op *crm.Operation, timeout time.Duration) (googleapi.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if op.Done {
			if op.Error != nil {
				return nil, fmt.Errorf("operation %s failed: %s", op.Name, op.Error.Message)
			}
			return op.Response, nil
		}

		if err := sleepOrDone(ctx, op.Name); err != nil {
			return nil, err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, waitErr(op.Name, err)
		}

		next, err := c.crm.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return nil, waitErr(op.Name, err)
		}
		op = next
	}
}

// waitUsageOperation polls a Service Usage operation until done.
func (c *Client) waitUsageOperation(ctx context.Context, op *serviceusage.Operation, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if op.Done {
			if op.Error != nil {
				return fmt.Errorf("operation %s failed: %s", op.Name, op.Error.Message)
			}
			return nil
		}

		if err := sleepOrDone(ctx, op.Name); err != nil {
			return err
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return waitErr(op.Name, err)
		}

		next, err := c.usage.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return waitErr(op.Name, err)
		}
		op = next
	}
}

func sleepOrDone(ctx context.Context, opName string) error {
	select {
	case <-ctx.Done():
		return waitErr(opName, ctx.Err())
	case <-time.After(pollInterval):
		return nil
	}
}

func waitErr(opName string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("operation %s: %w: %w", opName, ErrOperationTimeout, err)
	}
	return fmt.Errorf("operation %s: %w", opName, err)
}
