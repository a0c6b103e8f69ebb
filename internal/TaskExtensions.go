package internal

import (
	"context"
	"fmt"
	"time"
)

// ActionTimeoutTaskCallback represents a callback function that performs a task with a cancellation context
type ActionTimeoutTaskCallback[T any] func(ctx context.Context) (T, error)

// ActionOnTimeOutRetry represents a callback function invoked on retry after a timeout or error
type ActionOnTimeOutRetry func(retryAttemptCount, retryAttemptTotal, timeOutSecond, timeOutStep int)

// DefaultTimeoutSec is the default timeout duration in seconds
const DefaultTimeoutSec = 20

// DefaultRetryAttempt is the default number of retry attempts
const DefaultRetryAttempt = 10

// DefaultManifestTimeoutSec bounds one attempt at downloading a manifest body.
const DefaultManifestTimeoutSec = 120

// WaitForRetry runs callback until it succeeds, giving every attempt its own
// timeout that grows by timeoutStep. Attempts follow each other immediately.
// Nil options fall back to the defaults.
func WaitForRetry[T any](
	ctx context.Context,
	callback ActionTimeoutTaskCallback[T],
	timeout *int,
	timeoutStep *int,
	retryAttempt *int,
	actionOnRetry ActionOnTimeOutRetry,
) (T, error) {
	var zero T

	timeoutVal := DefaultTimeoutSec
	if timeout != nil {
		timeoutVal = *timeout
	}
	retryAttemptVal := DefaultRetryAttempt
	if retryAttempt != nil {
		retryAttemptVal = *retryAttempt
	}
	timeoutStepVal := 0
	if timeoutStep != nil {
		timeoutStepVal = *timeoutStep
	}

	var lastError error
	for attempt := 1; attempt <= retryAttemptVal; attempt++ {
		result, err := runWithTimeout(ctx, callback, time.Duration(timeoutVal)*time.Second)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		lastError = err
		PushLogWarning(nil, fmt.Sprintf("The operation has failed! Retrying attempt: %d/%d\n%v", attempt, retryAttemptVal, err))

		if actionOnRetry != nil {
			actionOnRetry(attempt, retryAttemptVal, timeoutVal, timeoutStepVal)
		}
		timeoutVal += timeoutStepVal
	}

	if lastError != nil {
		return zero, lastError
	}
	return zero, fmt.Errorf("the operation has timed out after %d attempts", retryAttemptVal)
}

func runWithTimeout[T any](ctx context.Context, callback ActionTimeoutTaskCallback[T], timeout time.Duration) (T, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := callback(timeoutCtx)
	if err != nil && ctx.Err() == nil && timeoutCtx.Err() != nil {
		err = fmt.Errorf("operation timed out: %w", err)
	}
	return result, err
}

func intPtr(v int) *int {
	return &v
}
