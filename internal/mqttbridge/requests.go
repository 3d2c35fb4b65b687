package mqttbridge

import (
	"context"
	"encoding/json"
	"time"
)

type uiRequestPayload struct {
	RequestID string `json:"request_id"`
}

// SendUITreeRequest publishes a UI tree request to a companion app and
// blocks until the matching response arrives on the device's UI response
// topic (matched by request_id) or the context expires.
func (b *Bridge) SendUITreeRequest(ctx context.Context, effectiveDeviceID string) (json.RawMessage, error) {
	requestID := newRequestID()
	ch := make(chan []byte, 1)

	b.commands.pendingMu.Lock()
	b.commands.pending[requestID] = ch
	b.commands.pendingMu.Unlock()

	defer func() {
		b.commands.pendingMu.Lock()
		delete(b.commands.pending, requestID)
		b.commands.pendingMu.Unlock()
	}()

	body, err := json.Marshal(uiRequestPayload{RequestID: requestID})
	if err != nil {
		return nil, err
	}
	if err := b.client.Publish(b.topics.UIRequest(effectiveDeviceID), body, 1, false); err != nil {
		return nil, err
	}

	select {
	case tree := <-ch:
		return tree, nil
	case <-ctx.Done():
		return nil, ErrRequestTimeout
	}
}

// WithTimeout is a small convenience for callers that want a bounded
// SendUITreeRequest without building their own context.
func WithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

type flowExecutePayload struct {
	FlowID string          `json:"flow_id"`
	Steps  json.RawMessage `json:"steps"`
}

// SendFlowExecuteRequest publishes a flow-execution command to a companion
// app and blocks until it self-reports a result on the device's flow-result
// topic, or ctx expires. Used by the scheduler's Execution Router when
// dispatching a flow to run client-side instead of through the local
// Executor.
func (b *Bridge) SendFlowExecuteRequest(ctx context.Context, effectiveDeviceID, flowID string, steps json.RawMessage) (json.RawMessage, error) {
	ch := make(chan []byte, 1)
	key := flowFutureKey(effectiveDeviceID, flowID)

	b.commands.pendingFlowsMu.Lock()
	b.commands.pendingFlows[key] = ch
	b.commands.pendingFlowsMu.Unlock()

	defer func() {
		b.commands.pendingFlowsMu.Lock()
		delete(b.commands.pendingFlows, key)
		b.commands.pendingFlowsMu.Unlock()
	}()

	body, err := json.Marshal(flowExecutePayload{FlowID: flowID, Steps: steps})
	if err != nil {
		return nil, err
	}
	if err := b.client.Publish(b.topics.FlowExecute(effectiveDeviceID, flowID), body, 1, false); err != nil {
		return nil, err
	}

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return nil, ErrRequestTimeout
	}
}
