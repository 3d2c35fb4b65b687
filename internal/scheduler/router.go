package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/scryerhq/scryer-core/internal/executor"
	"github.com/scryerhq/scryer-core/internal/store"
)

// companionRequiredCapabilities are the companion-app capabilities the
// "auto" method requires before it will prefer dispatching to the device
// over MQTT rather than running the flow through the local Executor.
var companionRequiredCapabilities = []string{"flow_execution", "accessibility_v2"}

// flowExecuteTimeout bounds how long "android" dispatch waits for a
// companion app to self-report its result before treating the dispatch as
// failed.
const flowExecuteTimeout = 30 * time.Second

// FlowRunner is the subset of *executor.Executor the router dispatches
// "server"-method flows through.
type FlowRunner interface {
	Run(ctx context.Context, sdid, cid string, flow *store.Flow, mode executor.Mode) (*executor.Result, error)
}

// companionDispatcher is the subset of *mqttbridge.Bridge the router needs
// to check companion capabilities and hand a flow to one over MQTT.
type companionDispatcher interface {
	HasCapability(effectiveDeviceID, capability string) bool
	SendFlowExecuteRequest(ctx context.Context, effectiveDeviceID, flowID string, steps json.RawMessage) (json.RawMessage, error)
}

// dispatchResult is what the Execution Router reports back to the
// per-device worker, independent of which method actually ran the flow.
type dispatchResult struct {
	Succeeded    bool
	UsedFallback bool
	Method       string // "server" or "android"
	Err          error
}

// dispatch implements the Execution Router (§4.7.4): "server" always runs
// locally; "android" always hands off to the companion app; "auto" prefers
// the companion app when it currently advertises both required
// capabilities (unless the flow names a PreferredExecutor override),
// falling back to the other method on failure and marking used_fallback.
func dispatch(ctx context.Context, runner FlowRunner, bridge companionDispatcher, sdid, cid string, flow *store.Flow, mode executor.Mode) dispatchResult {
	method := flow.PreferredExecutor
	if method == "" {
		method = "auto"
	}

	switch method {
	case "server":
		return runServer(ctx, runner, sdid, cid, flow, mode, "server")
	case "android":
		return runAndroid(ctx, bridge, sdid, flow, "android")
	default: // "auto"
		if bridgeCanRunClientSide(bridge, sdid) {
			result := runAndroid(ctx, bridge, sdid, flow, "auto")
			if result.Succeeded {
				return result
			}
			fallback := runServer(ctx, runner, sdid, cid, flow, mode, "auto")
			fallback.UsedFallback = true
			return fallback
		}
		result := runServer(ctx, runner, sdid, cid, flow, mode, "auto")
		if result.Succeeded {
			return result
		}
		fallback := runAndroid(ctx, bridge, sdid, flow, "auto")
		fallback.UsedFallback = true
		return fallback
	}
}

func bridgeCanRunClientSide(bridge companionDispatcher, sdid string) bool {
	if bridge == nil {
		return false
	}
	for _, cap := range companionRequiredCapabilities {
		if !bridge.HasCapability(sdid, cap) {
			return false
		}
	}
	return true
}

func runServer(ctx context.Context, runner FlowRunner, sdid, cid string, flow *store.Flow, mode executor.Mode, method string) dispatchResult {
	_, err := runner.Run(ctx, sdid, cid, flow, mode)
	if err != nil {
		return dispatchResult{Method: method, Err: err}
	}
	return dispatchResult{Succeeded: true, Method: method}
}

func runAndroid(ctx context.Context, bridge companionDispatcher, sdid string, flow *store.Flow, method string) dispatchResult {
	if bridge == nil {
		return dispatchResult{Method: method, Err: fmt.Errorf("scheduler: no companion bridge configured")}
	}

	steps, err := json.Marshal(flow.Steps)
	if err != nil {
		return dispatchResult{Method: method, Err: fmt.Errorf("marshalling flow steps: %w", err)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, flowExecuteTimeout)
	defer cancel()

	result, err := bridge.SendFlowExecuteRequest(reqCtx, sdid, flow.FlowID, steps)
	if err != nil {
		return dispatchResult{Method: method, Err: err}
	}

	var payload struct {
		Succeeded bool   `json:"succeeded"`
		Error     string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return dispatchResult{Method: method, Err: fmt.Errorf("parsing companion result: %w", err)}
	}
	var payloadErr error
	if payload.Error != "" {
		payloadErr = errors.New(payload.Error)
	}
	return dispatchResult{Succeeded: payload.Succeeded, Method: method, Err: payloadErr}
}
