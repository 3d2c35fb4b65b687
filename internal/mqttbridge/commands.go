package mqttbridge

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// ActionCommandHandler executes an action in response to an MQTT button
// press. effectiveDeviceID/actionID identify which action fired.
type ActionCommandHandler func(effectiveDeviceID, actionID string) error

// FlowResultHandler receives a companion app's self-reported result of
// running a flow client-side.
type FlowResultHandler func(effectiveDeviceID, flowID string, payload []byte) error

// GestureResultHandler receives a companion app's result of injecting a
// gesture on its behalf.
type GestureResultHandler func(effectiveDeviceID string, payload []byte) error

// NavigationLearnHandler receives a newly observed screen/transition a
// companion app learned while navigating.
type NavigationLearnHandler func(effectiveDeviceID string, payload []byte) error

// DeviceAnnouncementHandler receives a companion app's presence
// announcement (capabilities, model, friendly name).
type DeviceAnnouncementHandler func(announcement DeviceAnnouncement)

// DeviceAnnouncement is a companion app's self-reported identity and
// capability set, published once on connect to the shared announce
// topic.
type DeviceAnnouncement struct {
	DeviceID       string   `json:"device_id"`
	StableDeviceID string   `json:"stable_device_id,omitempty"`
	Model          string   `json:"model,omitempty"`
	FriendlyName   string   `json:"friendly_name,omitempty"`
	Capabilities   []string `json:"capabilities,omitempty"`
}

// commandRouter holds registered inbound-message handlers and in-flight
// request/response futures keyed by request_id.
type commandRouter struct {
	mu sync.RWMutex

	onFlowResult       FlowResultHandler
	onGestureResult    GestureResultHandler
	onNavigationLearn  NavigationLearnHandler
	onDeviceAnnounce   DeviceAnnouncementHandler

	pendingMu sync.Mutex
	pending   map[string]chan []byte

	pendingFlowsMu sync.Mutex
	pendingFlows   map[string]chan []byte
}

func newCommandRouter() *commandRouter {
	return &commandRouter{
		pending:      make(map[string]chan []byte),
		pendingFlows: make(map[string]chan []byte),
	}
}

// flowFutureKey identifies one outstanding flow-execution request awaiting
// its companion-reported result.
func flowFutureKey(effectiveDeviceID, flowID string) string {
	return effectiveDeviceID + "|" + flowID
}

// OnFlowResult registers the callback invoked when a companion app
// reports a client-executed flow's result.
func (b *Bridge) OnFlowResult(h FlowResultHandler) {
	b.commands.mu.Lock()
	b.commands.onFlowResult = h
	b.commands.mu.Unlock()
}

// OnGestureResult registers the callback invoked when a companion app
// reports a gesture injection result.
func (b *Bridge) OnGestureResult(h GestureResultHandler) {
	b.commands.mu.Lock()
	b.commands.onGestureResult = h
	b.commands.mu.Unlock()
}

// OnNavigationLearn registers the callback invoked when a companion app
// reports a newly learned screen or transition.
func (b *Bridge) OnNavigationLearn(h NavigationLearnHandler) {
	b.commands.mu.Lock()
	b.commands.onNavigationLearn = h
	b.commands.mu.Unlock()
}

// OnDeviceAnnouncement registers the callback invoked when a companion
// app announces itself. The bridge also uses this announcement to
// populate the capability cache, so registering a handler is optional.
func (b *Bridge) OnDeviceAnnouncement(h DeviceAnnouncementHandler) {
	b.commands.mu.Lock()
	b.commands.onDeviceAnnounce = h
	b.commands.mu.Unlock()
}

// SubscribeDeviceAnnouncements subscribes to the shared companion-app
// announcement topic, updating the capability cache and invoking any
// registered DeviceAnnouncementHandler for each announcement received.
func (b *Bridge) SubscribeDeviceAnnouncements() error {
	return b.client.Subscribe(b.topics.DeviceAnnounce(), 0, b.handleDeviceAnnounce)
}

func (b *Bridge) handleDeviceAnnounce(_ string, payload []byte) error {
	var ann DeviceAnnouncement
	if err := json.Unmarshal(payload, &ann); err != nil {
		b.logger.Warn("mqttbridge: malformed device announcement", "err", err)
		return nil
	}
	effID := effectiveDeviceID(ann.StableDeviceID, ann.DeviceID)
	b.SetCapabilities(effID, ann.Capabilities)

	b.commands.mu.RLock()
	handler := b.commands.onDeviceAnnounce
	b.commands.mu.RUnlock()
	if handler != nil {
		handler(ann)
	}
	return nil
}

// SubscribeCompanionTopics subscribes to the per-device companion-app
// topics (gesture result, navigation learn, UI response) for one device's
// effective ID. Flow results are subscribed separately by
// SubscribeFlowResults.
func (b *Bridge) SubscribeCompanionTopics(effectiveDeviceID string) error {
	if err := b.client.Subscribe(b.topics.GestureResult(effectiveDeviceID), 0, func(_ string, payload []byte) error {
		b.commands.mu.RLock()
		h := b.commands.onGestureResult
		b.commands.mu.RUnlock()
		if h != nil {
			return h(effectiveDeviceID, payload)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := b.client.Subscribe(b.topics.NavigationLearn(effectiveDeviceID), 0, func(_ string, payload []byte) error {
		b.commands.mu.RLock()
		h := b.commands.onNavigationLearn
		b.commands.mu.RUnlock()
		if h != nil {
			return h(effectiveDeviceID, payload)
		}
		return nil
	}); err != nil {
		return err
	}

	if err := b.client.Subscribe(b.topics.UIResponse(effectiveDeviceID), 0, b.handleUIResponse); err != nil {
		return err
	}

	return nil
}

// SubscribeFlowResults subscribes to one device's flow-result topic
// family. Flow results are keyed per-flow in the topic itself
// (visual_mapper/{d}/flow/{flow_id}/result), so this subscribes with a
// single-level wildcard and lets the handler extract the flow ID.
func (b *Bridge) SubscribeFlowResults(effectiveDeviceID string) error {
	topic := "visual_mapper/" + sanitize(effectiveDeviceID) + "/flow/+/result"
	return b.client.Subscribe(topic, 0, func(topic string, payload []byte) error {
		flowID := flowIDFromResultTopic(topic)

		b.commands.pendingFlowsMu.Lock()
		ch, ok := b.commands.pendingFlows[flowFutureKey(effectiveDeviceID, flowID)]
		if ok {
			delete(b.commands.pendingFlows, flowFutureKey(effectiveDeviceID, flowID))
		}
		b.commands.pendingFlowsMu.Unlock()
		if ok {
			ch <- payload
		}

		b.commands.mu.RLock()
		h := b.commands.onFlowResult
		b.commands.mu.RUnlock()
		if h != nil {
			return h(effectiveDeviceID, flowID, payload)
		}
		return nil
	})
}

func (b *Bridge) makeActionExecuteHandler(effectiveDeviceID, actionID string, onExecute ActionCommandHandler) func(string, []byte) error {
	return func(_ string, payload []byte) error {
		if string(payload) != "EXECUTE" {
			return nil
		}
		if onExecute == nil {
			return ErrNoHandler
		}
		return onExecute(effectiveDeviceID, actionID)
	}
}

type uiResponsePayload struct {
	RequestID string          `json:"request_id"`
	Tree      json.RawMessage `json:"tree"`
}

func (b *Bridge) handleUIResponse(_ string, payload []byte) error {
	var resp uiResponsePayload
	if err := json.Unmarshal(payload, &resp); err != nil {
		b.logger.Warn("mqttbridge: malformed UI response", "err", err)
		return nil
	}
	b.commands.pendingMu.Lock()
	ch, ok := b.commands.pending[resp.RequestID]
	if ok {
		delete(b.commands.pending, resp.RequestID)
	}
	b.commands.pendingMu.Unlock()
	if !ok {
		return nil
	}
	ch <- []byte(resp.Tree)
	return nil
}

// newRequestID generates a fresh request_id for a request/response
// exchange threaded over MQTT.
func newRequestID() string {
	return uuid.NewString()
}
