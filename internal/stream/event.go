// Package stream defines the todo event vocabulary and event classification.
package stream

// Event is one raw event delivered by the transport, in delivery order.
type Event struct {
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Well-known event kinds.
const (
	KindMessage         = "block:message"
	KindBlockUpdate     = "BLOCK_UPDATE"
	KindStartUniversal  = "block:start_universal"
	KindRequestApproval = "block:request_approval"
	KindCompleted       = "todo:completed"
	KindFailed          = "todo:failed"
	KindStopSequence    = "todo:msg_stop_sequence"
)

// ignoredKinds never produce visible output or an activity signal.
// Heartbeats and start/stop markers for block types that announce
// themselves through other events.
var ignoredKinds = map[string]bool{
	"todo:msg_start":           true,
	"todo:msg_done":            true,
	"todo:msg_meta_ai":         true,
	"todo:status":              true,
	"todo:new_message_created": true,
	"block:end":                true,
	"block:start_shell":        true,
	"block:start_createfile":   true,
	"block:start_modifyfile":   true,
	"block:start_mcp":          true,
	"block:start_catfile":      true,
}

// BlockInfo describes one action awaiting approval.
type BlockInfo struct {
	BlockID         string
	MessageID       string
	Type            string
	Payload         map[string]any
	ApprovalContext map[string]any
}

// Outcome is the terminal result of one watch session.
type Outcome struct {
	Success bool
	Kind    string
	Payload map[string]any
}

// BlockInfoFromPayload builds a BlockInfo from an approval-request payload.
func BlockInfoFromPayload(payload map[string]any) BlockInfo {
	bi := BlockInfo{Payload: payload}
	if id, ok := payload["blockId"].(string); ok {
		bi.BlockID = id
	}
	if id, ok := payload["messageId"].(string); ok {
		bi.MessageID = id
	}
	if t, ok := payload["type"].(string); ok {
		bi.Type = t
	}
	if ctx, ok := payload["approvalContext"].(map[string]any); ok {
		bi.ApprovalContext = ctx
	}
	return bi
}

// ToolInstalls returns the tool-install hints carried for display, if any.
func (b BlockInfo) ToolInstalls() []string {
	raw, ok := b.ApprovalContext["toolInstalls"].([]any)
	if !ok {
		return nil
	}
	installs := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			installs = append(installs, s)
		}
	}
	return installs
}
