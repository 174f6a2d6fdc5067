package stream

import (
	"fmt"
	"sort"
	"strings"

	todostrings "github.com/joss/todoai/internal/strings"
)

// Class buckets an event for the watch session.
type Class int

const (
	// ClassIgnored events produce no output and no activity signal.
	ClassIgnored Class = iota
	// ClassContent is streamed text for the primary output channel, unbuffered.
	ClassContent
	// ClassNotice is a short announcement for the secondary channel.
	ClassNotice
	// ClassApproval carries one block awaiting operator approval.
	ClassApproval
	// ClassTerminal ends the session with an Outcome.
	ClassTerminal
)

// Classified is the result of classifying one event.
type Classified struct {
	Class   Class
	Text    string
	Block   BlockInfo
	Outcome Outcome
}

// Classify maps a raw event into its session-facing classification.
// Pure: no I/O, no shared state.
func Classify(ev Event) Classified {
	switch ev.Kind {
	case KindMessage:
		content, _ := ev.Payload["content"].(string)
		return Classified{Class: ClassContent, Text: content}

	case KindBlockUpdate:
		return classifyBlockUpdate(ev)

	case KindStartUniversal:
		blockType, _ := ev.Payload["block_type"].(string)
		if blockType == "" {
			blockType = "UNIVERSAL"
		}
		text := blockType
		if extra := payloadPairs(ev.Payload, nil); extra != "" {
			text += " " + extra
		}
		return Classified{Class: ClassNotice, Text: text}

	case KindRequestApproval:
		return Classified{Class: ClassApproval, Block: BlockInfoFromPayload(ev.Payload)}

	case KindCompleted:
		return Classified{Class: ClassTerminal, Outcome: Outcome{Success: true, Kind: ev.Kind, Payload: ev.Payload}}

	case KindFailed, KindStopSequence:
		return Classified{Class: ClassTerminal, Outcome: Outcome{Success: false, Kind: ev.Kind, Payload: ev.Payload}}
	}

	if ignoredKinds[ev.Kind] {
		return Classified{Class: ClassIgnored}
	}

	// Unrecognized kinds are surfaced generically, never dropped.
	return Classified{Class: ClassNotice, Text: fmt.Sprintf("[%s]", ev.Kind)}
}

func classifyBlockUpdate(ev Event) Classified {
	updates, _ := ev.Payload["updates"].(map[string]any)
	status, _ := updates["status"].(string)
	result, _ := updates["result"].(string)

	if result != "" {
		return Classified{Class: ClassNotice, Text: "--- Block Result ---\n" + result}
	}
	if status == "AWAITING_APPROVAL" {
		text := "Awaiting approval"
		if blockID, _ := ev.Payload["blockId"].(string); blockID != "" {
			text += fmt.Sprintf(" (%s)", blockID)
		}
		return Classified{Class: ClassNotice, Text: text}
	}
	if status != "" && status != "COMPLETED" && status != "RUNNING" {
		return Classified{Class: ClassNotice, Text: fmt.Sprintf("[block:update] status=%s", status)}
	}
	return Classified{Class: ClassIgnored}
}

// metadataKeys are addressing/bookkeeping fields, never shown as extras.
var metadataKeys = map[string]bool{
	"userId":     true,
	"messageId":  true,
	"todoId":     true,
	"blockId":    true,
	"block_type": true,
	"edge_id":    true,
	"timeout":    true,
}

// displayKeys are payload fields used directly as a block's preview text.
var displayKeys = []string{"path", "filePath", "content", "cmd", "name"}

// BlockKind classifies a pending block's action type.
type BlockKind string

const (
	BlockFile  BlockKind = "file"
	BlockRead  BlockKind = "read"
	BlockMCP   BlockKind = "mcp"
	BlockShell BlockKind = "shell"
)

// ClassifyBlock derives the action kind from the block's type tag and,
// secondarily, from payload hints. Unclassifiable actions default to shell.
func ClassifyBlock(bi BlockInfo) BlockKind {
	btype := strings.ToLower(bi.Type)
	inner, _ := bi.Payload["block_type"].(string)
	inner = strings.ToLower(inner)

	switch {
	case strings.Contains(btype, "createfile"), inner == "create", inner == "createfile":
		return BlockFile
	case strings.Contains(btype, "modifyfile"), inner == "modify", inner == "modifyfile", inner == "update":
		return BlockFile
	case strings.Contains(btype, "catfile"), inner == "catfile", inner == "read", inner == "readfile":
		return BlockRead
	case strings.Contains(btype, "mcp"), inner == "mcp":
		return BlockMCP
	case strings.Contains(btype, "shell"), inner == "shell", inner == "bash":
		return BlockShell
	}
	if _, ok := bi.Payload["cmd"]; ok {
		return BlockShell
	}
	if _, ok := bi.Payload["path"]; ok {
		return BlockFile
	}
	return BlockShell
}

var blockLabels = map[BlockKind]string{
	BlockFile:  "File",
	BlockRead:  "Read File",
	BlockMCP:   "MCP",
	BlockShell: "Shell",
}

// BlockDisplay returns a short label and preview text for a pending block.
// The preview is cosmetic: truncated to 200 characters, never the data
// sent for approval.
func BlockDisplay(bi BlockInfo) (label, display string) {
	label = blockLabels[ClassifyBlock(bi)]

	for _, key := range displayKeys {
		if v, ok := bi.Payload[key].(string); ok && v != "" {
			display = v
			break
		}
	}

	if extra := payloadPairs(bi.Payload, displayKeys); extra != "" {
		if display != "" {
			display = fmt.Sprintf("%s (%s)", display, extra)
		} else {
			display = extra
		}
	}
	if display == "" {
		display = "<pending>"
	}
	return label, todostrings.TruncateRunes(display, 200)
}

// payloadPairs renders the non-metadata payload fields as space-joined
// key=value pairs, keys sorted for stable output. alsoSkip lists extra
// keys to exclude (the preview fields, when they were already shown).
func payloadPairs(payload map[string]any, alsoSkip []string) string {
	skip := make(map[string]bool, len(metadataKeys)+len(alsoSkip))
	for k := range metadataKeys {
		skip[k] = true
	}
	for _, k := range alsoSkip {
		skip[k] = true
	}

	keys := make([]string, 0, len(payload))
	for k, v := range payload {
		if skip[k] || v == nil || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, " ")
}
