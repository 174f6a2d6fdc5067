package stream

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestClassifyContent(t *testing.T) {
	cl := Classify(Event{Kind: KindMessage, Payload: map[string]any{"content": "hello "}})
	assert.Equal(t, ClassContent, cl.Class)
	assert.Equal(t, "hello ", cl.Text)
}

func TestClassifyIgnoredKinds(t *testing.T) {
	for kind := range ignoredKinds {
		cl := Classify(Event{Kind: kind})
		assert.Equal(t, ClassIgnored, cl.Class, "kind %s should be ignored", kind)
	}
}

func TestClassifyUnknownFallback(t *testing.T) {
	cl := Classify(Event{Kind: "unknown_kind"})
	assert.Equal(t, ClassNotice, cl.Class)
	assert.Equal(t, "[unknown_kind]", cl.Text)
}

func TestClassifyStartUniversal(t *testing.T) {
	cl := Classify(Event{Kind: KindStartUniversal, Payload: map[string]any{
		"block_type": "SHELL",
		"cmd":        "ls",
		"todoId":     "t1",
	}})
	assert.Equal(t, ClassNotice, cl.Class)
	assert.Equal(t, "SHELL cmd=ls", cl.Text)
}

func TestClassifyStartUniversalNoType(t *testing.T) {
	cl := Classify(Event{Kind: KindStartUniversal, Payload: map[string]any{}})
	assert.Equal(t, "UNIVERSAL", cl.Text)
}

func TestClassifyTerminal(t *testing.T) {
	cl := Classify(Event{Kind: KindCompleted, Payload: map[string]any{"todoId": "t1"}})
	assert.Equal(t, ClassTerminal, cl.Class)
	assert.True(t, cl.Outcome.Success)
	assert.Equal(t, KindCompleted, cl.Outcome.Kind)

	cl = Classify(Event{Kind: KindFailed})
	assert.Equal(t, ClassTerminal, cl.Class)
	assert.False(t, cl.Outcome.Success)

	cl = Classify(Event{Kind: KindStopSequence})
	assert.Equal(t, ClassTerminal, cl.Class)
	assert.False(t, cl.Outcome.Success)
}

func TestClassifyApproval(t *testing.T) {
	cl := Classify(Event{Kind: KindRequestApproval, Payload: map[string]any{
		"blockId":   "b1",
		"messageId": "m1",
		"type":      "shell",
		"cmd":       "rm -rf build",
	}})
	assert.Equal(t, ClassApproval, cl.Class)
	assert.Equal(t, "b1", cl.Block.BlockID)
	assert.Equal(t, "m1", cl.Block.MessageID)
}

func TestClassifyBlockUpdate(t *testing.T) {
	// Result present wins over status
	cl := Classify(Event{Kind: KindBlockUpdate, Payload: map[string]any{
		"updates": map[string]any{"status": "COMPLETED", "result": "42 tests passed"},
	}})
	assert.Equal(t, ClassNotice, cl.Class)
	assert.Contains(t, cl.Text, "--- Block Result ---")
	assert.Contains(t, cl.Text, "42 tests passed")

	// Awaiting approval announcement
	cl = Classify(Event{Kind: KindBlockUpdate, Payload: map[string]any{
		"blockId": "b7",
		"updates": map[string]any{"status": "AWAITING_APPROVAL"},
	}})
	assert.Equal(t, ClassNotice, cl.Class)
	assert.Equal(t, "Awaiting approval (b7)", cl.Text)

	// Routine statuses are silent
	for _, status := range []string{"COMPLETED", "RUNNING"} {
		cl = Classify(Event{Kind: KindBlockUpdate, Payload: map[string]any{
			"updates": map[string]any{"status": status},
		}})
		assert.Equal(t, ClassIgnored, cl.Class, "status %s", status)
	}

	// Unusual statuses are announced
	cl = Classify(Event{Kind: KindBlockUpdate, Payload: map[string]any{
		"updates": map[string]any{"status": "FAILED"},
	}})
	assert.Equal(t, "[block:update] status=FAILED", cl.Text)
}

func TestClassifyBlock(t *testing.T) {
	cases := []struct {
		name string
		bi   BlockInfo
		want BlockKind
	}{
		{"createfile type tag", BlockInfo{Type: "BLOCK_CREATEFILE"}, BlockFile},
		{"modify inner hint", BlockInfo{Payload: map[string]any{"block_type": "MODIFY"}}, BlockFile},
		{"catfile", BlockInfo{Type: "catfile"}, BlockRead},
		{"read inner", BlockInfo{Payload: map[string]any{"block_type": "read"}}, BlockRead},
		{"mcp", BlockInfo{Type: "mcp_tool"}, BlockMCP},
		{"shell tag", BlockInfo{Type: "shell"}, BlockShell},
		{"cmd hint", BlockInfo{Payload: map[string]any{"cmd": "ls"}}, BlockShell},
		{"path hint", BlockInfo{Payload: map[string]any{"path": "a.txt"}}, BlockFile},
		{"unclassifiable defaults to shell", BlockInfo{Payload: map[string]any{}}, BlockShell},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyBlock(tc.bi))
		})
	}
}

func TestBlockDisplayPrecedence(t *testing.T) {
	label, display := BlockDisplay(BlockInfo{
		Type: "shell",
		Payload: map[string]any{
			"cmd":  "go test ./...",
			"name": "tester",
		},
	})
	assert.Equal(t, "Shell", label)
	// cmd wins over name; name still shows as an extra
	assert.Equal(t, "go test ./...", display[:len("go test ./...")])
	assert.NotContains(t, display, "name=")
}

func TestBlockDisplayExtras(t *testing.T) {
	_, display := BlockDisplay(BlockInfo{
		Type: "mcp",
		Payload: map[string]any{
			"server":    "files",
			"tool":      "list",
			"messageId": "m1",
		},
	})
	assert.Contains(t, display, "server=files")
	assert.Contains(t, display, "tool=list")
	assert.NotContains(t, display, "messageId")
}

func TestBlockDisplayPending(t *testing.T) {
	_, display := BlockDisplay(BlockInfo{Payload: map[string]any{}})
	assert.Equal(t, "<pending>", display)
}

func TestBlockDisplayTruncation(t *testing.T) {
	long := strings.Repeat("x", 500)
	_, display := BlockDisplay(BlockInfo{Payload: map[string]any{"cmd": long}})
	assert.Len(t, display, 200)
	assert.True(t, strings.HasSuffix(display, "..."))
}

func TestBlockDisplayTruncationCountsRunes(t *testing.T) {
	// Under the limit in characters, over it in bytes: shown whole.
	under := strings.Repeat("é", 150)
	_, display := BlockDisplay(BlockInfo{Payload: map[string]any{"cmd": under}})
	assert.Equal(t, under, display)

	over := strings.Repeat("é", 250)
	_, display = BlockDisplay(BlockInfo{Payload: map[string]any{"cmd": over}})
	assert.Equal(t, 200, len([]rune(display)))
	assert.True(t, strings.HasSuffix(display, "..."))
	assert.True(t, utf8.ValidString(display))
}

func TestToolInstalls(t *testing.T) {
	bi := BlockInfoFromPayload(map[string]any{
		"blockId":         "b1",
		"approvalContext": map[string]any{"toolInstalls": []any{"rg", "jq"}},
	})
	assert.Equal(t, []string{"rg", "jq"}, bi.ToolInstalls())

	assert.Nil(t, BlockInfo{}.ToolInstalls())
}
