// ABOUTME: Reconstruction of transcript messages from raw backend history.
// ABOUTME: Keeps user/assistant roles, assigns fresh local IDs, copies tool calls.

package conversation

import "github.com/google/uuid"

// ReconstructHistory converts the backend's raw history records into
// transcript messages. System-role records are dropped (they remain visible
// through the raw inspection view, not the transcript), each message gets a
// freshly generated local ID, tool calls are copied verbatim, and no
// streaming flags are set — history is inherently static.
func ReconstructHistory(records []HistoryRecord) []*Message {
	messages := make([]*Message, 0, len(records))
	for _, rec := range records {
		role := Role(rec.Role)
		if role != RoleUser && role != RoleAssistant {
			continue
		}
		msg := &Message{
			ID:      uuid.New().String(),
			Role:    role,
			Content: rec.Content,
		}
		if len(rec.ToolCalls) > 0 {
			msg.ToolCalls = append([]ToolCall(nil), rec.ToolCalls...)
		}
		messages = append(messages, msg)
	}
	return messages
}
