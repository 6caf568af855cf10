package worker

import "strings"

// ComposePrompt flattens an OpenAI-style message list into the plain
// prompt text the engine consumes. Per message, in input order:
// "System: <content>\n" for role system, "User: <content>\n" for role
// user. The "assistant" role (and any other role) is silently
// dropped — an open question in the upstream spec left as-is rather
// than guessed at; a future revision may want to surface prior
// assistant turns instead of discarding them.
func ComposePrompt(messages []ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case "system":
			b.WriteString("System: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		case "user":
			b.WriteString("User: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// jsonOnlyInstruction is appended to the prompt when a structured
// request falls back to unconstrained decoding, per spec.md §4.C3's
// fallback algorithm.
const jsonOnlyInstruction = "Respond with valid JSON only."
