package constant

import "time"

const (
	// TypingWindow is how long a typing flag lives without a refresh.
	TypingWindow = 3 * time.Second

	// CallRingTimeout is how long an unanswered call rings before it ends.
	CallRingTimeout = 30 * time.Second

	// AutoReplyJitterMin/Max bound the random delay before an AI persona reply.
	AutoReplyJitterMin = 1 * time.Second
	AutoReplyJitterMax = 3 * time.Second

	// RecentHistoryLimit is how many messages are fed to the LLM as context.
	RecentHistoryLimit = 10

	DefaultMessageType = "text"
	CommandPrefix      = "/"

	// MessageCreatedTopic is the in-process pubsub topic that decouples message
	// delivery from auto-responder evaluation.
	MessageCreatedTopic = "chat.message.created"
)
