// Package chat defines the data model shared by the chat client core.
//
// # Conversations
//
// A Conversation is a summary record owned by the registry reducer. At most
// one conversation is Active at a time; the registry is the only writer of
// that flag.
//
// # Messages
//
// A Message is one entry in a conversation's message sequence. Its Kind is
// one of:
//
//   - text: plain text, grows as streamed chunks arrive
//   - file: a file descriptor (filename, size)
//   - action: a tool invocation decided by the assistant
//   - observation: the result of an action, correlated by ParentID
//
// Content is a tagged variant. Text-bearing kinds carry a string, file
// messages carry a FileRef. Consumers switch on Content.Tag.
//
// # Frames
//
// A Frame is the JSON object exchanged with the server over the transport:
//
//	{"id": "...", "conversation": "...", "from": "...", "content": ..., "type": "text"}
//
// Frames of type "info" carry server notifications (for example a generated
// title) and never become messages.
package chat
