// Package session guards the shared conversation state of an agent run: the
// transcript, the active tool list and the model id.
//
// An LLMContext owns that state behind a read/write lock. WriteSession grants
// exclusive access through a *WriteSession that may mutate the state and
// commits it back when the callback returns without error; ReadSession grants
// shared access through a frozen *ReadSession snapshot. Sessions are only
// valid inside their callback: afterwards requests return ErrSessionClosed and
// accessors panic with it.
//
// Both session kinds expose the model request helpers. Requests issued on a
// write session append the produced messages to the transcript.
//
// Transcripts can be persisted between runs through a Store; InMemoryStore is
// the bundled implementation.
package session
