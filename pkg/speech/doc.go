// Package speech provides the streaming clients for the three backing
// services of a conversation: speech-to-text, a text-generating model, and
// text-to-speech.
//
// STT and TTS speak a msgpack-framed message protocol over a persistent
// WebSocket. The LLM is an OpenAI-compatible streaming chat completion
// endpoint. All three expose the same shape: submit units of work
// (SendPCM, SendText, a turn list) and consume results through a
// Next()-style stream that ends with iterator.Done.
//
// Each session owns its own client instances; nothing here is shared
// across sessions. A connection dropping mid-stream surfaces as a
// *StreamFaultError, which is fatal to the owning session only.
package speech
