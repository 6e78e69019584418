// Package live is a Go client for the Gemini Live bidirectional WebSocket API.
//
// A Channel owns the socket and fans state and message events out on a single dispatch goroutine.
// A Session runs the setup handshake on top of it, keeps the connection alive, tracks the
// resumption handle and turns server frames into transcript, audio, tool and lifecycle callbacks.
// A Supervisor re-runs Session.Connect a bounded number of times after a drop.
//
// Audio playback and capture live in the audio package, function calling in the tools package.
package live
