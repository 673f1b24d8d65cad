// Package connectors provides implementations of the MessageSource interface
// for various message providers. Each source knows how to fetch messages
// from a specific provider type (IMAP, Gmail, a maildir, canned fixtures).
//
// Every source embeds StateMachine, which owns the connection lifecycle:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//	CONNECTING   -> ERROR
//	CONNECTED    -> DISCONNECTED
//
// Sources are registered with the SourceFactory at startup.
package connectors
