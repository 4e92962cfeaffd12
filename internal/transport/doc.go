// Package transport provides the client side of the chat channel: a
// websocket connection to the server that exchanges chat.Frame values as
// JSON text messages.
//
// A Channel reconnects on its own after the connection drops. Ready reports
// whether a connection is currently up; Send fails with ErrNotReady while it
// is not. Inbound frames are delivered on Frames one at a time, in arrival
// order, across reconnects.
package transport
