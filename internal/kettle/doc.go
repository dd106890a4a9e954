// Package kettle binds a framed JSON stream to game engine handlers.
//
// An Adapter reads one frame at a time, decodes its envelope and routes each
// tagged message through a Dispatcher. Outbound messages go through a Sender,
// one frame per call.
package kettle
