// Package client implements the client registry: one entry per logical
// end-user client (or the implicit shared queue), owning that client's
// outstanding requests, its engine scheduling bindings, its status
// cache, and the fanout of status-change notifications to subscribed
// session handlers.
//
// A client entry is resolvable at any time, before or after a restart,
// purely from its (shared, name) coordinates; record resumption order
// never matters. The Registry implements request.Root for the resume
// path.
package client
