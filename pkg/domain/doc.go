/*
Package domain contains the core models of the Skyframe graph explorer.

It is kept free of I/O: the backend, stores and transports live in adapters and
talk to the explorer through the interfaces in package ports.

# Key Entities

  - Node: a Skyframe graph node (hash, raw type and key data) as returned by /find.
  - FindResult: the backend reply to a search, total match count plus a page of nodes.
  - VisibleSet: the nodes a user has toggled onto the rendered graph.
  - View: the persisted state of one explorer session.
*/
package domain
