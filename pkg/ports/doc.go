/*
Package ports defines the driven ports (interfaces) of the Skyframe explorer.

These interfaces decouple the explorer from concrete transports and storage, so the
same view logic runs against the real HTTP backend, an in-memory fake, or any of
the view store adapters.

# Key Interfaces

  - GraphBackend: the Skyframe server (/find, /render and per-node DELETE).
  - ViewStore: persists explorer views (memory, file or Redis).
  - DistributedLocker: serializes view updates across replicas.
*/
package ports
