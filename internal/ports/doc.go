// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [RecordSource]: positions on and reads WAL records (xlog.Cursor)
//   - [PageSink]: stores reconstructed pages (file system adapter)
//   - [Waiter]: blocks until the WAL may have grown (wal.Follower)
//   - [Logger]: structured logging abstraction
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters, pkg/wal, pkg/xlog) implement
// them with concrete implementations.
package ports
