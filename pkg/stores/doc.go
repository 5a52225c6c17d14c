// Package stores persists nodeflow documents in SQLite.
//
// Every save of a document becomes a numbered revision. A save whose content matches the head
// revision byte for byte is not stored again. The store also keeps an append-only log of
// document events fed from telemetry.EventPublisher.
package stores
