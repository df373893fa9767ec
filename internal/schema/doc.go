// Package schema defines the records pincafe stores and replicates.
//
// # Collections
//
// Four collections make up the replicated state of a restaurant:
//
//	products      catalog entries (name, price, category name, custom price flag)
//	categories    unique category names referenced by products
//	tables        open tables with their order lines and bill merges
//	transactions  append-only cash register ledger
//
// Every record carries an int64 id. A Snapshot holds all four collections and a
// Document is a Snapshot stamped with the logical clock (lastUpdate) that the sync
// layer compares for last-writer-wins replication:
//
//	{
//	  "products": [...],
//	  "categories": [...],
//	  "tables": [...],
//	  "transactions": [...],
//	  "lastUpdate": 1736500000000
//	}
//
// # Table merges
//
// Table.MergedWith is a symmetric relation: if table 1 lists table 2, table 2
// lists table 1. NormalizeMerges restores that property on data received from
// other devices.
//
// # Validation
//
// Validate on each record returns an error wrapping ErrValidation. Snapshot.Validate
// returns errors wrapping ErrImportRejected, since a snapshot is only validated
// when it is about to replace local state.
package schema
