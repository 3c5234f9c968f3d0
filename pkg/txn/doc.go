/*
Package txn implements the transaction manager: a
client bundles several file operations under one transaction ID so the
server lands all of them or none, the way a cross-file rename must not
leave a rift half-refactored.

Transactions move active -> pending (on the first added operation) ->
committed | rolled-back. An active/pending transaction not finalized
within idleTimeout is auto-rolled-back by a time.AfterFunc timer.
Pre-images captured when each operation is added are kept in memory
only for the transaction's lifetime; they are not persisted, so a
transaction left open across a process restart is rolled back without
restoring them.
*/
package txn
