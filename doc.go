/*
Package docdb implements an embedded document database on top of an ordered
key-value store (Bolt, or an in-memory store for tests and scratch data).

We implement:

1. Collections of schemaless documents: ordered, nested records identified by
a time-ordered 63-bit id.

2. Indexes on one or more fields, unique or not, plus single-field full-text
indexes, built synchronously or in the background.

3. Filters, planned against the available indexes and run with optional
sorting, paging and locale-aware collation.

4. Transactions that run against a private snapshot of a collection and replay
their change log onto it at commit, undoing partial replays on failure.

# Technical Details

**Maps.**
Everything lives in named maps of sorted byte keys. A collection owns its
primary map (named after the collection, id key to encoded document), a
catalog map ("$catalog|" + name) holding the index list and attributes, and
one map per index ("$idx|" + name + "|" + fields + "|" + kind).

**Index entries.**
An index entry key is the order-preserving encoding of the indexed values
followed by the 8-byte big-endian id; the value is empty. A full-text index
holds one entry per distinct token.

**Dirty indexes.**
An index is marked dirty in the catalog before a build starts and clean once
it ends. The planner never uses a dirty index, and opening a database rebuilds
the indexes left dirty by an interrupted build.

## Binary encoding

**Stored document**: flags (uvarint: format version, compression, JSON
bit), size of the uncompressed payload (uvarint), then msgpack (or JSON) of
the document, optionally compressed with zstd or LZ4.

**Index key values**: a type tag (null, bool, number, string, bytes) followed
by a self-delimiting body. Numbers of both kinds share one ordering. Strings
and byte strings escape 0x00 as 00 FF and end with 00 01.
*/
package docdb
