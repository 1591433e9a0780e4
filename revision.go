package eventkernel

import "fmt"

// StreamState is the concurrency expectation passed to EventStore.Append.
type StreamState interface {
	toRawInt64() int64
}

// Any means append without checking current revision.
type Any struct{}

func (Any) toRawInt64() int64 { return -1 } // special marker

func (Any) String() string { return "any" }

// NoStream means the stream should not exist yet.
type NoStream struct{}

func (NoStream) toRawInt64() int64 { return 0 }

func (NoStream) String() string { return "no stream" }

// StreamExists means the stream must exist.
type StreamExists struct{}

func (StreamExists) toRawInt64() int64 { return -2 } // special marker

func (StreamExists) String() string { return "stream exists" }

// Revision matches exactly the number of events already stored in the stream.
type Revision uint64

func (r Revision) toRawInt64() int64 { return int64(r) }

func (r Revision) String() string { return fmt.Sprintf("%d", uint64(r)) }

// ExpectedRevision returns the StreamState for a stream that currently holds
// version events: NoStream for zero, Revision otherwise.
func ExpectedRevision(version uint64) StreamState {
	if version == 0 {
		return NoStream{}
	}
	return Revision(version)
}
