// Package id generates the time-ordered identifiers used for aggregation
// run audit rows. Server and worker processes must init with distinct node
// IDs so concurrent generation never collides.
package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init configures the generator for this process. Safe to call more than
// once; only the first call takes effect.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		// Custom epoch keeps IDs small: milliseconds since 2023-11-01 UTC.
		snowflake.Epoch = 1698796800000
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns the next unique int64 ID. IDs sort by creation time, which
// makes run audit rows naturally ordered by their primary key.
func New() int64 {
	return node.Generate().Int64()
}
