// Package id issues time-ordered int64 ids for audit and alert records.
package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

const defaultNode = 1

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init binds the generator to nodeID (0-1023). Each running instance needs a distinct node.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// New returns a fresh id. Without a prior Init it uses node 1.
func New() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(defaultNode)
	}
	n := node
	mu.Unlock()
	return n.Generate().Int64()
}
