package uid

import (
	"crypto/sha256"

	"github.com/bwmarrin/snowflake"
)

// Snowflake generates time-ordered int64 identifiers.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator whose node number is derived from the
// stable machine identity, so hosts pick distinct nodes without coordination.
func NewSnowflake() (*Snowflake, error) {
	src, err := nodeIdentity()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256([]byte(src))
	nodeID := (int64(sum[0])<<8 | int64(sum[1])) % (1 << snowflake.NodeBits)

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}

	return &Snowflake{node: node}, nil
}

// Generate returns a new snowflake as int64.
func (s *Snowflake) Generate() int64 {
	return s.node.Generate().Int64()
}
