// Package streamid packs and validates the wire-level stream and node
// identifiers described in spec §6. It exists as its own leaf package so
// both internal/stream and internal/serverstate can depend on identifier
// parsing without creating an import cycle between them.
package streamid

// Stream is cras_stream_id_t: the top 16 bits are the owning client's id,
// the low 16 bits are a per-client nonce.
type Stream uint32

// NewStream packs a client id and nonce into a Stream identifier.
func NewStream(clientID, nonce uint16) Stream {
	return Stream(uint32(clientID)<<16 | uint32(nonce))
}

// ClientID returns the high 16 bits: the client that owns this stream.
func (s Stream) ClientID() uint16 {
	return uint16(s >> 16)
}

// Nonce returns the low 16 bits: the per-client nonce distinguishing
// this stream from the client's other streams.
func (s Stream) Nonce() uint16 {
	return uint16(s)
}

// ValidFor reports whether s was issued to clientID, i.e. whether its
// high 16 bits match. A mismatch means a caller is presenting a stream
// id it does not own.
func (s Stream) ValidFor(clientID uint16) bool {
	return s.ClientID() == clientID
}

// Node is cras_node_id_t: the high 32 bits are the owning device's
// index, the low 32 bits are the node's index within that device.
type Node uint64

// NewNode packs a device index and node index into a Node identifier.
func NewNode(devIndex, nodeIndex uint32) Node {
	return Node(uint64(devIndex)<<32 | uint64(nodeIndex))
}

// DevIndex returns the high 32 bits: the device this node belongs to.
func (n Node) DevIndex() uint32 {
	return uint32(n >> 32)
}

// NodeIndex returns the low 32 bits: the node's index within its device.
func (n Node) NodeIndex() uint32 {
	return uint32(n)
}
