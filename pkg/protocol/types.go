package protocol

// Protocol identifies a simple network service.
type Protocol string

// Supported protocols.
const (
	ProtocolEcho    Protocol = "echo"    // RFC 862
	ProtocolDiscard Protocol = "discard" // RFC 863
	ProtocolDaytime Protocol = "daytime" // RFC 867
	ProtocolChargen Protocol = "chargen" // RFC 864
)

// All returns every supported protocol in a stable order.
func All() []Protocol {
	return []Protocol{ProtocolEcho, ProtocolDiscard, ProtocolDaytime, ProtocolChargen}
}

// String returns the string representation of the protocol.
func (p Protocol) String() string {
	return string(p)
}

// Valid reports whether p is a supported protocol.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolEcho, ProtocolDiscard, ProtocolDaytime, ProtocolChargen:
		return true
	}
	return false
}

// TransportType indicates the underlying transport.
type TransportType string

// TransportType constants.
const (
	TransportTCP TransportType = "tcp"
	TransportUDP TransportType = "udp"
)

// String returns the string representation of the transport type.
func (t TransportType) String() string {
	return string(t)
}

// ConnectionModel describes the connection lifecycle pattern.
type ConnectionModel string

// ConnectionModel constants.
const (
	ConnectionModelStream   ConnectionModel = "stream"   // one handler per accepted connection
	ConnectionModelDatagram ConnectionModel = "datagram" // one handler per received packet
)

// String returns the string representation of the connection model.
func (c ConnectionModel) String() string {
	return string(c)
}

// CommunicationPattern describes the message flow of a protocol.
type CommunicationPattern string

// CommunicationPattern constants.
const (
	PatternRequestResponse CommunicationPattern = "request_response"
	PatternSink            CommunicationPattern = "sink"
	PatternServerPush      CommunicationPattern = "server_push"
	PatternStreaming       CommunicationPattern = "streaming"
)

// String returns the string representation of the communication pattern.
func (p CommunicationPattern) String() string {
	return string(p)
}

// PatternOf returns the communication pattern of p.
func PatternOf(p Protocol) CommunicationPattern {
	switch p {
	case ProtocolEcho:
		return PatternRequestResponse
	case ProtocolDiscard:
		return PatternSink
	case ProtocolDaytime:
		return PatternServerPush
	case ProtocolChargen:
		return PatternStreaming
	}
	return ""
}
