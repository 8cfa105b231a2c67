package transport

// Capabilities describes what a transport backend does natively. The runtime
// uses it to decide which behavior it must emulate, for instance routing
// failed messages to the holding topic when there is no native DLQ.
type Capabilities struct {
	Name string

	// SupportsNativeDLQ means failed messages end up in a dead-letter area
	// owned by the broker.
	SupportsNativeDLQ bool
	// SupportsDLQLease means that area can be drained by the redrive worker
	// through DLQLeaser.
	SupportsDLQLease bool

	SupportsOrdering bool
	SupportsAck      bool
	SupportsNack     bool
	SupportsBatching bool

	// MaxMessageSize in bytes, 0 when unknown or unlimited.
	MaxMessageSize int64
}

// RequiresDLQEmulation reports whether failed messages must be published to a
// holding topic by the application.
func (c Capabilities) RequiresDLQEmulation() bool {
	return !c.SupportsNativeDLQ
}

// SupportsReliableDelivery reports at-least-once semantics (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Fits reports whether a payload of n bytes can be published.
func (c Capabilities) Fits(n int) bool {
	return c.MaxMessageSize <= 0 || int64(n) <= c.MaxMessageSize
}

// GetCapabilities returns the capabilities registered for a transport name in
// the default registry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
