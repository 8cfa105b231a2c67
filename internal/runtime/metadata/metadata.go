package metadata

import "strings"

// Metadata represents the attributes carried alongside an ingested message.
type Metadata map[string]string

// Attribute keys stamped on redriven messages.
const (
	KeyReplay       = "replay"
	KeyReplayID     = "replay_id"
	KeyReplaySource = "replay_source"
	KeyMessageID    = "message_id"
)

// Attribute keys set on a message whose processing failed. SQL transports read
// KeyFailurePermanent to dead-letter without further redelivery.
const (
	KeyFailureClass     = "failure_class"
	KeyFailurePermanent = "failure_permanent"
)

func (m Metadata) cloneWithExtra(extra int) Metadata {
	size := len(m) + extra
	if size <= 0 {
		return Metadata{}
	}

	cloned := make(Metadata, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	return m.cloneWithExtra(0)
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned metadata map containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// Strip returns a copy without the exact keys and without any key starting with
// one of the prefixes. Matching is case-sensitive.
func (m Metadata) Strip(keys, prefixes []string) Metadata {
	out := make(Metadata, len(m))
next:
	for k, v := range m {
		for _, key := range keys {
			if k == key {
				continue next
			}
		}
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(k, p) {
				continue next
			}
		}
		out[k] = v
	}
	return out
}

// IsReplay reports whether the replay marker is set to true, ignoring case.
func (m Metadata) IsReplay() bool {
	return strings.EqualFold(strings.TrimSpace(m[KeyReplay]), "true")
}

// New constructs a Metadata map from alternating key/value pairs.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}
