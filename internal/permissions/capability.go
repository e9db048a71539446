package permissions

import "strings"

// Capability is a single privilege bit in an app's permission mask.
type Capability uint32

// The closed set of capabilities. Bit positions are part of the persisted
// format and must not be reordered.
const (
	CapRFReceive    Capability = 1 << 0
	CapRFTransmit   Capability = 1 << 1
	CapGPIORead     Capability = 1 << 2
	CapGPIOWrite    Capability = 1 << 3
	CapStorageRead  Capability = 1 << 4
	CapStorageWrite Capability = 1 << 5
	CapUICreate     Capability = 1 << 6
	CapNetwork      Capability = 1 << 7
	CapSystem       Capability = 1 << 8
)

// capabilityNames maps canonical names to bits, in declaration order.
// Format emits names in this order.
var capabilityNames = []struct {
	name string
	bit  Capability
}{
	{"rf.receive", CapRFReceive},
	{"rf.transmit", CapRFTransmit},
	{"gpio.read", CapGPIORead},
	{"gpio.write", CapGPIOWrite},
	{"storage.read", CapStorageRead},
	{"storage.write", CapStorageWrite},
	{"ui.create", CapUICreate},
	{"network", CapNetwork},
	{"system", CapSystem},
}

// Parse converts a comma-separated grant string into a capability mask.
// Tokens are trimmed of surrounding whitespace; tokens that match no known
// capability name are dropped, not an error. Empty input yields the zero mask.
func Parse(grant string) Capability {
	if grant == "" {
		return 0
	}

	var mask Capability
	for _, token := range strings.Split(grant, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		for _, entry := range capabilityNames {
			if entry.name == token {
				mask |= entry.bit
				break
			}
		}
	}
	return mask
}

// Format converts a capability mask to its canonical comma-separated string,
// emitting names in declaration order with no trailing separator.
func Format(mask Capability) string {
	var b strings.Builder
	for _, entry := range capabilityNames {
		if mask&entry.bit == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(entry.name)
	}
	return b.String()
}

// Has reports whether every bit of required is present in mask.
func Has(mask, required Capability) bool {
	return mask&required == required
}

// HasAny reports whether at least one bit of candidates is present in mask.
func HasAny(mask, candidates Capability) bool {
	return mask&candidates != 0
}

// Names returns the canonical capability names in declaration order.
func Names() []string {
	names := make([]string, len(capabilityNames))
	for i, entry := range capabilityNames {
		names[i] = entry.name
	}
	return names
}

func (c Capability) String() string {
	return Format(c)
}
