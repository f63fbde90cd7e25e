// internal/status/encode.go
package status

// Encode converts a Snapshot into the live slots of a status block.
// Layout is protocol-locked.
// No IO. No side effects.
func Encode(s Snapshot) []uint16 {
	regs := make([]uint16, SlotsPerDevice)

	regs[SlotResult] = s.Result
	regs[SlotRetryCount] = s.RetryCount
	regs[SlotLastCounter] = s.LastCounter
	regs[SlotAttemptTimeHi] = uint16(s.AttemptUnix >> 16)
	regs[SlotAttemptTimeLo] = uint16(s.AttemptUnix)

	return regs
}

// EncodeFull is Encode plus the device code at the end of the block.
func EncodeFull(s Snapshot, code string) []uint16 {
	regs := Encode(s)
	name := EncodeDeviceCode(code)
	copy(regs[SlotDeviceCodeStart:SlotDeviceCodeEnd+1], name)
	return regs
}

// EncodeDeviceCode packs up to 16 ASCII characters into 8 uint16 registers.
// Each register stores two ASCII bytes in big-endian order.
func EncodeDeviceCode(code string) []uint16 {
	out := make([]uint16, SlotDeviceCodeSlots)

	b := []byte(code)
	if len(b) > DeviceCodeMaxChars {
		b = b[:DeviceCodeMaxChars]
	}

	// sanitize to printable ASCII
	for i := 0; i < len(b); i++ {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < DeviceCodeMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}

	return out
}
