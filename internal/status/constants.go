// internal/status/constants.go
package status

// Reset Status Block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotResult holds the outcome of the device's latest reset attempt.
const SlotResult = 0

// SlotRetryCount holds the consecutive failed attempts of the running chain.
const SlotRetryCount = 1

// SlotLastCounter holds the counter value read before the last write.
const SlotLastCounter = 2

// SlotAttemptTimeHi and SlotAttemptTimeLo hold the last attempt as unix seconds.
const SlotAttemptTimeHi = 3
const SlotAttemptTimeLo = 4

// ---- RESERVED RANGE ----

// Slots 5-10 are reserved for future use.
const SlotReservedStart = 5
const SlotReservedEnd = 10

// ---- DEVICE CODE ----

// SlotDeviceCodeStart is the first slot used for the device code.
// The device code is always placed at the END of the status block.
const SlotDeviceCodeStart = 11

// SlotDeviceCodeSlots is the number of slots reserved for the device code.
const SlotDeviceCodeSlots = 8

// SlotDeviceCodeEnd is the last slot used for the device code (inclusive).
const SlotDeviceCodeEnd = SlotDeviceCodeStart + SlotDeviceCodeSlots - 1

// ---- LIMITS ----

// DeviceCodeMaxChars is the maximum number of ASCII characters stored for the device code.
const DeviceCodeMaxChars = 16

// ---- RESULT CODES ----

// ResultUnknown represents a boot state: no attempt seen yet.
const ResultUnknown uint16 = 0

// ResultOK represents a confirmed reset.
const ResultOK uint16 = 1

// ResultFailed represents an exhausted retry chain.
const ResultFailed uint16 = 2

// ResultRetrying represents a failed attempt with retries left.
const ResultRetrying uint16 = 3
