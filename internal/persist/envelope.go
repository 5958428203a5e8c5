package persist

import "fmt"

// envelope versioning: every persisted blob begins with a 3-byte prefix —
// a magic byte identifying this as a rivetkit actor blob, followed by a
// big-endian uint16 schema version — so a future incompatible change can
// be detected and rejected instead of silently misread.
const (
	envelopeMagicByte      byte   = 0x52 // 'R'
	currentEnvelopeVersion uint16 = 1
	envelopePrefixLen             = 3
)

// wrapEnvelope prefixes a payload with the current magic+version header.
func wrapEnvelope(payload []byte) []byte {
	out := make([]byte, envelopePrefixLen+len(payload))
	out[0] = envelopeMagicByte
	out[1] = byte(currentEnvelopeVersion >> 8)
	out[2] = byte(currentEnvelopeVersion)
	copy(out[envelopePrefixLen:], payload)
	return out
}

// unwrapEnvelope validates the header and returns the payload. A version
// newer than currentEnvelopeVersion fails closed rather than risking a
// misinterpreted blob.
func unwrapEnvelope(blob []byte) ([]byte, uint16, error) {
	if len(blob) < envelopePrefixLen {
		return nil, 0, fmt.Errorf("persist: blob too short to contain an envelope header")
	}
	if blob[0] != envelopeMagicByte {
		return nil, 0, fmt.Errorf("persist: blob does not start with the expected envelope magic byte")
	}
	version := uint16(blob[1])<<8 | uint16(blob[2])
	if version > currentEnvelopeVersion {
		return nil, version, fmt.Errorf("persist: blob envelope version %d is newer than this build supports (max %d)", version, currentEnvelopeVersion)
	}
	return blob[envelopePrefixLen:], version, nil
}
