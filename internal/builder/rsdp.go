package builder

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// RSDP layout. Revision 0 tables end at RSDPV1Size; revision 2 adds the
// extended fields up to RSDPSize.
const (
	RSDPSize   = 36
	RSDPV1Size = 20

	rsdpSignature         = "RSD PTR "
	rsdpChecksumOffset    = 8
	rsdpOEMIDOffset       = 9
	rsdpOEMIDSize         = 6
	rsdpRevisionOffset    = 15
	rsdpLengthOffset      = 20
	rsdpXSDTOffset        = 24
	rsdpExtChecksumOffset = 32

	rsdpRevision = 2
	defaultOEMID = "STIVAL"
)

// EncodeRSDP returns a revision 2 root system description pointer that
// references the XSDT at xsdtAddr. An empty oemID uses a default.
func EncodeRSDP(xsdtAddr uint64, oemID string) []byte {
	if oemID == "" {
		oemID = defaultOEMID
	}
	var rsdp [RSDPSize]byte
	copy(rsdp[:], rsdpSignature)
	copy(rsdp[rsdpOEMIDOffset : rsdpOEMIDOffset+rsdpOEMIDSize], oemID)
	rsdp[rsdpRevisionOffset] = rsdpRevision
	// Only the XSDT is provided; the 32-bit RSDT pointer stays zero.
	binary.LittleEndian.PutUint32(rsdp[rsdpLengthOffset:], RSDPSize)
	binary.LittleEndian.PutUint64(rsdp[rsdpXSDTOffset:], xsdtAddr)

	rsdp[rsdpChecksumOffset] = checksum(rsdp[:RSDPV1Size])
	rsdp[rsdpExtChecksumOffset] = checksum(rsdp[:])
	return rsdp[:]
}

// RSDPRevision returns the revision byte of an encoded RSDP.
func RSDPRevision(b []byte) (uint8, error) {
	if len(b) <= rsdpRevisionOffset {
		return 0, fmt.Errorf("rsdp: need %d bytes, got %d", RSDPV1Size, len(b))
	}
	return b[rsdpRevisionOffset], nil
}

// RSDPXSDT returns the XSDT address of a revision 2 RSDP.
func RSDPXSDT(b []byte) (uint64, error) {
	if len(b) < RSDPSize {
		return 0, fmt.Errorf("rsdp: need %d bytes, got %d", RSDPSize, len(b))
	}
	return binary.LittleEndian.Uint64(b[rsdpXSDTOffset:]), nil
}

// VerifyRSDP checks the signature and checksums of an RSDP. b must hold at
// least the revision 0 part; the extended checksum is verified for revision
// 2 and later.
func VerifyRSDP(b []byte) error {
	if len(b) < RSDPV1Size {
		return fmt.Errorf("rsdp: need %d bytes, got %d", RSDPV1Size, len(b))
	}
	if string(b[:len(rsdpSignature)]) != rsdpSignature {
		return fmt.Errorf("rsdp: bad signature %q", b[:len(rsdpSignature)])
	}
	if sum(b[:RSDPV1Size]) != 0 {
		return errors.New("rsdp: checksum mismatch")
	}
	rev := b[rsdpRevisionOffset]
	if rev < rsdpRevision {
		return nil
	}
	if len(b) < RSDPSize {
		return fmt.Errorf("rsdp: revision %d needs %d bytes, got %d", rev, RSDPSize, len(b))
	}
	length := binary.LittleEndian.Uint32(b[rsdpLengthOffset:])
	if length < RSDPSize || uint64(length) > uint64(len(b)) {
		return fmt.Errorf("rsdp: invalid length %d", length)
	}
	if sum(b[:length]) != 0 {
		return errors.New("rsdp: extended checksum mismatch")
	}
	return nil
}

func sum(b []byte) byte {
	var s uint8
	for _, v := range b {
		s += v
	}
	return s
}

// checksum returns the byte that makes b sum to zero.
func checksum(b []byte) byte {
	return -sum(b)
}
