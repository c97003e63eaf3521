package core

import "encoding/binary"

// recHdrLen is the width of a redo record's header: a 32-bit size field
// followed by a 32-bit offset field, both little-endian.
const recHdrLen = 8

// encodeRecord builds one redo record: little-endian u32 size, u32
// offset, then size bytes of post-image: the current live value, which
// is what recovery must redo.
func encodeRecord(offset int, postImage []byte) []byte {
	buf := make([]byte, recHdrLen+len(postImage))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(postImage)))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(offset))
	copy(buf[recHdrLen:], postImage)
	return buf
}

// decodeRecordHeader reads a record header from the front of buf and
// reports whether the full 8-byte header fits within buf, so callers can
// detect a torn trailing header. It does not check that the payload
// fits; callers compare size against the remaining bytes themselves.
func decodeRecordHeader(buf []byte) (size, offset int, ok bool) {
	if len(buf) < recHdrLen {
		return 0, 0, false
	}
	size = int(binary.LittleEndian.Uint32(buf[0:4]))
	offset = int(binary.LittleEndian.Uint32(buf[4:8]))
	return size, offset, true
}
