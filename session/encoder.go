package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	metadataFormatVersion = 1

	// lastActivity + expiresAt sit at the tail so the rotate script can
	// splice them without decoding the whole blob.
	timestampTailSize = 16
	minEncodedSize    = 1 + 1 + 1 + 8 + timestampTailSize
)

var errInvalidMetadata = errors.New("invalid session metadata")

// Encode serializes m into the versioned binary layout:
//
//	version(1) | len(1) identityID | len(1) sessionID | createdAt(8) | lastActivity(8) | expiresAt(8)
func Encode(m *Metadata) ([]byte, error) {
	if m == nil {
		return nil, errInvalidMetadata
	}

	var buf bytes.Buffer
	buf.Grow(minEncodedSize + len(m.IdentityID) + len(m.SessionID))

	buf.WriteByte(metadataFormatVersion)

	if len(m.IdentityID) > 255 {
		return nil, errors.New("identityID too long")
	}
	buf.WriteByte(byte(len(m.IdentityID)))
	buf.WriteString(m.IdentityID)

	if len(m.SessionID) > 255 {
		return nil, errors.New("sessionID too long")
	}
	buf.WriteByte(byte(len(m.SessionID)))
	buf.WriteString(m.SessionID)

	if err := binary.Write(&buf, binary.BigEndian, m.CreatedAt); err != nil {
		return nil, err
	}
	buf.Write(encodeTail(m.LastActivity, m.ExpiresAt))

	return buf.Bytes(), nil
}

// Decode parses a blob produced by Encode.
func Decode(data []byte) (*Metadata, error) {
	if len(data) < minEncodedSize {
		return nil, errInvalidMetadata
	}
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != metadataFormatVersion {
		return nil, errors.New("invalid session version")
	}

	m := &Metadata{}

	if m.IdentityID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if m.SessionID, err = readShortString(reader); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &m.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &m.LastActivity); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &m.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errInvalidMetadata
	}

	return m, nil
}

func encodeTail(lastActivity, expiresAt int64) []byte {
	tail := make([]byte, timestampTailSize)
	binary.BigEndian.PutUint64(tail[:8], uint64(lastActivity))
	binary.BigEndian.PutUint64(tail[8:], uint64(expiresAt))
	return tail
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
