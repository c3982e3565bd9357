package stores

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	registrationRecordVersionV1 = 1
	identityCacheVersionV1      = 1

	registrationFlagConsumed byte = 1 << 0
)

// ErrRecordCorrupt is returned when a stored record cannot be decoded.
var ErrRecordCorrupt = errors.New("stored record corrupt")

func encodeRegistration(record *StagedRegistration) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(registrationRecordVersionV1)

	var flags byte
	if record.Consumed {
		flags |= registrationFlagConsumed
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.StagedAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.Username, record.Email, record.PasswordHash, record.Role, record.IdentityID} {
		if err := writeString16(&buf, field); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func decodeRegistration(data []byte) (*StagedRegistration, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != registrationRecordVersionV1 {
		return nil, errors.New("invalid registration record version")
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &StagedRegistration{Consumed: flags&registrationFlagConsumed != 0}
	if err := binary.Read(reader, binary.BigEndian, &record.StagedAt); err != nil {
		return nil, err
	}

	for _, dst := range []*string{&record.Username, &record.Email, &record.PasswordHash, &record.Role, &record.IdentityID} {
		if *dst, err = readString16(reader); err != nil {
			return nil, err
		}
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in registration record")
	}

	return record, nil
}

type cachedIdentityWire struct {
	V         int    `json:"v"`
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt int64  `json:"created_at"`
}

func encodeCachedIdentity(identity *CachedIdentity) ([]byte, error) {
	return json.Marshal(cachedIdentityWire{
		V:         identityCacheVersionV1,
		ID:        identity.ID,
		Username:  identity.Username,
		Email:     identity.Email,
		Role:      identity.Role,
		CreatedAt: identity.CreatedAt.UnixMilli(),
	})
}

func decodeCachedIdentity(data []byte) (*CachedIdentity, error) {
	var wire cachedIdentityWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.V != identityCacheVersionV1 {
		return nil, fmt.Errorf("invalid identity cache version %d", wire.V)
	}
	if wire.ID == "" {
		return nil, errors.New("identity cache entry missing id")
	}
	return &CachedIdentity{
		ID:        wire.ID,
		Username:  wire.Username,
		Email:     wire.Email,
		Role:      wire.Role,
		CreatedAt: time.UnixMilli(wire.CreatedAt).UTC(),
	}, nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString16(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
