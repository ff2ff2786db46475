package session

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const recordFormatVersionCurrent = 1

const (
	flagEmailVerified byte = 1 << 0
)

const (
	roleCodePlayer byte = 1
	roleCodeAdmin  byte = 2
)

var (
	errInvalidVersion = errors.New("invalid record version")
	errInvalidRole    = errors.New("invalid record role")
	errTrailingBytes  = errors.New("trailing bytes after record")
)

// Encode serializes r in the current binary format.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersionCurrent)

	for _, s := range []string{r.UserID, r.Email, r.DisplayName, r.AvatarURL} {
		if err := writeString(&buf, s); err != nil {
			return nil, err
		}
	}

	var flags byte
	if r.EmailVerified {
		flags |= flagEmailVerified
	}
	buf.WriteByte(flags)

	perm, err := roleCode(r.Permission)
	if err != nil {
		return nil, err
	}
	active, err := roleCode(r.ActiveRole)
	if err != nil {
		return nil, err
	}
	buf.WriteByte(perm)
	buf.WriteByte(active)

	if err := binary.Write(&buf, binary.BigEndian, r.SavedAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a binary record.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersionCurrent {
		return nil, errInvalidVersion
	}

	r := &Record{}
	for _, dst := range []*string{&r.UserID, &r.Email, &r.DisplayName, &r.AvatarURL} {
		s, err := readString(reader)
		if err != nil {
			return nil, err
		}
		*dst = s
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.EmailVerified = flags&flagEmailVerified != 0

	perm, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if r.Permission, err = roleName(perm); err != nil {
		return nil, err
	}
	active, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if r.ActiveRole, err = roleName(active); err != nil {
		return nil, err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.SavedAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errTrailingBytes
	}

	return r, nil
}

// EncodeString encodes r as unpadded base64url text.
func EncodeString(r *Record) (string, error) {
	data, err := Encode(r)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeString reverses [EncodeString].
func DecodeString(s string) (*Record, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > math.MaxUint16 {
		return errors.New("record field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func roleCode(role string) (byte, error) {
	switch role {
	case RolePlayer:
		return roleCodePlayer, nil
	case RoleAdmin:
		return roleCodeAdmin, nil
	default:
		return 0, errInvalidRole
	}
}

func roleName(code byte) (string, error) {
	switch code {
	case roleCodePlayer:
		return RolePlayer, nil
	case roleCodeAdmin:
		return RoleAdmin, nil
	default:
		return "", errInvalidRole
	}
}
