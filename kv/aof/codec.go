package aof

import (
	"fmt"

	"go.miragespace.co/keyval/spec/ring"

	"google.golang.org/protobuf/encoding/protowire"
)

type mutationType uint64

const (
	mutationUnknown mutationType = iota
	mutationPut
	mutationDelete
	mutationDeleteRange
)

func (t mutationType) String() string {
	switch t {
	case mutationPut:
		return "PUT"
	case mutationDelete:
		return "DELETE"
	case mutationDeleteRange:
		return "DELETE_RANGE"
	default:
		return "UNKNOWN"
	}
}

const logVersionV1 uint64 = 1

// log entry fields
const (
	entryVersion protowire.Number = 1
	entryData    protowire.Number = 2
)

// mutation fields
const (
	fieldType  protowire.Number = 1
	fieldKey   protowire.Number = 2
	fieldValue protowire.Number = 3
	fieldLower protowire.Number = 4
	fieldUpper protowire.Number = 5
	fieldFlags protowire.Number = 6
)

const (
	flagLower uint64 = 1 << iota
	flagUpper
	flagInclusive
)

type mutation struct {
	Type  mutationType
	Key   []byte
	Value []byte
	Range ring.HashRange
}

func (m *mutation) Reset() {
	*m = mutation{}
}

func (m *mutation) marshal() []byte {
	b := make([]byte, 0, 16+len(m.Key)+len(m.Value))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Type))
	switch m.Type {
	case mutationPut:
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
		b = protowire.AppendTag(b, fieldValue, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Value)
	case mutationDelete:
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
	case mutationDeleteRange:
		var flags uint64
		if m.Range.Lower.Set {
			flags |= flagLower
			b = protowire.AppendTag(b, fieldLower, protowire.Fixed64Type)
			b = protowire.AppendFixed64(b, m.Range.Lower.Value)
		}
		if m.Range.Upper.Set {
			flags |= flagUpper
			b = protowire.AppendTag(b, fieldUpper, protowire.Fixed64Type)
			b = protowire.AppendFixed64(b, m.Range.Upper.Value)
		}
		if m.Range.InclusiveUpper {
			flags |= flagInclusive
		}
		b = protowire.AppendTag(b, fieldFlags, protowire.VarintType)
		b = protowire.AppendVarint(b, flags)
	}
	return b
}

func (m *mutation) unmarshal(b []byte) error {
	var flags uint64
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldType && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.Type = mutationType(v)
			b = b[n:]
		case (num == fieldKey || num == fieldValue) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if num == fieldKey {
				m.Key = v
			} else {
				m.Value = v
			}
			b = b[n:]
		case (num == fieldLower || num == fieldUpper) && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if num == fieldLower {
				m.Range.Lower.Value = v
			} else {
				m.Range.Upper.Value = v
			}
			b = b[n:]
		case num == fieldFlags && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			flags = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	m.Range.Lower.Set = flags&flagLower != 0
	m.Range.Upper.Set = flags&flagUpper != 0
	m.Range.InclusiveUpper = flags&flagInclusive != 0

	switch m.Type {
	case mutationPut, mutationDelete, mutationDeleteRange:
		return nil
	default:
		return fmt.Errorf("unknown mutation type: %d", m.Type)
	}
}

func marshalEntry(version uint64, data []byte) []byte {
	b := make([]byte, 0, len(data)+8)
	b = protowire.AppendTag(b, entryVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, version)
	b = protowire.AppendTag(b, entryData, protowire.BytesType)
	b = protowire.AppendBytes(b, data)
	return b
}

func unmarshalEntry(b []byte) (version uint64, data []byte, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == entryVersion && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(b)
		case num == entryData && typ == protowire.BytesType:
			data, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return 0, nil, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return version, data, nil
}
