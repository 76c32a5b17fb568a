package cache

import (
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

const encodingVersion = 1

// MarshalKeys encodes the fetch time and keys as varints and
// length-prefixed strings.
func MarshalKeys(fetched time.Time, keys []string) ([]byte, error) {
	buf := proto.NewBuffer(make([]byte, 0, 16+len(keys)*12))
	if err := buf.EncodeVarint(encodingVersion); err != nil {
		return nil, err
	}
	if err := buf.EncodeVarint(uint64(fetched.Unix())); err != nil {
		return nil, err
	}
	if err := buf.EncodeVarint(uint64(len(keys))); err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := buf.EncodeStringBytes(k); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func UnmarshalKeys(data []byte) (time.Time, []string, error) {
	buf := proto.NewBuffer(data)
	version, err := buf.DecodeVarint()
	if err != nil {
		return time.Time{}, nil, err
	}
	if version != encodingVersion {
		return time.Time{}, nil, errors.Errorf("unsupported encoding version %d", version)
	}
	ts, err := buf.DecodeVarint()
	if err != nil {
		return time.Time{}, nil, err
	}
	n, err := buf.DecodeVarint()
	if err != nil {
		return time.Time{}, nil, err
	}
	if n > uint64(len(data)) {
		return time.Time{}, nil, errors.Errorf("invalid key count %d", n)
	}
	keys := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		k, err := buf.DecodeStringBytes()
		if err != nil {
			return time.Time{}, nil, err
		}
		keys = append(keys, k)
	}
	return time.Unix(int64(ts), 0), keys, nil
}
