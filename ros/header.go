package ros

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// header is one key=value field of a TCPROS connection header.
type header struct {
	key   string
	value string
}

// readConnectionHeader reads one TCPROS connection header block: a uint32
// total size followed by size-prefixed key=value lines, everything little
// endian.
func readConnectionHeader(r io.Reader) ([]header, error) {
	var total uint32
	if err := binary.Read(r, binary.LittleEndian, &total); err != nil {
		return nil, err
	}
	block := make([]byte, int(total))
	if _, err := io.ReadFull(r, block); err != nil {
		return nil, err
	}

	var headers []header
	for rest := block; len(rest) > 0; {
		if len(rest) < 4 {
			return nil, errors.New("connection header truncated")
		}
		size := binary.LittleEndian.Uint32(rest[:4])
		rest = rest[4:]
		if int(size) > len(rest) {
			return nil, errors.New("connection header overrun")
		}
		line := rest[:size]
		rest = rest[size:]
		key, value, found := bytes.Cut(line, []byte{'='})
		if !found {
			return nil, errors.Errorf("malformed connection header line %q", string(line))
		}
		headers = append(headers, header{string(key), string(value)})
	}
	return headers, nil
}

func writeConnectionHeader(headers []header, w io.Writer) error {
	var body bytes.Buffer
	for _, h := range headers {
		line := h.key + "=" + h.value
		if err := binary.Write(&body, binary.LittleEndian, uint32(len(line))); err != nil {
			return err
		}
		body.WriteString(line)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(body.Len())); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}
