package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var errEmptyLine = errors.New("empty request line")

// readLine reads one newline-terminated line of at most limit bytes. A final
// line without a newline is accepted when the peer closes its write side.
func readLine(r *bufio.Reader, limit int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if limit > 0 && len(line) > limit {
			return nil, fmt.Errorf("line exceeds %d bytes", limit)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(line) > 0 {
			break
		}
		return nil, err
	}

	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, errEmptyLine
	}
	return line, nil
}

// writeLine encodes v as a single JSON line.
func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// decodeRequest parses one request line.
func decodeRequest(line []byte) (*Request, error) {
	var req Request
	dec := json.NewDecoder(bytes.NewReader(line))
	if err := dec.Decode(&req); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after request")
	}
	if NormalizeCommand(req.Command) == "" {
		return nil, errors.New("missing command")
	}
	if req.Args == nil {
		req.Args = []string{}
	}
	return &req, nil
}
