package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

func newCSVReader(r io.Reader) *csv.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	return cr
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("missing header")
		}
		return nil, err
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, fmt.Errorf("invalid header encoding")
		}
	}
	return h, nil
}

func requireHeader(header, required, allowed []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, req := range required {
		if _, ok := index[req]; !ok {
			return nil, fmt.Errorf("missing required header column: %s", req)
		}
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = struct{}{}
	}
	for _, h := range header {
		if _, ok := allowedSet[h]; !ok {
			return nil, fmt.Errorf("unexpected header column: %s", h)
		}
	}
	return index, nil
}

func field(rec []string, index map[string]int, name string) string {
	i, ok := index[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}
