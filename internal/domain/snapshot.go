package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalLines сериализует позиции в JSON-массив. Пустая корзина даёт `[]`.
func MarshalLines(lines []CartLine) ([]byte, error) {
	if lines == nil {
		lines = []CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("marshal cart lines: %w", err)
	}
	return data, nil
}

// UnmarshalLines разбирает снапшот корзины. Пустые данные и `null` дают
// пустую корзину; всё, что не является массивом позиций, — ErrSnapshotCorrupt.
func UnmarshalLines(data []byte) ([]CartLine, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []CartLine{}, nil
	}

	var lines []CartLine
	if err := json.Unmarshal(trimmed, &lines); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if lines == nil {
		lines = []CartLine{}
	}
	return lines, nil
}
