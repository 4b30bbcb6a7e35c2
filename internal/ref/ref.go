// Package ref issues short public reference codes for campaigns, so shared
// links do not expose sequential row ids.
package ref

import (
	"fmt"
	"strings"

	hashids "github.com/speps/go-hashids/v2"
)

const minLength = 8

type Encoder struct {
	h *hashids.HashID
}

func NewEncoder(salt string) (*Encoder, error) {
	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = minLength

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("init hashids: %w", err)
	}

	return &Encoder{h: h}, nil
}

func (e *Encoder) Encode(id int64) (string, error) {
	code, err := e.h.EncodeInt64([]int64{id})
	if err != nil {
		return "", fmt.Errorf("encode reference: %w", err)
	}
	return "cmp_" + code, nil
}

func (e *Encoder) Decode(code string) (int64, error) {
	code = strings.TrimPrefix(code, "cmp_")
	ids, err := e.h.DecodeInt64WithError(code)
	if err != nil || len(ids) != 1 {
		return 0, fmt.Errorf("invalid reference code")
	}
	return ids[0], nil
}
