// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Stage names where decoding of an envelope gave up.
const (
	StageEmpty           = "empty"
	StageOuterJSON       = "outer_json"
	StageMissingData     = "missing_data"
	StageInnerJSON       = "inner_json"
	StageMissingDataInfo = "missing_data_info"
	StageMissingRawData  = "missing_raw_data"
)

// ErrDecode matches every DecodeError via errors.Is.
var ErrDecode = errors.New("record decode failed")

// DecodeError reports a line that could not be turned into a record.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s", e.Stage)
	}
	return fmt.Sprintf("decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("not a JSON object")
	}
	var extra json.RawMessage
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return obj, nil
}

// DecodeNested unwraps the double-encoded envelope
// {"data": "<json>"} whose inner document holds a "data_info" object, and
// returns that object.
func DecodeNested(line string) (map[string]any, error) {
	if len(bytes.TrimSpace([]byte(line))) == 0 {
		return nil, &DecodeError{Stage: StageEmpty}
	}
	envelope, err := decodeObject([]byte(line))
	if err != nil {
		return nil, &DecodeError{Stage: StageOuterJSON, Err: err}
	}
	raw, ok := envelope["data"].(string)
	if !ok {
		return nil, &DecodeError{Stage: StageMissingData}
	}
	inner, err := decodeObject([]byte(raw))
	if err != nil {
		return nil, &DecodeError{Stage: StageInnerJSON, Err: err}
	}
	info, ok := inner["data_info"].(map[string]any)
	if !ok {
		return nil, &DecodeError{Stage: StageMissingDataInfo}
	}
	return info, nil
}

// DecodeRaw parses the single-level envelope {"raw_data": {...}} and returns
// the raw_data object.
func DecodeRaw(line string) (map[string]any, error) {
	if len(bytes.TrimSpace([]byte(line))) == 0 {
		return nil, &DecodeError{Stage: StageEmpty}
	}
	envelope, err := decodeObject([]byte(line))
	if err != nil {
		return nil, &DecodeError{Stage: StageOuterJSON, Err: err}
	}
	rawData, ok := envelope["raw_data"].(map[string]any)
	if !ok {
		return nil, &DecodeError{Stage: StageMissingRawData}
	}
	return rawData, nil
}

// DecodeStage returns the stage of a DecodeError, or "" for other errors.
func DecodeStage(err error) string {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Stage
	}
	return ""
}
