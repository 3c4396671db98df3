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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNested(t *testing.T) {
	info, err := DecodeNested(`{"data": "{\"data_info\": {\"npc_id\": 7, \"name\": \"bob\"}}"}`)
	require.NoError(t, err)
	assert.Equal(t, "bob", info["name"])

	key := Extract(info, "npc_id")
	assert.True(t, key.Present())
	assert.Equal(t, KindNumber, key.Kind())
	assert.Equal(t, "7", key.String())
}

func TestDecodeNestedFailures(t *testing.T) {
	tests := []struct {
		name  string
		line  string
		stage string
	}{
		{"empty", "", StageEmpty},
		{"whitespace", "   ", StageEmpty},
		{"outer", `{"data": `, StageOuterJSON},
		{"array", `[1,2]`, StageOuterJSON},
		{"no data", `{"other": "x"}`, StageMissingData},
		{"data not string", `{"data": {"data_info": {}}}`, StageMissingData},
		{"inner", `{"data": "{not json"}`, StageInnerJSON},
		{"no data_info", `{"data": "{\"x\": 1}"}`, StageMissingDataInfo},
		{"data_info not object", `{"data": "{\"data_info\": 3}"}`, StageMissingDataInfo},
		{"trailing brace", `{"data": "{\"data_info\": {}}"}}`, StageOuterJSON},
		{"trailing bracket", `{"data": "{\"data_info\": {}}"}]`, StageOuterJSON},
		{"inner trailing brace", `{"data": "{\"data_info\": {}}}"}`, StageInnerJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeNested(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))
			assert.Equal(t, tt.stage, DecodeStage(err))
		})
	}
}

func TestDecodeRaw(t *testing.T) {
	obj, err := DecodeRaw(`{"raw_data": {"user_id": "u1", "q": "hello"}}`)
	require.NoError(t, err)
	assert.Equal(t, "hello", obj["q"])

	_, err = DecodeRaw(`{"raw": {}}`)
	assert.Equal(t, StageMissingRawData, DecodeStage(err))

	_, err = DecodeRaw(`{"raw_data": "u1"}`)
	assert.Equal(t, StageMissingRawData, DecodeStage(err))

	_, err = DecodeRaw(`{"raw_data": {}} {"raw_data": {}}`)
	assert.Equal(t, StageOuterJSON, DecodeStage(err))

	_, err = DecodeRaw(`{"raw_data": {"user_id": 1}}}`)
	assert.Equal(t, StageOuterJSON, DecodeStage(err))

	_, err = DecodeRaw("{\"raw_data\": {\"user_id\": 1}}  \t")
	assert.NoError(t, err)
}

func TestExtractPresenceNotTruthiness(t *testing.T) {
	obj, err := DecodeRaw(`{"raw_data": {"zero": 0, "empty": "", "f": false, "n": null, "obj": {"a": 1}}}`)
	require.NoError(t, err)

	tests := []struct {
		field string
		kind  Kind
		text  string
	}{
		{"zero", KindNumber, "0"},
		{"empty", KindString, ""},
		{"f", KindBool, "false"},
		{"n", KindNull, "null"},
		{"obj", KindOther, `{"a":1}`},
	}
	for _, tt := range tests {
		key := Extract(obj, tt.field)
		assert.True(t, key.Present(), tt.field)
		assert.Equal(t, tt.kind, key.Kind(), tt.field)
		assert.Equal(t, tt.text, key.String(), tt.field)
	}

	missing := Extract(obj, "user_id")
	assert.False(t, missing.Present())
	assert.Equal(t, Key{}, missing)
}

func TestKeyEqualityByKindAndValue(t *testing.T) {
	assert.NotEqual(t, NewNumberKey("1"), NewStringKey("1"))
	assert.Equal(t, NewNumberKey("1"), NewNumberKey("1"))

	// large integer ids keep their literal text
	obj, err := DecodeRaw(`{"raw_data": {"user_id": 12345678901234567890}}`)
	require.NoError(t, err)
	assert.Equal(t, "12345678901234567890", Extract(obj, "user_id").String())
}

func TestNumberKeysCompareByValue(t *testing.T) {
	obj, err := DecodeRaw(`{"raw_data": {"a": 1, "b": 1.0, "c": 1e0, "d": 100, "e": 1e2, "f": 1.50, "g": 1.5, "h": -0}}`)
	require.NoError(t, err)

	one := Extract(obj, "a")
	assert.Equal(t, one, Extract(obj, "b"))
	assert.Equal(t, one, Extract(obj, "c"))
	assert.Equal(t, "1", Extract(obj, "b").String())
	assert.Equal(t, Extract(obj, "d"), Extract(obj, "e"))
	assert.Equal(t, "100", Extract(obj, "e").String())
	assert.Equal(t, Extract(obj, "f"), Extract(obj, "g"))
	assert.Equal(t, "1.5", Extract(obj, "f").String())
	assert.Equal(t, NewNumberKey("0"), Extract(obj, "h"))
	assert.NotEqual(t, one, NewStringKey("1"))
}

func TestSchemaKey(t *testing.T) {
	key, obj, err := UserIDs.Key(`{"raw_data": {"user_id": "abc"}}`)
	require.NoError(t, err)
	assert.Equal(t, NewStringKey("abc"), key)
	assert.NotNil(t, obj)

	key, _, err = UserIDs.Key(`{"raw_data": {"other": 1}}`)
	require.NoError(t, err)
	assert.False(t, key.Present())

	_, _, err = NPCIDs.Key(`{"raw_data": {"user_id": "abc"}}`)
	assert.ErrorIs(t, err, ErrDecode)

	s, err := SchemaByName("npc_ids")
	require.NoError(t, err)
	assert.Equal(t, "npc_id", s.Field)
	_, err = SchemaByName("nope")
	assert.Error(t, err)
}
