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

import "fmt"

// Schema binds an envelope decoder to the field holding the key.
type Schema struct {
	Name string
	// Container is the envelope attribute holding the object the key is
	// read from.
	Container string
	Field     string
	decode    func(string) (map[string]any, error)
}

var (
	// NPCIDs reads data.data_info.npc_id from double-encoded envelopes.
	NPCIDs = Schema{Name: "npc_ids", Container: "data_info", Field: "npc_id", decode: DecodeNested}
	// UserIDs reads raw_data.user_id from single-level envelopes.
	UserIDs = Schema{Name: "user_ids", Container: "raw_data", Field: "user_id", decode: DecodeRaw}
)

// Decode returns the object the key field lives in.
func (s Schema) Decode(line string) (map[string]any, error) {
	return s.decode(line)
}

// Key decodes line and extracts the schema's key field. A decode failure
// returns an error; a missing field returns an absent Key and no error.
func (s Schema) Key(line string) (Key, map[string]any, error) {
	obj, err := s.decode(line)
	if err != nil {
		return Key{}, nil, err
	}
	return Extract(obj, s.Field), obj, nil
}

// SchemaByName looks up one of the known schemas.
func SchemaByName(name string) (Schema, error) {
	switch name {
	case NPCIDs.Name:
		return NPCIDs, nil
	case UserIDs.Name:
		return UserIDs, nil
	default:
		return Schema{}, fmt.Errorf("unknown record schema %q", name)
	}
}
