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

package cmd

import (
	"github.com/cardinalhq/lakeprep/config"
)

func init() {
	rootCmd.AddCommand(operationCommand("count-npc-ids", "Count records per data.data_info.npc_id", config.OpCountNPCIDs))
	rootCmd.AddCommand(operationCommand("count-user-ids", "Count records per raw_data.user_id (single-level {\"raw_data\": {...}} lines, not the double-encoded npc_id envelope)", config.OpCountUserIDs))
}
