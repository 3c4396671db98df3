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
	rootCmd.AddCommand(operationCommand("sample", "Sample lines uniformly or from the head of the input", config.OpSampleJSONL))
	rootCmd.AddCommand(operationCommand("sample-users", "Sample records stratified by raw_data.user_id", config.OpSampleByUserID))
}
