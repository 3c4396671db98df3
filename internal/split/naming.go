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

package split

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cardinalhq/lakeprep/internal/resultwriter"
)

// DataSuffix is cut from the input file name to obtain the model version.
const DataSuffix = "_data.jsonl"

// Names are the output paths of one split run.
type Names struct {
	Train    string
	Test     string
	UserTest string
	Log      string
}

// ModelVersion is the input base name up to the first DataSuffix, e.g.
// "v3_data.jsonl" becomes "v3".
func ModelVersion(input string) string {
	base := resultwriter.InputBaseName(input)
	version, _, _ := strings.Cut(base, DataSuffix)
	return version
}

// NamesFor builds {version}_{YYYYMMDD}_{train|test|user_test}.jsonl paths
// inside outputDir.
func NamesFor(outputDir, input string, date time.Time) Names {
	prefix := fmt.Sprintf("%s_%s", ModelVersion(input), date.Format("20060102"))
	return Names{
		Train:    filepath.Join(outputDir, prefix+"_train.jsonl"),
		Test:     filepath.Join(outputDir, prefix+"_test.jsonl"),
		UserTest: filepath.Join(outputDir, prefix+"_user_test.jsonl"),
		Log:      filepath.Join(outputDir, prefix+"_split.log"),
	}
}
