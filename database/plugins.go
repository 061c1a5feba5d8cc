// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

// Register the storage plugins
import (
	_ "github.com/blinklabs-io/votechain/database/plugin/kv/badger"
	_ "github.com/blinklabs-io/votechain/database/plugin/kv/gcs"
	_ "github.com/blinklabs-io/votechain/database/plugin/kv/s3"
	_ "github.com/blinklabs-io/votechain/database/plugin/sql/mysql"
	_ "github.com/blinklabs-io/votechain/database/plugin/sql/postgres"
	_ "github.com/blinklabs-io/votechain/database/plugin/sql/sqlite"
)
