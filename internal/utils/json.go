// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package utils

import (
	"github.com/bytedance/sonic"
)

func MarshalJSONBytes(v interface{}) ([]byte, error) {
	return sonic.Marshal(v)
}

func MarshalJSONIndent(v interface{}) (string, error) {
	bs, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func UnmarshalJSON(data []byte, v interface{}) error {
	return sonic.Unmarshal(data, v)
}
