/*
Copyright 2025 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("UTILS_TEST_STR", "value")
	t.Setenv("UTILS_TEST_INT", "42")
	t.Setenv("UTILS_TEST_BAD_INT", "forty-two")
	t.Setenv("UTILS_TEST_BOOL", "true")
	t.Setenv("UTILS_TEST_DURATION", "90s")

	assert.Equal(t, "value", LoadEnv("UTILS_TEST_STR", "default"))
	assert.Equal(t, "default", LoadEnv("UTILS_TEST_UNSET", "default"))
	assert.Equal(t, 42, LoadEnvInt("UTILS_TEST_INT", 1))
	assert.Equal(t, 1, LoadEnvInt("UTILS_TEST_BAD_INT", 1))
	assert.True(t, LoadEnvBool("UTILS_TEST_BOOL", false))
	assert.False(t, LoadEnvBool("UTILS_TEST_UNSET", false))
	assert.Equal(t, 90*time.Second, LoadEnvDuration("UTILS_TEST_DURATION", time.Second))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"frontend", "backend-api"}, SplitList(" frontend, ,backend-api ,"))
	assert.Nil(t, SplitList(""))
}
