// SPDX-License-Identifier: Apache-2.0

package checksum_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/waypoint-sql/waypoint/pkg/checksum"
)

func TestCalculateEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int32(0), checksum.Calculate(""))
}

func TestCalculateIsDeterministic(t *testing.T) {
	t.Parallel()

	sql := "CREATE TABLE users (\n    id INT PRIMARY KEY\n);\n"
	assert.Equal(t, checksum.Calculate(sql), checksum.Calculate(sql))
}

func TestCalculateIgnoresLineEndingStyle(t *testing.T) {
	t.Parallel()

	unix := "SELECT 1;\nSELECT 2;\n"
	windows := "SELECT 1;\r\nSELECT 2;\r\n"

	assert.Equal(t, checksum.Calculate(unix), checksum.Calculate(windows))
}

func TestCalculateDiffersForDifferentContent(t *testing.T) {
	t.Parallel()

	a := checksum.Calculate("SELECT 1;\n")
	b := checksum.Calculate("SELECT 2;\n")

	assert.NotEqual(t, a, b)
}
