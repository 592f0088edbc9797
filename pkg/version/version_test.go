// SPDX-License-Identifier: Apache-2.0

package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypoint-sql/waypoint/pkg/version"
)

func TestParse(t *testing.T) {
	t.Parallel()

	v, err := version.Parse("1.2.3")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, v.Segments)
	assert.Equal(t, "1.2.3", v.String())
}

func TestParseUnderscoreSeparator(t *testing.T) {
	t.Parallel()

	v, err := version.Parse("1_1")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 1}, v.Segments)
}

func TestParseMixedSeparators(t *testing.T) {
	t.Parallel()

	v, err := version.Parse("1.2_3")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, v.Segments)
}

func TestParseEmptyIsError(t *testing.T) {
	t.Parallel()

	_, err := version.Parse("")
	assert.Error(t, err)
}

func TestParseInvalidSegmentIsError(t *testing.T) {
	t.Parallel()

	_, err := version.Parse("1.x.3")
	assert.Error(t, err)
}

func TestCompareOrdersNumerically(t *testing.T) {
	t.Parallel()

	v9, _ := version.Parse("9")
	v10, _ := version.Parse("10")

	assert.Equal(t, -1, v9.Compare(v10))
	assert.Equal(t, 1, v10.Compare(v9))
	assert.Equal(t, 0, v9.Compare(v9))
}

func TestCompareTreatsMissingSegmentsAsZero(t *testing.T) {
	t.Parallel()

	v1, _ := version.Parse("1.2")
	v2, _ := version.Parse("1.2.0")

	assert.Equal(t, 0, v1.Compare(v2))
}

func TestCompareShorterVersionLessWhenTrailingSegmentNonZero(t *testing.T) {
	t.Parallel()

	v1, _ := version.Parse("1.2")
	v2, _ := version.Parse("1.2.1")

	assert.Equal(t, -1, v1.Compare(v2))
}
