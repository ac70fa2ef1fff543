package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.Contains(t, info.String(), "dbal version "+Version)

	pairs := info.Pairs()
	assert.Len(t, pairs, 5)
	assert.Equal(t, [2]string{"Version", Version}, pairs[0])
}
