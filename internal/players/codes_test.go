package players

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	for range 200 {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.True(t, ValidCode(code), code)
		assert.False(t, strings.ContainsAny(code, "0O1IL"), code)
	}
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("ABC234"))
	assert.False(t, ValidCode("abc234"))
	assert.False(t, ValidCode("ABC23"))
	assert.False(t, ValidCode("ABCL23"))
	assert.Equal(t, "ABC234", NormalizeCode(" abc234\n"))
}

func TestHashCode(t *testing.T) {
	assert.Equal(t, HashCode("ABC234"), HashCode("ABC234"))
	assert.NotEqual(t, HashCode("ABC234"), HashCode("ABC235"))
	assert.Len(t, HashCode("ABC234"), 64)
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	counter := 0

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("p1")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, k.size())
}
