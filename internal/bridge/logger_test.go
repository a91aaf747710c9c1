package bridge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSetLoggerWhileOthersLog(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetLogger(zap.NewNop())
		}()
		go func() {
			defer wg.Done()
			Logger().Debug("concurrent")
		}()
	}
	wg.Wait()

	named := zap.NewNop().Named("bridge")
	SetLogger(named)
	assert.Same(t, named, Logger())
	SetLogger(nil)
	assert.NotNil(t, Logger())
}
