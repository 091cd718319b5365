package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("POWERDECK_TEST_MODE") == "" {
			_ = os.Setenv("POWERDECK_TEST_MODE", "1")
		}
	})
}
