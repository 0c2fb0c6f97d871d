package params

import "testing"

// SetupTestConfigCleanup preserves configurations, allowing to modify them within tests without any
// restrictions. Everything is restored after the test.
func SetupTestConfigCleanup(t testing.TB) {
	prevConfig := DeradConfig().Copy()
	t.Cleanup(func() {
		OverrideDeradConfig(prevConfig)
	})
}
