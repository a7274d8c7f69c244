package addrbook

// manualClock is a test helper giving full control over Config.Now. It lives
// in its own _test.go file so every test file of the package shares it
// without duplicating it; it is never compiled into non-test builds.
type manualClock struct {
	ms int64
}

func (c *manualClock) now() int64 { return c.ms }

func (c *manualClock) advance(ms int64) { c.ms += ms }
