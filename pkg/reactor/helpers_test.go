package reactor_test

import "time"

const (
	testEventuallyTimeout = time.Second
	testEventuallyTick    = 5 * time.Millisecond
)
