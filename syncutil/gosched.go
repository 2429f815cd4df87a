package syncutil

import "runtime"

func defaultGosched() { runtime.Gosched() }
