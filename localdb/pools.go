package localdb

import "sync"

var valueBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}

var arrayOfBytesPool = &sync.Pool{
	New: func() any {
		return make([][]byte, 0, 64)
	},
}
