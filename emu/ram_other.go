//go:build !unix

package emu

func allocRAM(size int) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func freeRAM([]byte) error {
	return nil
}
