//go:build js && wasm

package lockfile

import "os"

// WASM has no file locking and is single-process anyway; locks are no-ops.

func flockExclusive(f *os.File) error {
	return nil
}

func flockUnlock(f *os.File) error {
	return nil
}
