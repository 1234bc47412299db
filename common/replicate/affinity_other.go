//go:build !linux

package replicate

// pinToCores is a no-op on platforms without thread affinity support; the
// resource grant still bounds concurrency, it just isn't enforced by the OS.
func pinToCores(cores []int) error {
	return nil
}
