//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package keyboard

func keepOutputProcessing(fd int) {}
