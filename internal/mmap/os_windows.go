//go:build windows

package mmap

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func osMap(f *os.File, size int) ([]byte, func([]byte) error, error) {
	h, err := windows.CreateFileMapping(windows.Handle(f.Fd()), nil, windows.PAGE_READONLY, 0, 0, nil)
	if err != nil {
		return nil, nil, err
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(h)
		return nil, nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	unmap := func(b []byte) error {
		err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&b[0])))
		if closeErr := windows.CloseHandle(h); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	}
	return data, unmap, nil
}

func osAdvise(data []byte, pattern AccessPattern) error {
	// No madvise equivalent worth the ceremony on Windows.
	return nil
}
