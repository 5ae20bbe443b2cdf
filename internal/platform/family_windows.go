// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package platform

import (
	"syscall"
	"unsafe"
)

func freeDiskBytes(path string) (uint64, error) {
	var freeBytesAvailable uint64
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	proc := kernel32.NewProc("GetDiskFreeSpaceExW")
	ret, _, callErr := proc.Call(
		uintptr(unsafe.Pointer(pathPtr)),
		uintptr(unsafe.Pointer(&freeBytesAvailable)),
		0, 0,
	)
	if ret == 0 {
		return 0, callErr
	}
	return freeBytesAvailable, nil
}

// On Windows, file accessibility is determined by the permission bits Go's
// os.Stat already synthesizes, so these are simple fallbacks used only when
// that synthesis is ambiguous for a given path (see Adapter.CheckPermissions).
func unixReadable(_ string) bool { return false }
func unixWritable(_ string) bool { return false }
