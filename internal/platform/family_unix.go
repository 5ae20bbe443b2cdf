// Copyright (C) 2021-2022  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package platform

import (
	"syscall"
)

func freeDiskBytes(path string) (uint64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil //nolint:gosec // Bsize is always non-negative
}

func unixReadable(path string) bool {
	return syscall.Access(path, 0x4) == nil // R_OK
}

func unixWritable(path string) bool {
	return syscall.Access(path, 0x2) == nil // W_OK
}
