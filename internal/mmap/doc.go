// Package mmap maps read-only files into memory.
//
// On unix platforms the file is mapped with mmap(2); elsewhere Open falls
// back to reading the whole file. Either way Bytes is valid until Close.
package mmap
